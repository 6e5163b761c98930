package archive

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"deskfs/internal/fs"
	"deskfs/internal/kv"
)

func setupFS(t *testing.T) *fs.FileSystem {
	t.Helper()
	fsys, err := fs.New(kv.NewMemoryStore())
	require.NoError(t, err)

	require.NoError(t, fsys.WriteFile("/home/documents/report.txt", "quarterly numbers"))
	require.NoError(t, fsys.WriteFile("/home/documents/notes.md", strings.Repeat("note ", 200)))
	require.NoError(t, fsys.CreateDirectory("/home/documents/drafts", false))
	require.NoError(t, fsys.WriteFile("/home/documents/drafts/v1.txt", "first draft"))
	require.NoError(t, fsys.WriteFile("/home/pictures/cat.svg", "<svg/>"))
	return fsys
}

func TestPackExtractRoundTrip(t *testing.T) {
	for _, codec := range []Codec{CodecZstd, CodecLZ4, CodecGzip} {
		t.Run(string(codec), func(t *testing.T) {
			fsys := setupFS(t)

			err := Pack(fsys, "/home/backup.dza", []string{"/home/documents", "/home/pictures/cat.svg"}, codec)
			require.NoError(t, err)

			text, err := fsys.ReadFile("/home/backup.dza")
			require.NoError(t, err)
			require.True(t, strings.HasPrefix(text, Magic+" "+string(codec)+"\n"))

			dir, err := Extract(fsys, "/home/backup.dza")
			require.NoError(t, err)
			require.Equal(t, "/home/backup_extracted", dir)

			want := map[string]string{
				"/home/backup_extracted/documents/report.txt":    "quarterly numbers",
				"/home/backup_extracted/documents/notes.md":      strings.Repeat("note ", 200),
				"/home/backup_extracted/documents/drafts/v1.txt": "first draft",
				"/home/backup_extracted/pictures/cat.svg":        "<svg/>",
			}
			for p, content := range want {
				got, err := fsys.ReadFile(p)
				require.NoError(t, err, p)
				require.Equal(t, content, got, p)
			}

			report, err := fsys.Check()
			require.NoError(t, err)
			require.True(t, report.Healthy())
		})
	}
}

func TestPackSingleFile(t *testing.T) {
	fsys := setupFS(t)
	require.NoError(t, Pack(fsys, "/home/report.dza", []string{"/home/documents/report.txt"}, ""))

	text, err := fsys.ReadFile("/home/report.dza")
	require.NoError(t, err)
	m, err := Decode(text)
	require.NoError(t, err)
	require.Equal(t, ManifestVersion, m.Version)
	require.Equal(t, []Entry{{Path: "report.txt", Content: "quarterly numbers"}}, m.Entries)
}

func TestPackErrors(t *testing.T) {
	fsys := setupFS(t)

	require.ErrorIs(t, Pack(fsys, "/home/a.dza", nil, CodecZstd), ErrNothingToPack)
	require.ErrorIs(t, Pack(fsys, "/home/a.dza", []string{"/home/missing"}, CodecZstd), fs.ErrNotFound)
	require.ErrorIs(t, Pack(fsys, "/nowhere/a.dza", []string{"/home/documents"}, CodecZstd), fs.ErrParentMissing)
	require.Error(t, Pack(fsys, "/home/a.dza", []string{"/home/documents"}, Codec("brotli")))
	require.False(t, fsys.Exists("/home/a.dza"))
}

func TestExtractErrors(t *testing.T) {
	fsys := setupFS(t)

	_, err := Extract(fsys, "/home/documents/report.txt")
	require.ErrorIs(t, err, ErrNotArchive)
	require.False(t, fsys.Exists("/home/documents/report_extracted"))

	_, err = Extract(fsys, "/home/missing.dza")
	require.ErrorIs(t, err, fs.ErrNotFound)

	require.NoError(t, fsys.WriteFile("/home/bad.dza", Magic+" zstd\n!!!not base64!!!"))
	_, err = Extract(fsys, "/home/bad.dza")
	require.Error(t, err)

	evil, err := Encode(Manifest{Version: 1, Entries: []Entry{{Path: "../escape.txt", Content: "x"}}}, CodecGzip)
	require.NoError(t, err)
	require.NoError(t, fsys.WriteFile("/home/evil.dza", evil))
	_, err = Extract(fsys, "/home/evil.dza")
	require.ErrorIs(t, err, fs.ErrInvalidPath)
	require.False(t, fsys.Exists("/home/escape.txt"))
}

func TestExtractTwiceOverwrites(t *testing.T) {
	fsys := setupFS(t)
	require.NoError(t, Pack(fsys, "/home/pics.dza", []string{"/home/pictures"}, CodecLZ4))

	_, err := Extract(fsys, "/home/pics.dza")
	require.NoError(t, err)
	require.NoError(t, fsys.WriteFile("/home/pics_extracted/pictures/cat.svg", "edited"))

	_, err = Extract(fsys, "/home/pics.dza")
	require.NoError(t, err)
	got, err := fsys.ReadFile("/home/pics_extracted/pictures/cat.svg")
	require.NoError(t, err)
	require.Equal(t, "<svg/>", got)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "empty", text: ""},
		{name: "plain text", text: "hello world"},
		{name: "header only", text: Magic + " zstd"},
		{name: "unknown codec", text: Magic + " brotli\nAAAA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.text)
			require.ErrorIs(t, err, ErrNotArchive)
		})
	}
}

func TestExtractDir(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{src: "/home/photos.dza", want: "/home/photos_extracted"},
		{src: "/home/photos.tar.dza", want: "/home/photos.tar_extracted"},
		{src: "/archive", want: "/archive_extracted"},
		{src: "/home/.hidden", want: "/home/.hidden_extracted"},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			vp, err := fs.NewVirtualPath(tt.src)
			require.NoError(t, err)
			require.Equal(t, tt.want, ExtractDir(vp))
		})
	}
}

func TestParseCodec(t *testing.T) {
	c, err := ParseCodec("")
	require.NoError(t, err)
	require.Equal(t, CodecZstd, c)

	c, err = ParseCodec("gzip")
	require.NoError(t, err)
	require.Equal(t, CodecGzip, c)

	_, err = ParseCodec("zip")
	require.Error(t, err)
}
