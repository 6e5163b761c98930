// Package archive packs files of a virtual filesystem into a single
// compressed archive file stored in the same filesystem, and unpacks it.
//
// An archive is a text file: a header line naming the codec followed by
// the base64 encoded, compressed JSON manifest.
package archive

import (
	"encoding/base64"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"deskfs/internal/fs"
	"deskfs/internal/logging"
)

var (
	logger = logging.GetLogger().WithPrefix("archive")
)

const (
	// Magic starts the header line of every archive.
	Magic = "DESKFS-ARCHIVE"
	// ManifestVersion is written into every manifest.
	ManifestVersion = 1
	// ExtractSuffix is appended to an archive's stem to name the
	// directory it is extracted into.
	ExtractSuffix = "_extracted"
)

var (
	// ErrNotArchive indicates content that lacks the archive header.
	ErrNotArchive = errors.New("not a deskfs archive")
	// ErrNothingToPack indicates an empty source list.
	ErrNothingToPack = errors.New("nothing to pack")
)

// Entry is one archived file. Path is relative to the common parent of
// the packed sources.
type Entry struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Manifest is the decoded archive payload.
type Manifest struct {
	Version int     `json:"version"`
	Created int64   `json:"created"`
	Entries []Entry `json:"entries"`
}

// Pack archives the files at sources, walking directories recursively,
// and writes the archive to dest with codec. Entry paths are relative to
// the deepest directory containing every source.
func Pack(fsys *fs.FileSystem, dest string, sources []string, codec Codec) error {
	if len(sources) == 0 {
		return ErrNothingToPack
	}
	if codec == "" {
		codec = CodecZstd
	}

	roots := make([]fs.VirtualPath, 0, len(sources))
	for _, src := range sources {
		vp, err := fs.NewVirtualPath(src)
		if err != nil {
			return fs.NewFSError("archive", src, err)
		}
		roots = append(roots, vp)
	}
	base := commonParent(roots)
	logger.Debug("Packing %d sources relative to %q", len(roots), base.String())

	files := make(map[string]string)
	for _, root := range roots {
		if err := collect(fsys, root, files); err != nil {
			return err
		}
	}

	manifest := Manifest{
		Version: ManifestVersion,
		Created: time.Now().UnixMilli(),
		Entries: make([]Entry, 0, len(files)),
	}
	prefix := base.String()
	if prefix != "/" {
		prefix += "/"
	}
	for p, content := range files {
		manifest.Entries = append(manifest.Entries, Entry{
			Path:    strings.TrimPrefix(p, prefix),
			Content: content,
		})
	}
	sort.Slice(manifest.Entries, func(i, j int) bool {
		return manifest.Entries[i].Path < manifest.Entries[j].Path
	})

	text, err := Encode(manifest, codec)
	if err != nil {
		return err
	}
	if err := fsys.WriteFile(dest, text); err != nil {
		return err
	}

	logger.Info("Packed %d files into %s (%s, %d bytes)", len(manifest.Entries), dest, codec, len(text))
	return nil
}

// collect adds the file at p, or every file below the directory at p, to
// files keyed by absolute path.
func collect(fsys *fs.FileSystem, p fs.VirtualPath, files map[string]string) error {
	meta, err := fsys.Stat(p.String())
	if err != nil {
		return err
	}

	if !meta.IsDir() {
		content, err := fsys.ReadFile(p.String())
		if err != nil {
			return err
		}
		files[p.String()] = content
		return nil
	}

	children, err := fsys.ListSorted(p.String())
	if err != nil {
		return err
	}
	for _, child := range children {
		cp, err := p.Child(child.Name)
		if err != nil {
			return err
		}
		if err := collect(fsys, cp, files); err != nil {
			return err
		}
	}
	return nil
}

// commonParent returns the deepest directory that is a strict ancestor of
// every path.
func commonParent(paths []fs.VirtualPath) fs.VirtualPath {
	common := paths[0].Parent()
	for _, p := range paths[1:] {
		for !common.IsRoot() && !common.Contains(p) {
			common = common.Parent()
		}
	}
	return common
}

// Encode renders a manifest as archive text.
func Encode(m Manifest, codec Codec) (string, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	payload, err := codec.compress(raw)
	if err != nil {
		return "", fmt.Errorf("compress manifest with %s: %w", codec, err)
	}
	return Magic + " " + string(codec) + "\n" + base64.StdEncoding.EncodeToString(payload), nil
}

// Decode parses archive text.
func Decode(text string) (Manifest, error) {
	header, body, found := strings.Cut(text, "\n")
	name, ok := strings.CutPrefix(strings.TrimSpace(header), Magic+" ")
	if !found || !ok {
		return Manifest{}, ErrNotArchive
	}
	codec, err := ParseCodec(strings.TrimSpace(name))
	if err != nil {
		return Manifest{}, fmt.Errorf("%w: bad codec %q", ErrNotArchive, name)
	}

	payload, err := base64.StdEncoding.DecodeString(strings.TrimSpace(body))
	if err != nil {
		return Manifest{}, fmt.Errorf("decode archive payload: %w", err)
	}
	raw, err := codec.decompress(payload)
	if err != nil {
		return Manifest{}, fmt.Errorf("decompress archive payload: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	if m.Version < 1 || m.Version > ManifestVersion {
		return Manifest{}, fmt.Errorf("unsupported manifest version %d", m.Version)
	}
	return m, nil
}

// ExtractDir returns the directory an archive at src extracts into:
// <parent>/<stem>_extracted.
func ExtractDir(src fs.VirtualPath) string {
	name := src.Base()
	stem := strings.TrimSuffix(name, path.Ext(name))
	if stem == "" {
		stem = name
	}
	return path.Join(src.Parent().String(), stem+ExtractSuffix)
}

// Extract unpacks the archive at src next to it and returns the directory
// it was extracted into. Existing files in that directory are overwritten.
func Extract(fsys *fs.FileSystem, src string) (string, error) {
	vp, err := fs.NewVirtualPath(src)
	if err != nil {
		return "", fs.NewFSError("extract", src, err)
	}

	text, err := fsys.ReadFile(vp.String())
	if err != nil {
		return "", err
	}
	m, err := Decode(text)
	if err != nil {
		return "", fs.NewFSError("extract", vp.String(), err)
	}

	dir := ExtractDir(vp)
	if err := mkdirAll(fsys, dir); err != nil {
		return "", err
	}

	for _, e := range m.Entries {
		rel, err := fs.NormalizePath(e.Path)
		if err != nil || rel == "/" {
			return "", fs.NewFSError("extract", e.Path, fmt.Errorf("%w: bad archive entry", fs.ErrInvalidPath))
		}
		target := path.Join(dir, rel)
		if err := mkdirAll(fsys, path.Dir(target)); err != nil {
			return "", err
		}
		if err := fsys.WriteFile(target, e.Content); err != nil {
			return "", err
		}
	}

	logger.Info("Extracted %d files from %s into %s", len(m.Entries), vp.String(), dir)
	return dir, nil
}

// mkdirAll creates dir with its parents, accepting an existing directory.
func mkdirAll(fsys *fs.FileSystem, dir string) error {
	err := fsys.CreateDirectory(dir, true)
	if errors.Is(err, fs.ErrAlreadyExists) {
		meta, statErr := fsys.Stat(dir)
		if statErr != nil {
			return statErr
		}
		if !meta.IsDir() {
			return fs.NewFSError(fs.OpMkdir, dir, fs.ErrNotADirectory)
		}
		return nil
	}
	return err
}
