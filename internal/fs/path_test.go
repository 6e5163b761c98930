package fs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty is root", input: "", expected: "/"},
		{name: "whitespace is root", input: "   ", expected: "/"},
		{name: "root", input: "/", expected: "/"},
		{name: "only separators", input: "////", expected: "/"},
		{name: "simple path", input: "/home", expected: "/home"},
		{name: "relative path gets anchored", input: "home/documents", expected: "/home/documents"},
		{name: "trailing separator dropped", input: "/home/", expected: "/home"},
		{name: "repeated separators collapsed", input: "//home///documents//", expected: "/home/documents"},
		{name: "surrounding whitespace trimmed", input: "  /home/notes.txt \n", expected: "/home/notes.txt"},
		{name: "inner whitespace kept", input: "/my docs/a b.txt", expected: "/my docs/a b.txt"},
		{name: "dots inside names kept", input: "/a..b/.hidden", expected: "/a..b/.hidden"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePath(tt.input)
			require.NoError(t, err)
			require.Equal(t, tt.expected, got)

			// Normalizing twice changes nothing.
			again, err := NormalizePath(got)
			require.NoError(t, err)
			require.Equal(t, got, again)
		})
	}
}

func TestNormalizePathRejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "dot segment", input: "/home/./docs"},
		{name: "dot dot segment", input: "/home/../etc"},
		{name: "bare dot dot", input: ".."},
		{name: "nul byte", input: "/home/a\x00b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizePath(tt.input)
			require.ErrorIs(t, err, ErrInvalidPath)
		})
	}
}

func TestVirtualPath(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		parent string
		base   string
		root   bool
	}{
		{name: "root", input: "/", parent: "/", base: "/", root: true},
		{name: "top level", input: "/home", parent: "/", base: "home"},
		{name: "nested", input: "/home/documents/a.txt", parent: "/home/documents", base: "a.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vp, err := NewVirtualPath(tt.input)
			require.NoError(t, err)
			require.Equal(t, tt.parent, vp.Parent().String())
			require.Equal(t, tt.base, vp.Base())
			require.Equal(t, tt.root, vp.IsRoot())
		})
	}
}

func TestVirtualPathZeroValueIsRoot(t *testing.T) {
	var vp VirtualPath
	require.True(t, vp.IsRoot())
	require.Equal(t, "/", vp.String())
}

func TestVirtualPathChild(t *testing.T) {
	child, err := RootPath.Child("home")
	require.NoError(t, err)
	require.Equal(t, "/home", child.String())

	grandchild, err := child.Child("notes.txt")
	require.NoError(t, err)
	require.Equal(t, "/home/notes.txt", grandchild.String())

	for _, bad := range []string{"", "a/b", ".", ".."} {
		_, err := child.Child(bad)
		require.ErrorIs(t, err, ErrInvalidPath, "name %q", bad)
	}
}

func TestVirtualPathContains(t *testing.T) {
	home, err := NewVirtualPath("/home")
	require.NoError(t, err)
	docs, err := NewVirtualPath("/home/documents")
	require.NoError(t, err)
	sibling, err := NewVirtualPath("/homework")
	require.NoError(t, err)

	require.True(t, RootPath.Contains(home))
	require.True(t, home.Contains(docs))
	require.False(t, home.Contains(home))
	require.False(t, home.Contains(sibling))
	require.False(t, docs.Contains(home))
	require.False(t, RootPath.Contains(RootPath))
}
