package mount

import (
	fusefs "bazil.org/fuse/fs"
)

// Node represents a filesystem node (file or directory)
type Node interface {
	fusefs.Node
	fusefs.NodeSetattrer
}

// Directory represents a directory in the virtual filesystem
type Directory interface {
	Node
	fusefs.NodeStringLookuper
	fusefs.HandleReadDirAller
	fusefs.NodeMkdirer
	fusefs.NodeCreater
	fusefs.NodeRemover
	fusefs.NodeRenamer
}

// FileNode represents a file in the virtual filesystem
type FileNode interface {
	Node
	fusefs.NodeOpener
	fusefs.NodeFsyncer
}

// Handle represents an open file handle
type Handle interface {
	fusefs.Handle
	fusefs.HandleReadAller
	fusefs.HandleWriter
	fusefs.HandleFlusher
	fusefs.HandleReleaser
}

var (
	_ fusefs.FS = (*FS)(nil)
	_ Directory = (*Dir)(nil)
	_ FileNode  = (*File)(nil)
	_ Handle    = (*FileHandle)(nil)
)
