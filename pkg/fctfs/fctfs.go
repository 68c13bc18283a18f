package fctfs

import (
	"fmt"
	"os"
	"sync"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/beam-cloud/fct/pkg/archive"
)

// FctFileSystem serves the entries of one archive as a read-only tree.
type FctFileSystem struct {
	archive     *archive.FctArchive
	index       *FctIndex
	root        *FSNode
	lookupCache map[string]*lookupCacheEntry
	cacheMutex  sync.RWMutex
}

type lookupCacheEntry struct {
	inode *fs.Inode
	attr  fuse.Attr
}

// NewFileSystem indexes a. The archive must stay open for as long as the
// filesystem is served.
func NewFileSystem(a *archive.FctArchive) (*FctFileSystem, error) {
	headers, err := a.Headers()
	if err != nil {
		return nil, fmt.Errorf("could not read archive headers: %w", err)
	}

	fi, err := os.Stat(a.Path())
	if err != nil {
		return nil, err
	}

	fsys := &FctFileSystem{
		archive:     a,
		index:       NewFctIndex(headers, a.ChunkSize(), fi.ModTime()),
		lookupCache: make(map[string]*lookupCacheEntry),
	}

	rootNode := fsys.index.Get("/")
	fsys.root = &FSNode{
		filesystem: fsys,
		node:       rootNode,
	}

	return fsys, nil
}

func (fsys *FctFileSystem) Root() (fs.InodeEmbedder, error) {
	if fsys.root == nil {
		return nil, fmt.Errorf("root not initialized")
	}
	return fsys.root, nil
}

func (fsys *FctFileSystem) Index() *FctIndex {
	return fsys.index
}
