package fctfs

import (
	"os"
	"path"
	"strings"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	log "github.com/rs/zerolog/log"
	"github.com/tidwall/btree"

	common "github.com/beam-cloud/fct/pkg/common"
)

type FctNodeType string

const (
	DirNode  FctNodeType = "dir"
	FileNode FctNodeType = "file"
)

// FctNode is one path in the mounted view. Directories are synthesised from
// the stored paths of file entries.
type FctNode struct {
	Path     string
	NodeType FctNodeType
	Attr     fuse.Attr
	Header   *common.EntryHeader
}

// FctIndex orders nodes by path for lookups and directory listings.
type FctIndex struct {
	index *btree.BTreeG[*FctNode]
}

// NewFctIndex builds the mounted view of an archive from its header index.
// When a path is stored twice the first entry wins, matching extraction.
func NewFctIndex(headers []common.EntryHeader, chunkSize uint16, modTime time.Time) *FctIndex {
	nodeLess := func(a, b *FctNode) bool {
		return a.Path < b.Path
	}
	idx := &FctIndex{
		index: btree.NewBTreeGOptions(nodeLess, btree.Options{NoLocks: true}),
	}

	var ino uint64
	nextIno := func() uint64 {
		ino++
		return ino
	}
	mtime := uint64(modTime.Unix())
	owner := fuse.Owner{Uid: uint32(os.Getuid()), Gid: uint32(os.Getgid())}

	newDir := func(p string) *FctNode {
		return &FctNode{
			Path:     p,
			NodeType: DirNode,
			Attr: fuse.Attr{
				Ino:   nextIno(),
				Mode:  fuse.S_IFDIR | 0555,
				Nlink: 2,
				Atime: mtime,
				Mtime: mtime,
				Ctime: mtime,
				Owner: owner,
			},
		}
	}

	idx.index.Set(newDir("/"))

	for i := range headers {
		header := headers[i]

		if header.Path == "" || strings.HasPrefix(header.Path, "/") || !isLocal(header.Path) {
			log.Warn().Str("path", header.Path).Msg("skipping entry with unsafe path")
			continue
		}
		nodePath := path.Join("/", header.Path)

		if existing := idx.Get(nodePath); existing != nil {
			log.Debug().Str("path", nodePath).Msg("duplicate entry, keeping the first")
			continue
		}

		for dir := path.Dir(nodePath); dir != "/"; dir = path.Dir(dir) {
			if idx.Get(dir) == nil {
				idx.index.Set(newDir(dir))
			}
		}

		size := header.DataLength(chunkSize)
		idx.index.Set(&FctNode{
			Path:     nodePath,
			NodeType: FileNode,
			Header:   &header,
			Attr: fuse.Attr{
				Ino:     nextIno(),
				Size:    size,
				Blocks:  (size + 511) / 512,
				Mode:    fuse.S_IFREG | 0444,
				Nlink:   1,
				Atime:   mtime,
				Mtime:   mtime,
				Ctime:   mtime,
				Owner:   owner,
				Blksize: uint32(chunkSize),
			},
		})
	}

	return idx
}

// isLocal reports whether a slash separated path stays below its root.
func isLocal(p string) bool {
	depth := 0
	for _, part := range strings.Split(p, "/") {
		switch part {
		case "", ".":
		case "..":
			depth--
			if depth < 0 {
				return false
			}
		default:
			depth++
		}
	}
	return depth > 0
}

func (idx *FctIndex) Get(p string) *FctNode {
	node, ok := idx.index.Get(&FctNode{Path: p})
	if !ok {
		return nil
	}
	return node
}

func (idx *FctIndex) Len() int {
	return idx.index.Len()
}

// ListDirectory returns the immediate children of the directory at p.
func (idx *FctIndex) ListDirectory(p string) []fuse.DirEntry {
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}

	// \x00 sorts below every other byte, so the pivot lands on the first child.
	pivot := &FctNode{Path: p + "\x00"}
	var entries []fuse.DirEntry

	idx.index.Ascend(pivot, func(node *FctNode) bool {
		if !strings.HasPrefix(node.Path, p) {
			return false
		}

		name := node.Path[len(p):]
		if name == "" || strings.Contains(name, "/") {
			return true
		}

		entries = append(entries, fuse.DirEntry{
			Mode: node.Attr.Mode,
			Name: name,
			Ino:  node.Attr.Ino,
		})
		return true
	})

	return entries
}
