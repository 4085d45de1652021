package element

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ormasoftchile/kombi/pkg/pathcache"
)

// Builtin filesystem types.
const (
	TypeFs        = "fs"
	TypeFile      = "file"
	TypeDirectory = "directory"
)

func init() {
	MustRegister(&Type{
		Name:     TypeFs,
		Leaf:     true,
		Test:     func(data any, _ *Element) (bool, error) { return pathOf(data) != "", nil },
		Init:     initFs,
		InitData: func(e *Element) any { return e.FullPath() },
	}, false)

	MustRegister(&Type{
		Name: TypeFile,
		Base: TypeFs,
		Leaf: true,
		Test: func(data any, _ *Element) (bool, error) {
			p := pathOf(data)
			return p != "" && !pathcache.IsDir(p), nil
		},
	}, false)

	MustRegister(&Type{
		Name: TypeDirectory,
		Base: TypeFs,
		Test: func(data any, _ *Element) (bool, error) {
			p := pathOf(data)
			return p != "" && pathcache.IsDir(p), nil
		},
		Children: directoryChildren,
	}, false)
}

func pathOf(data any) string {
	s, _ := data.(string)
	return s
}

// initFs derives name, fullPath, baseName and ext from a path.
func initFs(e *Element, data any) error {
	p := pathOf(data)
	if p == "" {
		return os.ErrInvalid
	}
	p = filepath.Clean(p)
	name := filepath.Base(p)
	ext := strings.TrimPrefix(filepath.Ext(name), ".")

	e.vars[VarName] = name
	e.vars[VarFullPath] = p
	e.vars["baseName"] = strings.TrimSuffix(name, filepath.Ext(name))
	e.vars["ext"] = ext
	return nil
}

func directoryChildren(e *Element) ([]*Element, error) {
	entries, err := os.ReadDir(e.FullPath())
	if err != nil {
		return nil, err
	}
	children := make([]*Element, 0, len(entries))
	for _, entry := range entries {
		p := filepath.Join(e.FullPath(), entry.Name())
		if mode, ok := entryMode(p, entry); ok {
			pathcache.Set(p, "exists", true)
			pathcache.Set(p, "isDir", mode.IsDir())
			pathcache.Set(p, "isFile", mode.IsRegular())
		}

		child, err := Create(p, e)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

// entryMode returns the type bits of a directory entry, following symlinks.
// Dangling links report false and are left to the path cache.
func entryMode(p string, entry fs.DirEntry) (fs.FileMode, bool) {
	mode := entry.Type()
	if mode&fs.ModeSymlink == 0 {
		return mode, true
	}
	info, err := os.Stat(p)
	if err != nil {
		return 0, false
	}
	return info.Mode().Type(), true
}
