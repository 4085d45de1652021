package tasks

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ormasoftchile/kombi/pkg/ctxlog"
	"github.com/ormasoftchile/kombi/pkg/element"
	"github.com/ormasoftchile/kombi/pkg/pathcache"
	"github.com/ormasoftchile/kombi/pkg/task"
)

type copyOptions struct {
	Overwrite bool `mapstructure:"overwrite"`
}

// copy duplicates each file to its target, creating parent directories.
// Existing targets are kept unless the overwrite option is set.
func copyDefinition() *task.Definition {
	return &task.Definition{
		Name:    "copy",
		Options: []task.Option{{Name: "overwrite", Value: false}},
		ProcessElement: func(ctx context.Context, t *task.Task, e *element.Element) ([]*element.Element, error) {
			var opts copyOptions
			if err := decodeOptions(t, &opts); err != nil {
				return nil, err
			}
			target, err := targetPath(t, e)
			if err != nil {
				return nil, err
			}
			log := ctxlog.FromContext(ctx).With("task", t.Type(), "element", e.FullPath(), "path", target)
			if _, err := os.Stat(target); err == nil && !opts.Overwrite {
				log.Debug("target exists, skipping")
			} else {
				if err := copyFile(e.FullPath(), target); err != nil {
					return nil, err
				}
				log.Debug("copied")
			}
			pathcache.Set(target, "exists", true)
			pathcache.Set(target, "isFile", true)
			pathcache.Set(target, "isDir", false)
			out, err := element.CreateFromPath(target)
			if err != nil {
				return nil, err
			}
			return []*element.Element{out}, nil
		},
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("copy: %s is a directory", src)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// remove deletes the path of each element and passes the element through.
func removeDefinition() *task.Definition {
	return &task.Definition{
		Name: "remove",
		ProcessElement: func(ctx context.Context, t *task.Task, e *element.Element) ([]*element.Element, error) {
			if err := os.RemoveAll(e.FullPath()); err != nil {
				return nil, err
			}
			pathcache.Set(e.FullPath(), "exists", false)
			ctxlog.FromContext(ctx).Debug("removed", "task", t.Type(), "element", e.FullPath())
			return []*element.Element{e}, nil
		},
	}
}

// createDirectory creates the target directory of each element.
func createDirectoryDefinition() *task.Definition {
	return &task.Definition{
		Name: "createDirectory",
		ProcessElement: func(ctx context.Context, t *task.Task, e *element.Element) ([]*element.Element, error) {
			target, err := targetPath(t, e)
			if err != nil {
				return nil, err
			}
			if err := os.MkdirAll(target, 0o755); err != nil {
				return nil, err
			}
			pathcache.Set(target, "exists", true)
			pathcache.Set(target, "isDir", true)
			pathcache.Set(target, "isFile", false)
			out, err := element.New(element.TypeDirectory, target, nil)
			if err != nil {
				return nil, err
			}
			return []*element.Element{out}, nil
		},
	}
}
