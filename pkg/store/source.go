package store

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// File is one configuration document as read from a source. A file that
// could not be read carries Err and is reported as unreadable; it does not
// fail the load.
type File struct {
	Name string
	Data []byte
	Err  error
}

// Source lists every configuration document to load. An error from Files
// means the source as a whole is unavailable and the current snapshot is kept.
type Source interface {
	Files(ctx context.Context) ([]File, error)
}

// DirSource reads every regular file below a directory. No file is skipped
// for its name or extension; content decides what a file is.
type DirSource struct {
	Dir string
}

// Root returns the directory the source reads, for watching.
func (s DirSource) Root() string { return s.Dir }

func (s DirSource) Files(ctx context.Context) ([]File, error) {
	info, err := os.Stat(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("checking directory %s: %w", s.Dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", s.Dir)
	}
	return readTree(ctx, os.DirFS(s.Dir), ".")
}

// FSSource reads every regular file below Root in an fs.FS, for embedded
// configuration.
type FSSource struct {
	FS   fs.FS
	Root string
}

func (s FSSource) Files(ctx context.Context) ([]File, error) {
	root := s.Root
	if root == "" {
		root = "."
	}
	if _, err := fs.Stat(s.FS, root); err != nil {
		return nil, fmt.Errorf("checking %s: %w", root, err)
	}
	return readTree(ctx, s.FS, root)
}

// MemSource serves documents from memory, keyed by name.
type MemSource map[string][]byte

func (s MemSource) Files(ctx context.Context) ([]File, error) {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)

	files := make([]File, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		files = append(files, File{Name: name, Data: s[name]})
	}
	return files, nil
}

// readTree walks fsys in lexical order. Per-file read errors are attached to
// the file; only a walk failure at the root is returned.
func readTree(ctx context.Context, fsys fs.FS, root string) ([]File, error) {
	var files []File
	err := fs.WalkDir(fsys, root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == root {
				return err
			}
			files = append(files, File{Name: path, Err: err})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			// Follow symlinks; skip sockets, pipes and devices.
			info, statErr := fs.Stat(fsys, path)
			if statErr != nil {
				files = append(files, File{Name: filepath.ToSlash(path), Err: statErr})
				return nil
			}
			if !info.Mode().IsRegular() {
				return nil
			}
		}
		data, readErr := fs.ReadFile(fsys, path)
		files = append(files, File{Name: filepath.ToSlash(path), Data: data, Err: readErr})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	return files, nil
}
