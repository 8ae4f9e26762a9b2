package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalBackend is a filesystem-rooted Backend. A directory walk has
// no ecosystem library in the retrieved pack that improves on
// filepath.WalkDir, so this backend is the justified stdlib exception
// (see DESIGN.md).
type LocalBackend struct {
	root string
}

// NewLocalBackend constructs a LocalBackend rooted at root.
func NewLocalBackend(root string) *LocalBackend {
	return &LocalBackend{root: root}
}

func (b *LocalBackend) abs(path string) string {
	return filepath.Join(b.root, filepath.FromSlash(path))
}

func (b *LocalBackend) Put(_ context.Context, path string, data io.Reader, _ int64) error {
	full := b.abs(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	f, err := os.Create(full)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, data)
	return err
}

func (b *LocalBackend) Get(_ context.Context, path string) (io.ReadCloser, error) {
	return os.Open(b.abs(path))
}

// Delete removes a single object; absence is not an error (spec §4.1
// "Deleting a video's directory is idempotent and must not fail on
// missing files").
func (b *LocalBackend) Delete(_ context.Context, path string) error {
	err := os.Remove(b.abs(path))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (b *LocalBackend) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(b.abs(path))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (b *LocalBackend) Size(_ context.Context, path string) (int64, error) {
	info, err := os.Stat(b.abs(path))
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (b *LocalBackend) WalkRoot(_ context.Context, root string) ([]Entry, error) {
	full := b.abs(root)
	var entries []Entry
	err := filepath.WalkDir(full, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(b.root, path)
		if err != nil {
			return err
		}
		entries = append(entries, Entry{Path: filepath.ToSlash(rel), Size: info.Size()})
		return nil
	})
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return entries, nil
}

// DeletePrefix removes every file under the given prefix, then prunes
// now-empty parent directories up to (but not including) the backend
// root (spec §4.11 "delete audio file and, if empty, its parent dir").
func (b *LocalBackend) DeletePrefix(_ context.Context, prefix string) error {
	full := b.abs(prefix)
	if err := os.RemoveAll(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	dir := filepath.Dir(strings.TrimSuffix(full, string(filepath.Separator)))
	for dir != b.root && strings.HasPrefix(dir, b.root) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			break
		}
		if err := os.Remove(dir); err != nil {
			break
		}
		dir = filepath.Dir(dir)
	}
	return nil
}
