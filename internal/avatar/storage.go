package avatar

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Storage holds avatar files named {userID}.{ext}.
type Storage interface {
	// Find lists stored names containing userID.
	Find(ctx context.Context, userID string) ([]string, error)
	// Save moves the local file at src into storage under name.
	Save(ctx context.Context, src, name string) error
	Remove(ctx context.Context, name string) error
	// URL is the address recorded on the user for name.
	URL(name string) string
}

// LocalStorage keeps avatars in a directory served statically under /avatars.
type LocalStorage struct {
	dir string
}

// NewLocalStorage creates dir when missing.
func NewLocalStorage(dir string) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create avatar dir: %w", err)
	}
	return &LocalStorage{dir: dir}, nil
}

// Dir returns the directory backing the storage.
func (s *LocalStorage) Dir() string { return s.dir }

func (s *LocalStorage) Find(_ context.Context, userID string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.Contains(e.Name(), userID) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func (s *LocalStorage) Save(_ context.Context, src, name string) error {
	dst := filepath.Join(s.dir, name)
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	// Rename fails across filesystems, e.g. a tmpfs upload dir.
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func (s *LocalStorage) Remove(_ context.Context, name string) error {
	err := os.Remove(filepath.Join(s.dir, name))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *LocalStorage) URL(name string) string {
	return path.Join("avatars", name)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
