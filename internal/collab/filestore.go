package collab

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// DiskFileStore writes uploads under a base directory and serves them by
// relative URL. It stands in for the real storage collaborator in the
// server binary and in tests.
type DiskFileStore struct {
	Dir     string
	BaseURL string
}

func NewDiskFileStore(dir, baseURL string) (*DiskFileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskFileStore{Dir: dir, BaseURL: baseURL}, nil
}

func (s *DiskFileStore) Store(ctx context.Context, name, contentType string, r io.Reader) (StoredFile, error) {
	id := uuid.NewString()
	stored := id + "_" + filepath.Base(name)

	f, err := os.Create(filepath.Join(s.Dir, stored))
	if err != nil {
		return StoredFile{}, err
	}
	defer f.Close()

	n, err := io.Copy(f, r)
	if err != nil {
		os.Remove(f.Name())
		return StoredFile{}, err
	}

	return StoredFile{
		FileURL:  fmt.Sprintf("%s/%s", s.BaseURL, stored),
		FileName: name,
		FileType: contentType,
		FileSize: n,
	}, nil
}
