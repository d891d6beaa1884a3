// Package filestore keeps uploaded document payloads on disk, one directory
// per RAG instance, so an instance's files can be removed as a unit when the
// instance is deleted.
package filestore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

type Store struct {
	root string
}

func New(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("filestore root must not be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create filestore root failed: %w", err)
	}
	return &Store{root: root}, nil
}

// Save writes the payload under the instance's directory and returns the
// stored path. Write-once: an existing file with the same name is an error.
func (s *Store) Save(instanceID uint, filename string, r io.Reader) (string, error) {
	dir := s.instanceDir(instanceID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create instance dir failed: %w", err)
	}

	path := filepath.Join(dir, filepath.Base(filename))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create payload file failed: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write payload failed: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close payload file failed: %w", err)
	}
	return path, nil
}

// Open returns a reader over a stored payload.
func (s *Store) Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open payload failed: %w", err)
	}
	return f, nil
}

// RemoveInstance deletes the instance's whole payload directory.
func (s *Store) RemoveInstance(instanceID uint) error {
	if err := os.RemoveAll(s.instanceDir(instanceID)); err != nil {
		return fmt.Errorf("remove instance dir failed: %w", err)
	}
	return nil
}

func (s *Store) instanceDir(instanceID uint) string {
	return filepath.Join(s.root, strconv.FormatUint(uint64(instanceID), 10))
}
