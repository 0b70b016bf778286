package invoice

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Storage persists uploaded invoice documents keyed by their upload ID.
type Storage interface {
	// Save stores a document under its upload ID and returns the ID
	Save(fileID string, data []byte) (string, error)

	// Get retrieves a document by upload ID
	Get(fileID string) ([]byte, error)

	// Delete removes a document by upload ID
	Delete(fileID string) error
}

// LocalStorage keeps documents on the local filesystem, one file per
// upload ID. Invoices are financial records, so both the directory and
// the files are owner-only.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates the document directory if needed.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0700); err != nil {
		return nil, fmt.Errorf("creating document directory: %w", err)
	}

	return &LocalStorage{
		basePath: basePath,
	}, nil
}

// documentPath resolves an upload ID to its on-disk path. IDs are opaque
// single path elements; anything that could traverse out of the
// directory is rejected.
func (l *LocalStorage) documentPath(fileID string) (string, error) {
	if fileID == "" || fileID == "." || fileID == ".." ||
		strings.ContainsAny(fileID, `/\`) {
		return "", fmt.Errorf("invalid file id %q", fileID)
	}
	return filepath.Join(l.basePath, fileID), nil
}

// Save writes a document owner-readable only.
func (l *LocalStorage) Save(fileID string, data []byte) (string, error) {
	path, err := l.documentPath(fileID)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("writing document: %w", err)
	}
	return fileID, nil
}

// Get reads a document back by upload ID.
func (l *LocalStorage) Get(fileID string) ([]byte, error) {
	path, err := l.documentPath(fileID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}
	return data, nil
}

// Delete removes a document by upload ID.
func (l *LocalStorage) Delete(fileID string) error {
	path, err := l.documentPath(fileID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}
