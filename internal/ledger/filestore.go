package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jkivela/packwatch/internal/errors"
)

// FileStore persists the ledger as a JSON document on local disk. The
// version token is a digest of the file contents, so a concurrent writer is
// detected on the next conditional save.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed ledger store at path. The file does not
// need to exist yet.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the ledger document. A missing file yields an empty document
// with an empty version.
func (fs *FileStore) Load(_ context.Context) (Document, Version, error) {
	data, err := os.ReadFile(fs.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Document{}, "", nil
		}
		return nil, "", errors.New(err).
			Component("ledger").
			Category(errors.CategoryFileIO).
			Context("path", fs.path).
			Build()
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, "", errors.New(err).
			Component("ledger").
			Category(errors.CategoryFileIO).
			Context("path", fs.path).
			Build()
	}
	return doc, digest(data), nil
}

// Save writes the document atomically via a temp file rename, but only if
// the file still matches the expected version.
func (fs *FileStore) Save(_ context.Context, doc Document, expected Version) (Version, error) {
	current, err := os.ReadFile(fs.path)
	switch {
	case err == nil:
		if digest(current) != expected {
			return "", ErrVersionConflict
		}
	case os.IsNotExist(err):
		if expected != "" {
			return "", ErrVersionConflict
		}
	default:
		return "", errors.New(err).
			Component("ledger").
			Category(errors.CategoryFileIO).
			Context("path", fs.path).
			Build()
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal ledger: %w", err)
	}

	dir := filepath.Dir(fs.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.New(err).
			Component("ledger").
			Category(errors.CategoryFileIO).
			Context("path", dir).
			Build()
	}

	tmp, err := os.CreateTemp(dir, ".ledger-*.json")
	if err != nil {
		return "", errors.New(err).
			Component("ledger").
			Category(errors.CategoryFileIO).
			Build()
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", errors.New(err).
			Component("ledger").
			Category(errors.CategoryFileIO).
			Build()
	}
	if err := tmp.Close(); err != nil {
		return "", errors.New(err).
			Component("ledger").
			Category(errors.CategoryFileIO).
			Build()
	}
	if err := os.Rename(tmpName, fs.path); err != nil {
		return "", errors.New(err).
			Component("ledger").
			Category(errors.CategoryFileIO).
			Context("path", fs.path).
			Build()
	}

	return digest(data), nil
}

func digest(data []byte) Version {
	sum := sha256.Sum256(data)
	return Version(hex.EncodeToString(sum[:]))
}
