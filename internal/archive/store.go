// Package archive keeps rendered courtesy PDFs on local disk, one file per
// saved invoice.
package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store persists PDF bytes under a base directory and hands out references
// that stay valid for the life of the file.
type Store struct {
	dir string
}

// NewStore creates the base directory when missing.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("archive: create dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Save writes the document and returns its reference. The file name carries
// the invoice number plus a random tail: numbers freed by a delete may be
// reused by a later save, and the old file must not be overwritten.
func (s *Store) Save(number string, data []byte) (string, error) {
	name := fmt.Sprintf("%s-%s.pdf", sanitize(number), uuid.NewString()[:8])
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("archive: write: %w", err)
	}
	return name, nil
}

// Open returns a reader over an archived document.
func (s *Store) Open(ref string) (io.ReadCloser, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

// Remove deletes an archived document. Missing files are not an error.
func (s *Store) Remove(ref string) error {
	path, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("archive: remove: %w", err)
	}
	return nil
}

// resolve rejects references that escape the base directory.
func (s *Store) resolve(ref string) (string, error) {
	if ref == "" || ref != filepath.Base(ref) {
		return "", fmt.Errorf("archive: invalid reference %q", ref)
	}
	return filepath.Join(s.dir, ref), nil
}

func sanitize(number string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, number)
}
