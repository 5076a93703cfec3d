// Package docstore keeps uploaded price-list documents on local disk,
// addressed by the sha256 of their content so repeated uploads of the
// same file land on the same blob.
package docstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// Store writes blob under the company's directory and returns a stable
// reference of the form "<companyID>/<sha256><ext>". Writing the same
// content twice is a no-op.
func (s *Store) Store(companyID, filename string, blob []byte) (string, error) {
	if companyID == "" {
		return "", fmt.Errorf("docstore: empty company id")
	}
	if len(blob) == 0 {
		return "", fmt.Errorf("docstore: empty document %q", filename)
	}

	sum := sha256.Sum256(blob)
	name := hex.EncodeToString(sum[:]) + strings.ToLower(filepath.Ext(filename))
	ref := filepath.ToSlash(filepath.Join(companyID, name))

	dir := filepath.Join(s.baseDir, companyID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, blob, 0o644); err != nil {
			return "", err
		}
	}
	return ref, nil
}

func (s *Store) Download(ref string) ([]byte, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("docstore: read %s: %w", ref, err)
	}
	return data, nil
}

func (s *Store) Delete(ref string) error {
	path, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// resolve rejects refs that would escape the base directory.
func (s *Store) resolve(ref string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(ref))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("docstore: invalid ref %q", ref)
	}
	return filepath.Join(s.baseDir, clean), nil
}
