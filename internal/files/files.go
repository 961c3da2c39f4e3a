// Package files stores shared uploads and oversized chat messages on disk.
package files

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store writes files under one directory and hands out public URLs for them.
type Store struct {
	dir     string
	baseURL string
}

func NewStore(dir, baseURL string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// SaveUpload stores an uploaded file under a unique sanitized name and
// returns its download URL.
func (s *Store) SaveUpload(name string, r io.Reader) (string, error) {
	unique := fmt.Sprintf("%s_%s", uuid.NewString()[:8], sanitize(name))
	f, err := os.Create(filepath.Join(s.dir, unique))
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	return s.url(unique), nil
}

// SaveText offloads an oversized chat message to a text file.
func (s *Store) SaveText(nickname, content string) (string, error) {
	unique := fmt.Sprintf("large_%s_%s.txt", uuid.NewString()[:8], sanitize(nickname))
	if err := os.WriteFile(filepath.Join(s.dir, unique), []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write large message: %w", err)
	}
	return s.url(unique), nil
}

// Path resolves a download name inside the store, refusing anything that
// could escape the directory.
func (s *Store) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	return filepath.Join(s.dir, name), nil
}

func (s *Store) url(name string) string {
	return s.baseURL + "/uploads/" + name
}

// sanitize keeps file names portable: anything outside [a-zA-Z0-9._-] becomes
// an underscore.
func sanitize(name string) string {
	name = filepath.Base(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		out = "file"
	}
	return out
}
