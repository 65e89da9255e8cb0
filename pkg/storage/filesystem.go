package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// PartialSuffix marks files still being written.
const PartialSuffix = ".part"

const maxFilenameBytes = 200

// LocalStorage persists downloaded reports on disk under a base directory.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./downloads"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create download directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

// SaveStream copies r into filename under the base dir. Data goes to a
// temporary partial file first; the handle is closed and the partial file
// removed on every failure path, so a failed save leaves nothing behind.
func (s *LocalStorage) SaveStream(filename string, r io.Reader) (path string, err error) {
	name := SanitizeFilename(filename)
	if name == "" {
		return "", fmt.Errorf("empty filename")
	}
	target := filepath.Join(s.baseDir, name)

	tmp, err := os.CreateTemp(s.baseDir, name+".*"+PartialSuffix)
	if err != nil {
		return "", fmt.Errorf("create partial file: %w", err)
	}
	tmpPath := tmp.Name()
	closed := false
	defer func() {
		if !closed {
			_ = tmp.Close()
		}
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = io.Copy(tmp, r); err != nil {
		return "", fmt.Errorf("write report stream: %w", err)
	}
	closed = true
	if err = tmp.Close(); err != nil {
		return "", fmt.Errorf("close partial file: %w", err)
	}
	if err = os.Rename(tmpPath, target); err != nil {
		return "", fmt.Errorf("finalise report file: %w", err)
	}
	return target, nil
}

// CleanupPartials removes partial files older than ttl left behind by an
// interrupted process and returns the deleted names.
func (s *LocalStorage) CleanupPartials(ttl time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-ttl)
	deleted := make([]string, 0)
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("cleanup partial files: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), PartialSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("cleanup partial files: %w", err)
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.baseDir, entry.Name())); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("cleanup partial files: %w", err)
		}
		deleted = append(deleted, entry.Name())
	}
	return deleted, nil
}

// Path exposes the absolute path a file would be saved to.
func (s *LocalStorage) Path(filename string) string {
	return filepath.Join(s.baseDir, SanitizeFilename(filename))
}

// SanitizeFilename replaces path separators and characters that are
// invalid on common filesystems, the way browsers rewrite download names.
func SanitizeFilename(raw string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_")
	result := strings.TrimSpace(replacer.Replace(raw))
	if result == "." || result == ".." {
		return ""
	}
	if len(result) <= maxFilenameBytes {
		return result
	}
	ext := filepath.Ext(result)
	if len(ext) >= maxFilenameBytes/2 {
		ext = ""
	}
	stem := result[:len(result)-len(ext)]
	budget := maxFilenameBytes - len(ext)
	cut := 0
	for i := range stem {
		if i > budget {
			break
		}
		cut = i
	}
	return strings.TrimSpace(stem[:cut]) + ext
}
