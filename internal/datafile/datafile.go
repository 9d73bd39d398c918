// Package datafile discovers per-language data files. The language code of a
// file is its name without the extension.
package datafile

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
)

// File is one discovered language data file.
type File struct {
	Language string `json:"language"`
	Path     string `json:"path"`
}

// Discover returns the files in dir ending in ext, sorted by language code.
// Subdirectories and hidden files are ignored.
func Discover(dir, ext string) ([]File, error) {
	if ext == "" {
		return nil, fmt.Errorf("data file extension is empty")
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data dir %q: %w", dir, err)
	}
	entries, err := os.ReadDir(absDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data dir %s: %w", absDir, err)
	}

	var files []File
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ext) {
			continue
		}
		lang := strings.TrimSuffix(name, ext)
		if lang == "" {
			continue
		}
		files = append(files, File{Language: lang, Path: filepath.Join(absDir, name)})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Language < files[j].Language })
	return files, nil
}

// Fingerprint returns the hex BLAKE3 hash of the file at path.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open data file: %w", err)
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash data file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
