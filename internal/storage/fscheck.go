package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var networkFilesystems = map[string]struct{}{
	"cifs":  {},
	"nfs":   {},
	"smbfs": {},
	"smb2":  {},
}

// validateLocalFilesystem rejects cache paths on network filesystems, where
// SQLite locking is unreliable.
func validateLocalFilesystem(path string) error {
	return validateLocalFilesystemWith(path, detectFilesystemType)
}

func validateLocalFilesystemWith(path string, detector func(string) (string, error)) error {
	inspectPath, err := nearestExistingPath(path)
	if err != nil {
		return fmt.Errorf("resolve cache path %q: %w", path, err)
	}

	fsType, err := detector(inspectPath)
	if err != nil {
		return fmt.Errorf("detect filesystem for %q: %w", inspectPath, err)
	}

	if _, network := networkFilesystems[strings.ToLower(strings.TrimSpace(fsType))]; network {
		return fmt.Errorf("cache path %q is on network filesystem %q; set state.path to a local file", path, fsType)
	}
	return nil
}

func nearestExistingPath(path string) (string, error) {
	candidate, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for {
		_, err := os.Stat(candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(candidate)
		if parent == candidate {
			return "", fmt.Errorf("no existing parent for %q", path)
		}
		candidate = parent
	}
}
