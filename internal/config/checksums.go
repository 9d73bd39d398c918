package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ChecksumFile is the manifest written next to the root config file.
const ChecksumFile = ".checksums"

// ChecksumManifest maps config file paths, relative to the root config's
// directory, to their BLAKE3 hashes.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// ChecksumReport captures what Lock hashed and where it wrote the manifest.
type ChecksumReport struct {
	ChecksumPath string
	Written      bool
	Hashes       map[string]string
}

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// VerifyFileHash verifies a file against an expected BLAKE3 hash.
func VerifyFileHash(filePath, expectedHash string) error {
	actualHash, err := ComputeBlake3Hash(filePath)
	if err != nil {
		return fmt.Errorf("failed to compute hash: %w", err)
	}
	if actualHash != expectedHash {
		return fmt.Errorf("hash mismatch for %s: expected %s, got %s",
			filepath.Base(filePath), expectedHash, actualHash)
	}
	return nil
}

// Lock hashes the root config at configPath and all of its includes and
// writes the manifest. When dryRun is true nothing is written.
func Lock(configPath string, dryRun bool) (*ChecksumReport, error) {
	files, err := ListFiles(configPath)
	if err != nil {
		return nil, err
	}
	rootDir := filepath.Dir(files[0])

	manifest := ChecksumManifest{
		Version:     1,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Hashes:      make(map[string]string, len(files)),
	}
	for _, path := range files {
		rel, err := filepath.Rel(rootDir, path)
		if err != nil {
			return nil, fmt.Errorf("relative path for %s: %w", path, err)
		}
		hash, err := ComputeBlake3Hash(path)
		if err != nil {
			return nil, fmt.Errorf("failed to hash %s: %w", rel, err)
		}
		manifest.Hashes[rel] = hash
	}

	report := &ChecksumReport{
		ChecksumPath: filepath.Join(rootDir, ChecksumFile),
		Hashes:       manifest.Hashes,
	}
	if dryRun {
		return report, nil
	}

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checksums: %w", err)
	}
	if err := os.WriteFile(report.ChecksumPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write checksums: %w", err)
	}
	report.Written = true
	return report, nil
}

// LoadChecksums reads the manifest from dir. A missing manifest returns an
// error matching fs.ErrNotExist.
func LoadChecksums(dir string) (*ChecksumManifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ChecksumFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read checksums: %w", err)
	}

	var manifest ChecksumManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse checksums: %w", err)
	}
	if manifest.Version != 1 {
		return nil, fmt.Errorf("unsupported checksums version: %d", manifest.Version)
	}
	return &manifest, nil
}

// verifyChecksums checks every loaded file against the manifest next to the
// root config. Without a manifest there is nothing to verify.
func verifyChecksums(rootPath string, files []string) error {
	rootDir := filepath.Dir(rootPath)
	manifest, err := LoadChecksums(rootDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, path := range files {
		rel, err := filepath.Rel(rootDir, path)
		if err != nil {
			return fmt.Errorf("relative path for %s: %w", path, err)
		}
		expected, ok := manifest.Hashes[rel]
		if !ok {
			return fmt.Errorf("config file %s has no hash in %s\n"+
				"Run: lexgate config lock --config %s", rel, ChecksumFile, rootPath)
		}
		if err := VerifyFileHash(path, expected); err != nil {
			return fmt.Errorf("config verification failed for %s: %w\n"+
				"If you edited this file intentionally, run: lexgate config lock --config %s", rel, err, rootPath)
		}
	}
	return nil
}
