//go:build linux

package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectFilesystemType(t *testing.T) {
	fsType, err := detectFilesystemType(t.TempDir())
	require.NoError(t, err)
	assert.NotEmpty(t, fsType)

	_, err = detectFilesystemType(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorContains(t, err, "statfs")
}
