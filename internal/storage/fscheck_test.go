package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateLocalFilesystem(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "missing", "dir", "lexgate.db")

	tests := []struct {
		name    string
		fsType  string
		detErr  error
		wantErr string
	}{
		{name: "local", fsType: "0xef53"},
		{name: "nfs", fsType: "nfs", wantErr: "network filesystem"},
		{name: "smb case insensitive", fsType: " SMB2 ", wantErr: "network filesystem"},
		{name: "detector error", detErr: errors.New("statfs failed"), wantErr: "statfs failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var inspected string
			err := validateLocalFilesystemWith(dbPath, func(path string) (string, error) {
				inspected = path
				return tt.fsType, tt.detErr
			})
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			// The nearest existing ancestor is inspected, not the missing file.
			assert.Equal(t, filepath.Dir(filepath.Dir(filepath.Dir(dbPath))), inspected)
		})
	}
}
