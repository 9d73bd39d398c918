package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnvConfigPath names the environment variable that points at the config file.
const EnvConfigPath = "LEXGATE_CONFIG"

// DiscoverConfigPath finds the config file by checking standard locations.
// Priority order: $LEXGATE_CONFIG, ~/.config/lexgate/config.yaml,
// /etc/lexgate/config.yaml, ./config.yaml. The --config flag, when given,
// bypasses discovery entirely.
func DiscoverConfigPath() (string, error) {
	return firstExisting(configCandidates())
}

func configCandidates() []string {
	var candidates []string
	if path := os.Getenv(EnvConfigPath); path != "" {
		candidates = append(candidates, path)
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".config", "lexgate", "config.yaml"))
	}
	return append(candidates, "/etc/lexgate/config.yaml", "./config.yaml")
}

func firstExisting(candidates []string) (string, error) {
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no config found (checked: %v)", candidates)
}
