package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Scopes a token may be granted.
var validScopes = map[string]bool{"check": true, "preferences": true, "*": true}

// Load reads the configuration at configPath, merges its includes on top of
// the built-in defaults, verifies checksums when a manifest exists and
// validates the result.
func Load(configPath string) (*Config, error) {
	absPath, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}

	cfg := Defaults()
	var files []string
	if err := decodeFile(cfg, absPath, map[string]bool{}, &files); err != nil {
		return nil, err
	}
	cfg.Include = nil
	cfg.SourceFiles = files

	if err := verifyChecksums(absPath, files); err != nil {
		return nil, err
	}

	normalize(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ListFiles returns every file the configuration at configPath is assembled
// from, root first, without verifying or validating them.
func ListFiles(configPath string) ([]string, error) {
	absPath, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}
	var files []string
	if err := decodeFile(Defaults(), absPath, map[string]bool{}, &files); err != nil {
		return nil, err
	}
	return files, nil
}

func resolveConfigPath(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}
	return absPath, nil
}

// decodeFile decodes path onto cfg, then each of its includes in order, so
// later files override earlier ones field by field. Lists are replaced, not
// appended. stack holds the files currently being decoded for cycle detection.
func decodeFile(cfg *Config, path string, stack map[string]bool, files *[]string) error {
	if stack[path] {
		return fmt.Errorf("circular include detected: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	interpolated := []byte(interpolateEnv(string(data)))

	var head struct {
		Include []string `yaml:"include"`
	}
	if err := yaml.Unmarshal(interpolated, &head); err != nil {
		return fmt.Errorf("failed to parse YAML in %s: %w", path, err)
	}
	if err := yaml.Unmarshal(interpolated, cfg); err != nil {
		return fmt.Errorf("failed to parse YAML in %s: %w", path, err)
	}
	*files = append(*files, path)

	stack[path] = true
	defer delete(stack, path)

	baseDir := filepath.Dir(path)
	for i, include := range head.Include {
		resolved := include
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(baseDir, resolved)
		}
		if _, err := os.Stat(resolved); err != nil {
			return fmt.Errorf("include[%d]: file not found: %s\n"+
				"Referenced from: %s", i, resolved, path)
		}
		if err := decodeFile(cfg, resolved, stack, files); err != nil {
			return fmt.Errorf("include[%d] (%s): %w", i, include, err)
		}
	}
	return nil
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is so validation can report them.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

func normalize(cfg *Config) {
	cfg.Service.LogLevel = strings.ToLower(cfg.Service.LogLevel)
	cfg.Service.LogFormat = strings.ToLower(cfg.Service.LogFormat)
	for _, p := range []*ProviderConfig{&cfg.Grammar, &cfg.Speller} {
		if p.Extension != "" && !strings.HasPrefix(p.Extension, ".") {
			p.Extension = "." + p.Extension
		}
	}
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.LogFormat != "json" && cfg.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	if !cfg.Grammar.Enabled && !cfg.Speller.Enabled {
		return errors.New("at least one of grammar or speller must be enabled")
	}
	if err := validateProvider("grammar", cfg.Grammar); err != nil {
		return err
	}
	if err := validateProvider("speller", cfg.Speller); err != nil {
		return err
	}

	if cfg.API.Enabled {
		if _, _, err := net.SplitHostPort(cfg.API.Listen); err != nil {
			return fmt.Errorf("api.listen: invalid address %q: %w", cfg.API.Listen, err)
		}
		if cfg.API.RequestTimeout <= 0 {
			return errors.New("api.request_timeout must be positive")
		}
		if err := unresolved("api.auth.api_key", cfg.API.Auth.APIKey); err != nil {
			return err
		}
		for i, tok := range cfg.API.Auth.Tokens {
			field := fmt.Sprintf("api.auth.tokens[%d]", i)
			if tok.Token == "" {
				return fmt.Errorf("%s.token is required", field)
			}
			if err := unresolved(field+".token", tok.Token); err != nil {
				return err
			}
			if len(tok.Scopes) == 0 {
				return fmt.Errorf("%s.scopes must be non-empty", field)
			}
			for _, scope := range tok.Scopes {
				if !validScopes[scope] {
					return fmt.Errorf("%s.scopes: unknown scope %q (want check, preferences or *)", field, scope)
				}
			}
		}
	}
	return nil
}

func validateProvider(name string, p ProviderConfig) error {
	if !p.Enabled {
		return nil
	}
	if p.Executable == "" {
		return fmt.Errorf("%s.executable is required", name)
	}
	if p.DataDir == "" {
		return fmt.Errorf("%s.data_dir is required", name)
	}
	if p.Extension == "" || p.Extension == "." {
		return fmt.Errorf("%s.extension is required", name)
	}
	if p.QueueSize <= 0 {
		return fmt.Errorf("%s.queue_size must be positive (got %d)", name, p.QueueSize)
	}
	if p.IntrospectTimeout < 0 {
		return fmt.Errorf("%s.introspect_timeout must not be negative", name)
	}
	for _, field := range []struct{ name, value string }{
		{"executable", p.Executable},
		{"data_dir", p.DataDir},
	} {
		if err := unresolved(name+"."+field.name, field.value); err != nil {
			return err
		}
	}
	return nil
}

// unresolved reports a ${VAR} placeholder left in value by interpolateEnv.
func unresolved(field, value string) error {
	if matches := envVarPattern.FindStringSubmatch(value); len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	return nil
}
