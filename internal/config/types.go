package config

import "time"

// Config represents the complete lexgate configuration.
type Config struct {
	// Include lists further YAML files merged on top of this one, resolved
	// relative to the including file.
	Include []string       `yaml:"include,omitempty"`
	Service ServiceConfig  `yaml:"service"`
	State   StateConfig    `yaml:"state"`
	API     APIConfig      `yaml:"api,omitempty"`
	Grammar ProviderConfig `yaml:"grammar"`
	Speller ProviderConfig `yaml:"speller"`

	// SourceFiles lists every file the config was assembled from, root first.
	SourceFiles []string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// StateConfig defines where the preference cache and PID lock live.
// An empty Path disables the cache.
type StateConfig struct {
	Path string `yaml:"path"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Listen         string        `yaml:"listen"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Auth           APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	// APIKey is a single bearer token with full access.
	// Prefer Tokens for scoped access.
	APIKey string     `yaml:"api_key"`
	Tokens []APIToken `yaml:"tokens,omitempty"`
}

// APIToken defines a bearer token and its scopes.
type APIToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// ProviderConfig describes one family of language workers: which executable
// to run, and where to find the per-language data files it is started with.
type ProviderConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Executable string   `yaml:"executable"`
	Args       []string `yaml:"args,omitempty"`
	DataDir    string   `yaml:"data_dir"`
	Extension  string   `yaml:"extension"`
	QueueSize  int      `yaml:"queue_size"`

	// Introspection is only run for providers with a non-empty flag.
	IntrospectFlag    string        `yaml:"introspect_flag,omitempty"`
	IntrospectTimeout time.Duration `yaml:"introspect_timeout,omitempty"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "lexgate",
			LogLevel:  "info",
			LogFormat: "json",
		},
		State: StateConfig{
			Path: "./data/lexgate.db",
		},
		API: APIConfig{
			Enabled:        false,
			Listen:         "127.0.0.1:8080",
			RequestTimeout: 30 * time.Second,
		},
		Grammar: DefaultGrammar(),
		Speller: DefaultSpeller(),
	}
}

// DefaultGrammar returns the divvun-checker provider defaults.
func DefaultGrammar() ProviderConfig {
	return ProviderConfig{
		Enabled:           true,
		Executable:        "divvun-checker",
		Args:              []string{"-a"},
		DataDir:           "./data/grammar",
		Extension:         ".zcheck",
		QueueSize:         64,
		IntrospectFlag:    "-p",
		IntrospectTimeout: 30 * time.Second,
	}
}

// DefaultSpeller returns the divvunspell provider defaults. Spellers are off
// unless configured.
func DefaultSpeller() ProviderConfig {
	return ProviderConfig{
		Enabled:    false,
		Executable: "divvunspell",
		Args:       []string{"suggest", "--archive"},
		DataDir:    "./data/speller",
		Extension:  ".zhfst",
		QueueSize:  64,
	}
}
