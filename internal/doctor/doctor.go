// Package doctor runs preflight checks on a loaded lexgate configuration:
// the things config.Load cannot know without looking at the host.
package doctor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mattjoyce/lexgate/internal/config"
	"github.com/mattjoyce/lexgate/internal/datafile"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
	// Languages found per enabled provider.
	Languages map[string][]string `json:"languages,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor inspects the host against a loaded config.
type Doctor struct {
	cfg      *config.Config
	lookPath func(string) (string, error)
}

// New creates a Doctor for a config returned by config.Load.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg, lookPath: exec.LookPath}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true, Languages: map[string][]string{}}

	d.checkProvider(r, "grammar", d.cfg.Grammar)
	d.checkProvider(r, "speller", d.cfg.Speller)
	d.warnNoIntrospection(r)
	d.checkState(r)
	d.checkAPI(r)
	d.warnUnlocked(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// checkProvider verifies the executable and the data files of one provider.
func (d *Doctor) checkProvider(r *Result, name string, pc config.ProviderConfig) {
	if !pc.Enabled {
		return
	}

	if _, err := d.lookPath(pc.Executable); err != nil {
		d.addError(r, "provider", name+".executable",
			fmt.Sprintf("%q is not an executable on this host: %v", pc.Executable, err))
	}

	info, err := os.Stat(pc.DataDir)
	switch {
	case err != nil:
		d.addError(r, "provider", name+".data_dir", err.Error())
		return
	case !info.IsDir():
		d.addError(r, "provider", name+".data_dir", fmt.Sprintf("%s is not a directory", pc.DataDir))
		return
	}

	files, err := datafile.Discover(pc.DataDir, pc.Extension)
	if err != nil {
		d.addError(r, "provider", name+".data_dir", err.Error())
		return
	}
	langs := make([]string, 0, len(files))
	for _, f := range files {
		langs = append(langs, f.Language)
	}
	r.Languages[name] = langs
	if len(files) == 0 {
		d.addWarning(r, "provider", name+".data_dir",
			fmt.Sprintf("no *%s files in %s; every %s request will be unsupported", pc.Extension, pc.DataDir, name))
	}
}

func (d *Doctor) warnNoIntrospection(r *Result) {
	if d.cfg.Grammar.Enabled && d.cfg.Grammar.IntrospectFlag == "" {
		d.addWarning(r, "provider", "grammar.introspect_flag",
			"introspection disabled; preference tables will be empty")
	}
}

func (d *Doctor) checkState(r *Result) {
	path := d.cfg.State.Path
	if path == "" {
		d.addWarning(r, "state", "state.path", "no state path; preference tables are re-extracted on every start")
		return
	}
	if path == ":memory:" {
		return
	}
	dir := filepath.Dir(path)
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		d.addError(r, "state", "state.path", fmt.Sprintf("%s is not a directory", dir))
	}
}

// checkAPI flags exposed or inconsistent API settings.
func (d *Doctor) checkAPI(r *Result) {
	api := d.cfg.API
	if !api.Enabled {
		return
	}

	if api.Auth.APIKey == "" && len(api.Auth.Tokens) == 0 {
		host, _, _ := net.SplitHostPort(api.Listen)
		if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
			d.addWarning(r, "api", "api.auth",
				fmt.Sprintf("API listens on %s with no authentication configured", api.Listen))
		}
	}

	seen := make(map[string]int, len(api.Auth.Tokens))
	for i, t := range api.Auth.Tokens {
		field := fmt.Sprintf("api.auth.tokens[%d].token", i)
		if j, dup := seen[t.Token]; dup {
			d.addError(r, "api", field, fmt.Sprintf("duplicates api.auth.tokens[%d]", j))
			continue
		}
		seen[t.Token] = i
		if api.Auth.APIKey != "" && t.Token == api.Auth.APIKey {
			d.addWarning(r, "api", field, "token equals api_key and is granted every scope")
		}
	}
}

// warnUnlocked notes configs that have no checksum manifest.
func (d *Doctor) warnUnlocked(r *Result) {
	if len(d.cfg.SourceFiles) == 0 {
		return
	}
	root := d.cfg.SourceFiles[0]
	_, err := config.LoadChecksums(filepath.Dir(root))
	if errors.Is(err, fs.ErrNotExist) {
		d.addWarning(r, "integrity", "",
			fmt.Sprintf("configuration is not locked; run: lexgate config lock --config %s", root))
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
	} else if r.Valid {
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	} else {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}
	for _, name := range []string{"grammar", "speller"} {
		if langs, ok := r.Languages[name]; ok && len(langs) > 0 {
			fmt.Fprintf(&b, "  %s: %s\n", name, strings.Join(langs, ", "))
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
