package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stdout failed: %v", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stderr failed: %v", err)
	}

	os.Stdout = stdoutW
	os.Stderr = stderrW

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdoutBytes, _ := io.ReadAll(stdoutR)
	stderrBytes, _ := io.ReadAll(stderrR)

	_ = stdoutR.Close()
	_ = stderrR.Close()

	return code, string(stdoutBytes), string(stderrBytes)
}

const checkerScript = `#!/bin/sh
last=""
for a in "$@"; do last="$a"; done
if [ "$last" = "-p" ]; then
  echo "==== Toggles: ===="
  echo "==== Toggles: ===="
  echo "- [x] msyn-agr Agreement"
  exit 0
fi
lang=$(basename "$last" .zcheck)
while IFS= read -r line; do
  printf '{"text":"%s","errs":[["%s",0,1,"%s","",[],""]]}\n' "$line" "$lang" "$lang"
done
`

// writeTestConfig lays out a config dir with a fake grammar checker and
// data files for langs.
func writeTestConfig(t *testing.T, langs ...string) string {
	t.Helper()
	dir := t.TempDir()

	checker := filepath.Join(dir, "checker.sh")
	if err := os.WriteFile(checker, []byte(checkerScript), 0o755); err != nil {
		t.Fatal(err)
	}
	dataDir := filepath.Join(dir, "grammar")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, lang := range langs {
		if err := os.WriteFile(filepath.Join(dataDir, lang+".zcheck"), []byte(lang), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	configYAML := fmt.Sprintf(`
include:
  - grammar.yaml
state:
  path: %s
`, filepath.Join(dir, "state", "lexgate.db"))
	grammarYAML := fmt.Sprintf(`
grammar:
  enabled: true
  executable: %s
  data_dir: %s
  introspect_timeout: 5s
`, checker, dataDir)

	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(configYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "grammar.yaml"), []byte(grammarYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	return configPath
}

func TestRunConfigLockVerboseDryRun(t *testing.T) {
	configPath := writeTestConfig(t, "se")

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigLock([]string{"--config", configPath, "-v", "--dry-run"})
	})
	if code != 0 {
		t.Fatalf("runConfigLock() code = %d, stderr: %s", code, stderr)
	}

	hashPattern := regexp.MustCompile(`HASH grammar\.yaml: [a-f0-9]{64}`)
	if !hashPattern.MatchString(stdout) {
		t.Fatalf("stdout missing include hash: %s", stdout)
	}
	if !strings.Contains(stdout, "HASH config.yaml:") {
		t.Fatalf("stdout missing root hash: %s", stdout)
	}
	if !strings.Contains(stdout, "DRY-RUN .checksums:") {
		t.Fatalf("stdout missing dry-run line: %s", stdout)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(configPath), ".checksums")); !os.IsNotExist(err) {
		t.Fatal(".checksums should not be written in dry-run mode")
	}
}

func TestRunConfigLockThenTamper(t *testing.T) {
	configPath := writeTestConfig(t, "se")

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigLock([]string{"--config", configPath})
	})
	if code != 0 {
		t.Fatalf("runConfigLock() code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Successfully locked 2 file(s)") {
		t.Fatalf("unexpected stdout: %s", stdout)
	}

	code, _, stderr = captureOutputWithExitCode(t, func() int {
		return runConfigCheck([]string{"--config", configPath})
	})
	if code != 0 {
		t.Fatalf("locked config should check clean, stderr: %s", stderr)
	}

	grammarPath := filepath.Join(filepath.Dir(configPath), "grammar.yaml")
	f, err := os.OpenFile(grammarPath, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString("  queue_size: 1\n")
	_ = f.Close()

	code, _, stderr = captureOutputWithExitCode(t, func() int {
		return runConfigCheck([]string{"--config", configPath})
	})
	if code != 1 {
		t.Fatalf("tampered config should fail check, got code %d", code)
	}
	if !strings.Contains(stderr, "hash mismatch") {
		t.Fatalf("expected hash mismatch, got stderr: %s", stderr)
	}
}

func TestRunConfigCheckJSON(t *testing.T) {
	configPath := writeTestConfig(t, "se")

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigCheck([]string{"--config", configPath, "--json"})
	})
	if code != 0 {
		t.Fatalf("runConfigCheck() code = %d, stderr: %s", code, stderr)
	}

	var out struct {
		Valid    bool `json:"valid"`
		Warnings []struct {
			Category string `json:"category"`
		} `json:"warnings"`
		Languages map[string][]string `json:"languages"`
	}
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("invalid JSON output %q: %v", stdout, err)
	}
	if !out.Valid {
		t.Fatalf("expected valid config: %s", stdout)
	}
	if len(out.Warnings) != 1 || out.Warnings[0].Category != "integrity" {
		t.Fatalf("expected only the unlocked-config warning: %s", stdout)
	}
	if strings.Join(out.Languages["grammar"], ",") != "se" {
		t.Fatalf("unexpected languages: %s", stdout)
	}
}

func TestRunConfigCheckStrict(t *testing.T) {
	configPath := writeTestConfig(t, "se")

	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runConfigCheck([]string{"--config", configPath, "--strict"})
	})
	if code != 2 {
		t.Fatalf("warnings under --strict should exit 2, got %d: %s", code, stdout)
	}
	if !strings.Contains(stdout, "configuration is not locked") {
		t.Fatalf("stdout missing integrity warning: %s", stdout)
	}
}

func TestRunConfigShow(t *testing.T) {
	configPath := writeTestConfig(t, "se")

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigShow([]string{"--config", configPath})
	})
	if code != 0 {
		t.Fatalf("runConfigShow() code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "introspect_timeout: 5s") {
		t.Fatalf("resolved config missing include values: %s", stdout)
	}
	if strings.Contains(stdout, "include:") {
		t.Fatalf("resolved config should not list includes: %s", stdout)
	}
}

func TestRunLanguages(t *testing.T) {
	configPath := writeTestConfig(t, "sma", "se")

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runLanguages([]string{"--config", configPath})
	})
	if code != 0 {
		t.Fatalf("runLanguages() code = %d, stderr: %s", code, stderr)
	}

	var out struct {
		Grammar []string `json:"grammar"`
		Speller []string `json:"speller"`
	}
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("invalid JSON output %q: %v", stdout, err)
	}
	if strings.Join(out.Grammar, ",") != "se,sma" || out.Speller == nil || len(out.Speller) != 0 {
		t.Fatalf("unexpected languages: %+v", out)
	}
}

func TestRunGrammarCheck(t *testing.T) {
	configPath := writeTestConfig(t, "se", "sma")

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runGrammarCheck([]string{"--config", configPath, "--timeout", "5s", "sma", "buerie", "biejjie"})
	})
	if code != 0 {
		t.Fatalf("runGrammarCheck() code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, `"text": "buerie biejjie"`) {
		t.Fatalf("unexpected stdout: %s", stdout)
	}
	if !strings.Contains(stdout, `"error_code": "sma"`) {
		t.Fatalf("request should be answered by the sma worker: %s", stdout)
	}

	code, _, stderr = captureOutputWithExitCode(t, func() int {
		return runGrammarCheck([]string{"--config", configPath, "xx", "text"})
	})
	if code != 1 || !strings.Contains(stderr, "unsupported_language") {
		t.Fatalf("expected unsupported language failure, got code %d stderr %s", code, stderr)
	}
}

func TestRunGrammarPreferences(t *testing.T) {
	configPath := writeTestConfig(t, "se")

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runGrammarPreferences([]string{"--config", configPath, "se"})
	})
	if code != 0 {
		t.Fatalf("runGrammarPreferences() code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, `"msyn-agr": "Agreement"`) {
		t.Fatalf("unexpected stdout: %s", stdout)
	}
}

func TestNounHelpAndUnknownActions(t *testing.T) {
	tests := []struct {
		name string
		run  func() int
		want int
	}{
		{name: "config help", run: func() int { return runConfigNoun([]string{"help"}) }, want: 0},
		{name: "config missing action", run: func() int { return runConfigNoun(nil) }, want: 1},
		{name: "grammar unknown", run: func() int { return runGrammarNoun([]string{"bogus"}) }, want: 1},
		{name: "speller check help", run: func() int { return runSpellerNoun([]string{"check", "--help"}) }, want: 0},
		{name: "speller check arity", run: func() int { return runSpellerCheck([]string{"smj"}) }, want: 1},
		{name: "system unknown", run: func() int { return runSystemNoun([]string{"status"}) }, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, _ := captureOutputWithExitCode(t, tt.run)
			if code != tt.want {
				t.Fatalf("code = %d, want %d", code, tt.want)
			}
		})
	}
}
