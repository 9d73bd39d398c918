package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattjoyce/lexgate/internal/api"
	"github.com/mattjoyce/lexgate/internal/auth"
	"github.com/mattjoyce/lexgate/internal/config"
	"github.com/mattjoyce/lexgate/internal/dispatch"
	"github.com/mattjoyce/lexgate/internal/doctor"
	"github.com/mattjoyce/lexgate/internal/lock"
	"github.com/mattjoyce/lexgate/internal/log"
	"github.com/mattjoyce/lexgate/internal/prefs"
	"github.com/mattjoyce/lexgate/internal/storage"
	"github.com/mattjoyce/lexgate/internal/tui/watch"
	"gopkg.in/yaml.v3"
)

const version = "0.1.0"

// shutdownTimeout bounds how long workers get to exit on shutdown.
const shutdownTimeout = 10 * time.Second

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	// --- NOUNS ---
	case "system":
		os.Exit(runSystemNoun(args))
	case "config":
		os.Exit(runConfigNoun(args))
	case "grammar":
		os.Exit(runGrammarNoun(args))
	case "speller":
		os.Exit(runSpellerNoun(args))

	// --- ROOT ALIASES ---
	case "start":
		os.Exit(runStart(args))
	case "languages":
		os.Exit(runLanguages(args))
	case "version":
		fmt.Printf("lexgate version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`lexgate - Language-routed gateway for grammar checkers and spellers

Usage:
  lexgate <noun> <action> [flags]

Core Resources (Nouns):
  system    Gateway lifecycle
  config    Configuration and integrity
  grammar   Grammar checking and error-tag preferences
  speller   Spell checking

System Commands:
  system start               Start the gateway service in foreground
  system watch               Live worker health monitor (TUI)

Config Commands:
  config lock                Authorize current state (write integrity hashes)
  config check               Validate syntax, policy, and integrity
  config show                Print the resolved configuration

Grammar Commands:
  grammar check <lang> [text]      Check one line of text (stdin when omitted)
  grammar preferences <lang>       List the error tags a checker reports

Speller Commands:
  speller check <lang> <word>      Check one word

General:
  languages         List routed languages
  version           Show version information
  help              Show this help message

Use 'lexgate <noun> help' for resource-specific flags.
`)
}

// --- NOUN DISPATCHERS ---

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printSystemNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "start":
		if hasHelpFlag(actionArgs) {
			printSystemStartHelp()
			return 0
		}
		return runStart(actionArgs)
	case "watch":
		if hasHelpFlag(actionArgs) {
			printSystemWatchHelp()
			return 0
		}
		return runWatch(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "lock":
		if hasHelpFlag(actionArgs) {
			printConfigLockHelp()
			return 0
		}
		return runConfigLock(actionArgs)
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "show":
		if hasHelpFlag(actionArgs) {
			printConfigShowHelp()
			return 0
		}
		return runConfigShow(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func runGrammarNoun(args []string) int {
	if len(args) < 1 {
		printGrammarNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printGrammarNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			printGrammarCheckHelp()
			return 0
		}
		return runGrammarCheck(actionArgs)
	case "preferences":
		if hasHelpFlag(actionArgs) {
			printGrammarPreferencesHelp()
			return 0
		}
		return runGrammarPreferences(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown grammar action: %s\n", action)
		return 1
	}
}

func runSpellerNoun(args []string) int {
	if len(args) < 1 {
		printSpellerNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSpellerNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			printSpellerCheckHelp()
			return 0
		}
		return runSpellerCheck(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown speller action: %s\n", action)
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printSystemNounHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: lexgate system <action>")
	fmt.Fprintln(w, "Actions: start, watch")
}

func printConfigNounHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: lexgate config <action> [flags]")
	fmt.Fprintln(w, "Actions: lock, check, show")
}

func printGrammarNounHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: lexgate grammar <action> [flags]")
	fmt.Fprintln(w, "Actions: check, preferences")
}

func printSpellerNounHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: lexgate speller <action> [flags]")
	fmt.Fprintln(w, "Actions: check")
}

func printSystemStartHelp() {
	fmt.Println("Usage: lexgate system start [--config PATH]")
	fmt.Println("Start the gateway service in the foreground.")
}

func printSystemWatchHelp() {
	fmt.Println("Usage: lexgate system watch [flags]")
	fmt.Println()
	fmt.Println("Live worker health monitor for a running gateway.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --api-url URL        Gateway API URL (default: http://localhost:8080)")
	fmt.Println("  --api-key KEY        API Bearer Token (or LEXGATE_API_KEY env var)")
	fmt.Println("  --interval DURATION  Poll interval (default: 2s)")
	fmt.Println()
	fmt.Println("Keybindings:")
	fmt.Println("  q, Ctrl+C        Quit")
	fmt.Println("  ↑/↓, k/j         Navigate workers")
}

func printConfigLockHelp() {
	fmt.Println("Usage: lexgate config lock [--config PATH] [-v|--verbose] [--dry-run]")
	fmt.Println("Authorize current configuration state by regenerating integrity hashes.")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: lexgate config check [--config PATH] [--format human|json] [--strict] [--json]")
	fmt.Println("Validate configuration syntax, integrity, and the host it runs on.")
}

func printConfigShowHelp() {
	fmt.Println("Usage: lexgate config show [--config PATH] [--json]")
	fmt.Println("Show the fully resolved configuration.")
}

func printGrammarCheckHelp() {
	fmt.Println("Usage: lexgate grammar check [--config PATH] [--timeout DURATION] <lang> [text]")
	fmt.Println("Check the first line of text. Reads stdin when text is omitted.")
}

func printGrammarPreferencesHelp() {
	fmt.Println("Usage: lexgate grammar preferences [--config PATH] <lang>")
	fmt.Println("List the error tags the grammar checker for lang can report.")
}

func printSpellerCheckHelp() {
	fmt.Println("Usage: lexgate speller check [--config PATH] [--timeout DURATION] <lang> <word>")
	fmt.Println("Check a single word.")
}

// --- ACTION IMPLEMENTATIONS ---

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	if *configPath == "" {
		discovered, err := config.DiscoverConfigPath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
			return 1
		}
		*configPath = discovered
		fmt.Fprintf(os.Stderr, "Using discovered config: %s\n", *configPath)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("lexgate starting", "version", version, "config", *configPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var cache *prefs.Cache
	if cfg.State.Path != "" {
		if lockPath := lock.PathFor(cfg.State.Path); lockPath != "" {
			pidLock, err := lock.AcquirePIDLock(lockPath)
			if err != nil {
				logger.Error("failed to acquire PID lock", "path", lockPath, "error", err)
				return 1
			}
			defer pidLock.Release()
			logger.Info("acquired PID lock", "path", lockPath)
		}

		db, err := storage.OpenSQLite(ctx, cfg.State.Path)
		if err != nil {
			logger.Error("failed to open database", "path", cfg.State.Path, "error", err)
			return 1
		}
		defer db.Close()
		logger.Info("database opened", "path", cfg.State.Path)
		cache = prefs.NewCache(db)
	}

	disp, err := dispatch.Start(ctx, cfg, cache)
	if err != nil {
		logger.Error("failed to start dispatcher", "error", err)
		return 1
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		if err := disp.Close(sctx); err != nil {
			logger.Warn("worker shutdown incomplete", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)

	if cfg.API.Enabled {
		apiServer := api.New(apiConfig(cfg), disp, log.WithComponent("api"))
		go func() {
			if err := apiServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	logger.Info("lexgate running (press Ctrl+C to stop)")

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		return 1
	}

	logger.Info("lexgate stopped")
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	apiURL := fs.String("api-url", "http://localhost:8080", "Gateway API URL")
	apiKey := fs.String("api-key", os.Getenv("LEXGATE_API_KEY"), "API Bearer Token")
	interval := fs.Duration("interval", watch.DefaultPollInterval, "Poll interval")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	p := tea.NewProgram(watch.New(*apiURL, *apiKey, *interval))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

func apiConfig(cfg *config.Config) api.Config {
	tokens := make([]auth.TokenConfig, 0, len(cfg.API.Auth.Tokens))
	for _, t := range cfg.API.Auth.Tokens {
		tokens = append(tokens, auth.TokenConfig{
			Token:  t.Token,
			Scopes: t.Scopes,
		})
	}
	return api.Config{
		Listen:         cfg.API.Listen,
		APIKey:         cfg.API.Auth.APIKey,
		Tokens:         tokens,
		RequestTimeout: cfg.API.RequestTimeout,
	}
}

// loadConfigForTool loads config for one-shot commands, discovering it when
// configPath is empty. Logs go to stderr so stdout stays machine-readable.
func loadConfigForTool(configPath string) (*config.Config, error) {
	if configPath == "" {
		discovered, err := config.DiscoverConfigPath()
		if err != nil {
			return nil, fmt.Errorf("discover config: %w", err)
		}
		configPath = discovered
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log.Setup("warn", "text")
	return cfg, nil
}

// withDispatcher starts the workers without the preference cache, runs fn
// and shuts everything down again.
func withDispatcher(configPath string, fn func(ctx context.Context, d *dispatch.Dispatcher) int) int {
	cfg, err := loadConfigForTool(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	d, err := dispatch.Start(ctx, cfg, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start workers: %v\n", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = d.Close(sctx)
	}()

	return fn(ctx, d)
}

func runGrammarCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration")
	timeout := fs.Duration("timeout", api.DefaultRequestTimeout, "How long to wait for the worker")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() < 1 {
		printGrammarCheckHelp()
		return 1
	}

	lang := fs.Arg(0)
	text := strings.Join(fs.Args()[1:], " ")
	if fs.NArg() == 1 {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Read stdin: %v\n", err)
			return 1
		}
		text = string(b)
	}

	return withDispatcher(*configPath, func(ctx context.Context, d *dispatch.Dispatcher) int {
		ctx, cancel := context.WithTimeout(ctx, *timeout)
		defer cancel()
		res, err := d.Check(ctx, lang, text)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Check failed: %v\n", err)
			return 1
		}
		return printJSON(res)
	})
}

func runGrammarPreferences(args []string) int {
	fs := flag.NewFlagSet("preferences", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 {
		printGrammarPreferencesHelp()
		return 1
	}

	return withDispatcher(*configPath, func(ctx context.Context, d *dispatch.Dispatcher) int {
		if err := d.WaitPreferences(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Preferences failed: %v\n", err)
			return 1
		}
		table, err := d.ListPreferences(fs.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Preferences failed: %v\n", err)
			return 1
		}
		return printJSON(api.PreferencesResponse{ErrorTags: table})
	})
}

func runSpellerCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration")
	timeout := fs.Duration("timeout", api.DefaultRequestTimeout, "How long to wait for the worker")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() != 2 {
		printSpellerCheckHelp()
		return 1
	}

	return withDispatcher(*configPath, func(ctx context.Context, d *dispatch.Dispatcher) int {
		ctx, cancel := context.WithTimeout(ctx, *timeout)
		defer cancel()
		res, err := d.Spell(ctx, fs.Arg(0), fs.Arg(1))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Spell check failed: %v\n", err)
			return 1
		}
		return printJSON(res)
	})
}

func runLanguages(args []string) int {
	fs := flag.NewFlagSet("languages", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfigForTool(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}
	langs, err := dispatch.DiscoverLanguages(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Language discovery failed: %v\n", err)
		return 1
	}
	return printJSON(langs)
}

func runConfigCheck(args []string) int {
	var configPath string
	var strict, jsonOut bool
	var format string

	fs := flag.NewFlagSet("check", flag.ExitOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&strict, "strict", false, "Treat warnings as errors")
	fs.StringVar(&format, "format", "human", "Output format (human, json)")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if jsonOut {
		format = "json"
	}

	cfg, err := loadConfigForTool(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	result := doctor.New(cfg).Validate()

	switch format {
	case "json":
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(out)
	default:
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	if strict && len(result.Warnings) > 0 {
		return 2
	}
	return 0
}

func runConfigShow(args []string) int {
	var configPath string
	var jsonOut bool

	fs := flag.NewFlagSet("show", flag.ExitOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfigForTool(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}
	cfg.Include = nil

	if jsonOut {
		return printJSON(cfg)
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "YAML format error: %v\n", err)
		return 1
	}
	fmt.Print(string(out))
	return 0
}

func runConfigLock(args []string) int {
	var configPath string
	var verbose, verboseShort, dryRun bool

	fs := flag.NewFlagSet("lock", flag.ExitOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&verboseShort, "v", false, "Verbose output")
	fs.BoolVar(&dryRun, "dry-run", false, "Dry run")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	isVerbose := verbose || verboseShort

	if configPath == "" {
		discovered, err := config.DiscoverConfigPath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
			return 1
		}
		configPath = discovered
	}

	report, err := config.Lock(configPath, dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config: %v\n", err)
		return 1
	}

	if isVerbose {
		fmt.Printf("Processing directory: %s\n", filepath.Dir(report.ChecksumPath))
		for _, name := range slices.Sorted(maps.Keys(report.Hashes)) {
			fmt.Printf("  HASH %s: %s\n", name, report.Hashes[name])
		}
		if report.Written {
			fmt.Printf("  WROTE %s: %s\n", config.ChecksumFile, report.ChecksumPath)
		} else {
			fmt.Printf("  DRY-RUN %s: %s (not written)\n", config.ChecksumFile, report.ChecksumPath)
		}
	}

	if dryRun {
		fmt.Printf("Dry run completed for %d file(s) (no files written)\n", len(report.Hashes))
	} else {
		fmt.Printf("Successfully locked %d file(s) in %s\n", len(report.Hashes), report.ChecksumPath)
	}
	return 0
}

func printJSON(v any) int {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
		return 1
	}
	return 0
}
