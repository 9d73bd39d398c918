package dispatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/lexgate/internal/config"
	"github.com/mattjoyce/lexgate/internal/prefs"
	"github.com/mattjoyce/lexgate/internal/storage"
	"github.com/mattjoyce/lexgate/internal/worker"
)

// checkerScript behaves like a grammar checker started as
// `checker -a <datafile> [-p]`: with -p it prints its toggle list and exits,
// otherwise it answers every line tagged with the data file's language.
const checkerScript = `#!/bin/sh
last=""
for a in "$@"; do last="$a"; done
if [ "$last" = "-p" ]; then
  echo "==== Toggles: ===="
  echo "==== Toggles: ===="
  echo "- [x] simple-rule A simple rule"
  echo "- [ ] [regex] Regex rule"
  echo ""
  exit 0
fi
lang=$(basename "$last" .zcheck)
while IFS= read -r line; do
  printf '{"text":"%s:%s","errs":[]}\n' "$lang" "$line"
done
`

const spellerScript = `#!/bin/sh
while IFS= read -r word; do
  printf '{"word":"%s","is_correct":false,"suggestions":["%s?"]}\n' "$word" "$word"
done
`

func writeExecutable(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func setupDataDir(t *testing.T, ext string, langs ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, lang := range langs {
		require.NoError(t, os.WriteFile(filepath.Join(dir, lang+ext), []byte("data for "+lang), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.txt"), []byte("ignored"), 0o644))
	return dir
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Grammar.Executable = writeExecutable(t, t.TempDir(), "checker.sh", checkerScript)
	cfg.Grammar.DataDir = setupDataDir(t, ".zcheck", "se", "sma")
	cfg.Grammar.IntrospectTimeout = 5 * time.Second
	return cfg
}

func TestStart(t *testing.T) {
	d, err := Start(context.Background(), testConfig(t), nil)
	require.NoError(t, err)
	defer d.Close(context.Background())

	assert.Equal(t, []string{"se", "sma"}, d.Languages().Grammar)
	assert.Empty(t, d.Languages().Speller)

	res, err := d.Check(context.Background(), "sma", "buerie\nbiejjie")
	require.NoError(t, err)
	assert.Equal(t, "sma:buerie", res.Text)

	res, err = d.Check(context.Background(), "se", "bures")
	require.NoError(t, err)
	assert.Equal(t, "se:bures", res.Text)

	require.NoError(t, d.WaitPreferences(context.Background()))
	table, err := d.ListPreferences("se")
	require.NoError(t, err)
	assert.Equal(t, prefs.Table{"simple-rule": "A simple rule"}, table)

	for _, st := range d.Health() {
		assert.Equal(t, worker.StateReady, st.State)
		assert.Greater(t, st.PID, 0)
	}
}

func TestStart_SpawnFailureRoutesUnavailable(t *testing.T) {
	cfg := testConfig(t)
	cfg.Grammar.Executable = filepath.Join(t.TempDir(), "no-such-checker")

	d, err := Start(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer d.Close(context.Background())

	assert.Equal(t, []string{"se", "sma"}, d.Languages().Grammar)

	_, err = d.Check(context.Background(), "se", "text")
	kind, ok := worker.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, worker.KindWorkerUnavailable, kind)

	require.NoError(t, d.WaitPreferences(context.Background()))
	table, err := d.ListPreferences("se")
	require.NoError(t, err)
	assert.Empty(t, table)

	for _, st := range d.Health() {
		assert.Equal(t, worker.StateDead, st.State)
		assert.Contains(t, st.Cause, "no-such-checker")
	}
}

// hangingIntrospectionScript answers requests normally but never finishes
// printing its toggle list.
const hangingIntrospectionScript = `#!/bin/sh
last=""
for a in "$@"; do last="$a"; done
if [ "$last" = "-p" ]; then
  exec sleep 30
fi
while IFS= read -r line; do
  printf '{"text":"%s","errs":[]}\n' "$line"
done
`

func TestStart_DoesNotWaitForIntrospection(t *testing.T) {
	cfg := testConfig(t)
	cfg.Grammar.Executable = writeExecutable(t, t.TempDir(), "checker.sh", hangingIntrospectionScript)
	cfg.Grammar.DataDir = setupDataDir(t, ".zcheck", "se", "sma", "smj", "sms", "smn")
	cfg.Grammar.IntrospectTimeout = 20 * time.Second

	begin := time.Now()
	d, err := Start(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Less(t, time.Since(begin), 5*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := d.Check(ctx, "smn", "text")
	require.NoError(t, err)
	assert.Equal(t, "text", res.Text)

	// Tables stay empty while introspection is still running.
	table, err := d.ListPreferences("se")
	require.NoError(t, err)
	assert.Empty(t, table)

	short, cancelShort := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancelShort()
	assert.ErrorIs(t, d.WaitPreferences(short), context.DeadlineExceeded)

	// Close stops the extraction instead of waiting out its timeout.
	begin = time.Now()
	require.NoError(t, d.Close(context.Background()))
	assert.Less(t, time.Since(begin), 10*time.Second)
	assert.NoError(t, d.WaitPreferences(context.Background()))
}

func TestStart_Speller(t *testing.T) {
	cfg := testConfig(t)
	cfg.Grammar.Enabled = false
	cfg.Speller.Enabled = true
	cfg.Speller.Executable = writeExecutable(t, t.TempDir(), "speller.sh", spellerScript)
	cfg.Speller.DataDir = setupDataDir(t, ".zhfst", "smj")

	d, err := Start(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer d.Close(context.Background())

	assert.Empty(t, d.Languages().Grammar)
	assert.Equal(t, []string{"smj"}, d.Languages().Speller)

	res, err := d.Spell(context.Background(), "smj", "giella")
	require.NoError(t, err)
	assert.Equal(t, "giella", res.Word)
	assert.False(t, res.IsCorrect)
	assert.Equal(t, []string{"giella?"}, res.Suggestions)
}

func TestStart_MissingDataDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.Grammar.DataDir = filepath.Join(t.TempDir(), "missing")

	_, err := Start(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "grammar")
}

func TestStart_WithPreferenceCache(t *testing.T) {
	db, err := storage.OpenSQLite(context.Background(), storage.MemoryPath)
	require.NoError(t, err)
	defer db.Close()
	cache := prefs.NewCache(db)

	cfg := testConfig(t)
	for range 2 {
		d, err := Start(context.Background(), cfg, cache)
		require.NoError(t, err)
		require.NoError(t, d.WaitPreferences(context.Background()))
		table, err := d.ListPreferences("sma")
		require.NoError(t, err)
		assert.Equal(t, prefs.Table{"simple-rule": "A simple rule"}, table)
		require.NoError(t, d.Close(context.Background()))
	}

	var rows int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM preference_cache WHERE provider = 'grammar'`).Scan(&rows))
	assert.Equal(t, 2, rows)
}

func TestDiscoverLanguages(t *testing.T) {
	cfg := testConfig(t)
	cfg.Speller.Enabled = true
	cfg.Speller.DataDir = setupDataDir(t, ".zhfst", "smj")

	langs, err := DiscoverLanguages(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"se", "sma"}, langs.Grammar)
	assert.Equal(t, []string{"smj"}, langs.Speller)

	cfg.Speller.Enabled = false
	langs, err = DiscoverLanguages(cfg)
	require.NoError(t, err)
	assert.NotNil(t, langs.Speller)
	assert.Empty(t, langs.Speller)

	cfg.Grammar.DataDir = filepath.Join(t.TempDir(), "missing")
	_, err = DiscoverLanguages(cfg)
	assert.Error(t, err)
}
