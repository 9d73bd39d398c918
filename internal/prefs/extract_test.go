package prefs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/lexgate/internal/log"
	"github.com/mattjoyce/lexgate/internal/storage"
	"github.com/mattjoyce/lexgate/internal/worker"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", "json")
	os.Exit(m.Run())
}

// introspectWorker prints the toggle banner twice when run with -p and
// appends one line to $COUNT_FILE per invocation.
const introspectWorker = `#!/bin/sh
if [ -n "$COUNT_FILE" ]; then echo run >> "$COUNT_FILE"; fi
for arg in "$@"; do
  if [ "$arg" = "-p" ]; then
    echo "Divvun checker"
    echo "==== Toggles: ===="
    echo "- [x] simple-rule A simple rule"
    echo "==== Toggles: ===="
    echo "- [x] simple-rule A simple rule"
    echo "- [ ] [regex] Regex rule"
    echo "- [x] msyn-agr Agreement errors"
    echo "==== Errors: ===="
    exit 0
  fi
done
exit 2
`

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func TestExtract(t *testing.T) {
	script := writeScript(t, t.TempDir(), "checker.sh", introspectWorker)
	e := NewExtractor("grammar", "", time.Second, nil)

	table := e.Extract(context.Background(), Target{
		Language: "se",
		Spec:     worker.Spec{Executable: script, Args: []string{"-a", "se.zcheck"}},
	})
	assert.Equal(t, Table{
		"simple-rule": "A simple rule",
		"msyn-agr":    "Agreement errors",
	}, table)
}

func TestExtract_FailuresYieldEmptyTable(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		spec worker.Spec
	}{
		{
			name: "missing executable",
			spec: worker.Spec{Executable: filepath.Join(dir, "nope")},
		},
		{
			name: "single marker",
			spec: worker.Spec{Executable: writeScript(t, dir, "one.sh", "#!/bin/sh\necho '==== Toggles: ===='\necho '- [x] a A'\n")},
		},
		{
			name: "hangs past timeout",
			spec: worker.Spec{Executable: writeScript(t, dir, "hang.sh", "#!/bin/sh\necho '==== Toggles: ===='\nexec sleep 30\n")},
		},
	}

	e := NewExtractor("grammar", "-p", 200*time.Millisecond, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := time.Now()
			table := e.Extract(context.Background(), Target{Language: "se", Spec: tt.spec})
			assert.NotNil(t, table)
			assert.Empty(t, table)
			assert.Less(t, time.Since(start), 10*time.Second)
		})
	}
}

func TestExtractAll(t *testing.T) {
	dir := t.TempDir()
	good := writeScript(t, dir, "checker.sh", introspectWorker)

	e := NewExtractor("grammar", "-p", time.Second, nil)
	tables := e.ExtractAll(context.Background(), []Target{
		{Language: "se", Spec: worker.Spec{Executable: good}},
		{Language: "sma", Spec: worker.Spec{Executable: filepath.Join(dir, "missing")}},
		{Language: "smj", Spec: worker.Spec{Executable: good}},
	})

	require.Len(t, tables, 3)
	assert.Len(t, tables["se"], 2)
	assert.Empty(t, tables["sma"])
	assert.Len(t, tables["smj"], 2)
}

func TestExtract_UsesCache(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "checker.sh", introspectWorker)
	countFile := filepath.Join(dir, "count")

	db, err := storage.OpenSQLite(context.Background(), filepath.Join(dir, "lexgate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	e := NewExtractor("grammar", "-p", time.Second, NewCache(db))
	target := Target{
		Language:        "se",
		Spec:            worker.Spec{Executable: script, Env: []string{"COUNT_FILE=" + countFile}},
		DataFingerprint: "abc",
	}

	runs := func() int {
		data, err := os.ReadFile(countFile)
		if err != nil {
			return 0
		}
		return strings.Count(string(data), "run")
	}

	first := e.Extract(context.Background(), target)
	assert.Len(t, first, 2)
	assert.Equal(t, 1, runs())

	second := e.Extract(context.Background(), target)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, runs(), "cache hit must not run the worker")

	target.DataFingerprint = "changed"
	third := e.Extract(context.Background(), target)
	assert.Equal(t, first, third)
	assert.Equal(t, 2, runs(), "changed data file must re-run introspection")
}

func TestCache(t *testing.T) {
	db, err := storage.OpenSQLite(context.Background(), storage.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	c := NewCache(db)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "grammar", "se", "v1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, "grammar", "se", "v1", Table{"a": "A"}))
	got, ok, err := c.Get(ctx, "grammar", "se", "v1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, Table{"a": "A"}, got)

	require.NoError(t, c.Put(ctx, "grammar", "se", "v2", Table{"b": "B"}))
	_, ok, err = c.Get(ctx, "grammar", "se", "v1")
	require.NoError(t, err)
	assert.False(t, ok, "old fingerprint replaced")

	_, ok, err = c.Get(ctx, "speller", "se", "v2")
	require.NoError(t, err)
	assert.False(t, ok, "providers are cached separately")
}
