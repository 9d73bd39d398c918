package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/lexgate/internal/log"
	"github.com/mattjoyce/lexgate/internal/prefs"
	"github.com/mattjoyce/lexgate/internal/protocol"
	"github.com/mattjoyce/lexgate/internal/worker"
)

type (
	GrammarProvider = Provider[protocol.CheckRequest, *protocol.CheckResult]
	SpellerProvider = Provider[protocol.SpellRequest, *protocol.SpellResult]
)

// Languages lists the routed languages per provider.
type Languages struct {
	Grammar []string `json:"grammar"`
	Speller []string `json:"speller"`
}

// Dispatcher is the facade callers use: it owns the grammar and speller
// routers and the preference tables extracted at startup.
type Dispatcher struct {
	grammar GrammarProvider
	speller SpellerProvider
	logger  *slog.Logger

	// prefs is replaced wholesale once extraction finishes; readers never
	// see a partially filled map.
	prefs      atomic.Pointer[map[string]prefs.Table]
	prefsReady chan struct{}
	readyOnce  sync.Once
	stopPrefs  context.CancelFunc
}

// New creates a Dispatcher with a fixed set of preference tables. A nil
// provider routes no languages.
func New(grammar GrammarProvider, speller SpellerProvider, tables map[string]prefs.Table) *Dispatcher {
	d := newDispatcher(grammar, speller)
	d.setPreferences(tables)
	return d
}

func newDispatcher(grammar GrammarProvider, speller SpellerProvider) *Dispatcher {
	if grammar == nil {
		grammar = NewRouter[protocol.CheckRequest, *protocol.CheckResult](KindGrammar, nil)
	}
	if speller == nil {
		speller = NewRouter[protocol.SpellRequest, *protocol.SpellResult](KindSpeller, nil)
	}
	d := &Dispatcher{
		grammar:    grammar,
		speller:    speller,
		logger:     log.WithComponent("dispatch"),
		prefsReady: make(chan struct{}),
	}
	empty := map[string]prefs.Table{}
	d.prefs.Store(&empty)
	return d
}

// setPreferences publishes tables. Only the first call has any effect.
func (d *Dispatcher) setPreferences(tables map[string]prefs.Table) {
	d.readyOnce.Do(func() {
		copied := make(map[string]prefs.Table, len(tables))
		for lang, t := range tables {
			copied[lang] = t.Clone()
		}
		d.prefs.Store(&copied)
		close(d.prefsReady)
	})
}

// WaitPreferences blocks until the preference tables are published or ctx
// ends. Until then ListPreferences answers with empty tables.
func (d *Dispatcher) WaitPreferences(ctx context.Context) error {
	select {
	case <-d.prefsReady:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatch submits text to the grammar worker for lang. Only the first line
// of text reaches the worker.
func (d *Dispatcher) Dispatch(lang, text string) <-chan worker.Result[*protocol.CheckResult] {
	return d.grammar.Dispatch(lang, protocol.CheckRequest{Text: text})
}

// Check dispatches text and waits for the result or for ctx to end. A
// request abandoned by ctx still holds its place on the worker until answered.
func (d *Dispatcher) Check(ctx context.Context, lang, text string) (*protocol.CheckResult, error) {
	id := uuid.NewString()
	start := time.Now()
	logger := d.logger.With("request_id", id, "provider", KindGrammar, "language", lang)
	logger.Debug("dispatching request")

	res, err := await(ctx, d.Dispatch(lang, text))
	d.logDone(logger, start, err)
	return res, err
}

// DispatchSpell submits word to the speller worker for lang.
func (d *Dispatcher) DispatchSpell(lang, word string) <-chan worker.Result[*protocol.SpellResult] {
	return d.speller.Dispatch(lang, protocol.SpellRequest{Word: word})
}

// Spell is the speller counterpart of Check.
func (d *Dispatcher) Spell(ctx context.Context, lang, word string) (*protocol.SpellResult, error) {
	id := uuid.NewString()
	start := time.Now()
	logger := d.logger.With("request_id", id, "provider", KindSpeller, "language", lang)
	logger.Debug("dispatching request")

	res, err := await(ctx, d.DispatchSpell(lang, word))
	d.logDone(logger, start, err)
	return res, err
}

func (d *Dispatcher) logDone(logger *slog.Logger, start time.Time, err error) {
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		logger.Debug("request failed", "error", err, "duration_ms", elapsed)
		return
	}
	logger.Debug("request completed", "duration_ms", elapsed)
}

// ListPreferences returns a copy of the preference table for a grammar
// language. A language whose extraction failed has an empty table.
func (d *Dispatcher) ListPreferences(lang string) (prefs.Table, error) {
	if !slices.Contains(d.grammar.Languages(), lang) {
		return nil, worker.Unsupported(lang)
	}
	t, ok := (*d.prefs.Load())[lang]
	if !ok {
		return prefs.Table{}, nil
	}
	return t.Clone(), nil
}

// Languages returns the routed languages of both providers.
func (d *Dispatcher) Languages() Languages {
	return Languages{
		Grammar: d.grammar.Languages(),
		Speller: d.speller.Languages(),
	}
}

// Health returns per-worker stats, grammar first.
func (d *Dispatcher) Health() []worker.ActorStats {
	return append(d.grammar.Health(), d.speller.Health()...)
}

// Close stops a running preference extraction and shuts down every worker.
func (d *Dispatcher) Close(ctx context.Context) error {
	if d.stopPrefs != nil {
		d.stopPrefs()
		// The extraction may still be writing to the cache.
		_ = d.WaitPreferences(ctx)
	}
	return errors.Join(d.grammar.Close(ctx), d.speller.Close(ctx))
}

func await[Res any](ctx context.Context, ch <-chan worker.Result[Res]) (Res, error) {
	select {
	case r := <-ch:
		return r.Value, r.Err
	case <-ctx.Done():
		var zero Res
		return zero, fmt.Errorf("waiting for worker: %w", ctx.Err())
	}
}
