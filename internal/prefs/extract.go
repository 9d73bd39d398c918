package prefs

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/lexgate/internal/log"
	"github.com/mattjoyce/lexgate/internal/worker"
)

const (
	DefaultFlag        = "-p"
	DefaultTimeout     = 30 * time.Second
	DefaultConcurrency = 4
)

// Target is one language worker to introspect.
type Target struct {
	Language string
	Spec     worker.Spec
	// DataFingerprint identifies the data file contents; empty disables caching.
	DataFingerprint string
}

// Extractor runs workers in introspection mode and parses their toggle list.
type Extractor struct {
	Provider    string
	Flag        string
	Timeout     time.Duration
	Concurrency int
	Cache       *Cache

	logger *slog.Logger
}

// NewExtractor returns an Extractor with defaults applied for zero values.
func NewExtractor(provider, flag string, timeout time.Duration, cache *Cache) *Extractor {
	if flag == "" {
		flag = DefaultFlag
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Extractor{
		Provider:    provider,
		Flag:        flag,
		Timeout:     timeout,
		Concurrency: DefaultConcurrency,
		Cache:       cache,
		logger:      log.WithComponent("prefs").With("provider", provider),
	}
}

// ExtractAll introspects every target concurrently. A failing language gets an
// empty table and never affects the others.
func (e *Extractor) ExtractAll(ctx context.Context, targets []Target) map[string]Table {
	out := make(map[string]Table, len(targets))
	var mu sync.Mutex

	var g errgroup.Group
	if e.Concurrency > 0 {
		g.SetLimit(e.Concurrency)
	}
	for _, target := range targets {
		g.Go(func() error {
			table := e.Extract(ctx, target)
			mu.Lock()
			out[target.Language] = table
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Extract returns the toggle table for one target. Failures are logged and
// yield an empty table.
func (e *Extractor) Extract(ctx context.Context, target Target) Table {
	if ctx.Err() != nil {
		return Table{}
	}
	logger := e.logger.With("language", target.Language)
	spec := target.Spec
	spec.Args = append(append([]string(nil), spec.Args...), e.Flag)

	key := e.cacheKey(target, spec)
	if key != "" {
		table, ok, err := e.Cache.Get(ctx, e.Provider, target.Language, key)
		if err != nil {
			logger.Warn("preference cache lookup failed", "error", err)
		} else if ok {
			logger.Debug("preferences loaded from cache", "count", len(table))
			return table
		}
	}

	start := time.Now()
	table, err := e.run(ctx, spec)
	if err != nil {
		logger.Warn("preference extraction failed", "error", err, "command", spec.String())
		return Table{}
	}
	logger.Info("preferences extracted", "count", len(table), "duration_ms", time.Since(start).Milliseconds())

	if key != "" && len(table) > 0 {
		if err := e.Cache.Put(ctx, e.Provider, target.Language, key, table); err != nil {
			logger.Warn("preference cache store failed", "error", err)
		}
	}
	return table
}

func (e *Extractor) run(ctx context.Context, spec worker.Spec) (Table, error) {
	p, err := worker.Spawn(spec)
	if err != nil {
		return nil, err
	}
	_ = p.CloseInput()

	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, func() { _ = p.Close(ctx) })
	defer stop()

	ps := newParser()
	for {
		line, err := p.ReadLine()
		if err != nil || ps.feed(line) {
			break
		}
	}

	// Introspection is fire-and-forget: kill whatever is left of the process.
	killCtx, kill := context.WithCancel(context.Background())
	kill()
	_ = p.Close(killCtx)

	if ctx.Err() != nil {
		return nil, errors.Join(errors.New("introspection timed out"), ctx.Err())
	}
	return ps.result()
}

// cacheKey ties a cached table to the data file contents and the exact command line.
func (e *Extractor) cacheKey(target Target, spec worker.Spec) string {
	if e.Cache == nil || target.DataFingerprint == "" {
		return ""
	}
	sum := blake3.Sum256([]byte(target.DataFingerprint + "\x00" + spec.String()))
	return hex.EncodeToString(sum[:])
}
