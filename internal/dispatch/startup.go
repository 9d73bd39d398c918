package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattjoyce/lexgate/internal/config"
	"github.com/mattjoyce/lexgate/internal/datafile"
	"github.com/mattjoyce/lexgate/internal/log"
	"github.com/mattjoyce/lexgate/internal/prefs"
	"github.com/mattjoyce/lexgate/internal/protocol"
	"github.com/mattjoyce/lexgate/internal/worker"
)

// Start discovers the data files of every enabled provider and spawns one
// worker actor per language. A worker that fails to spawn is still routed, to
// an actor that reports it unavailable. Grammar preferences are extracted in
// the background after Start returns; see Dispatcher.WaitPreferences.
// cache may be nil.
func Start(ctx context.Context, cfg *config.Config, cache *prefs.Cache) (*Dispatcher, error) {
	logger := log.WithComponent("dispatch")
	start := time.Now()

	grammarActors, grammarTargets, err := spawnAll[protocol.CheckRequest, *protocol.CheckResult](KindGrammar, cfg.Grammar, protocol.GrammarCodec{}, cache != nil, logger)
	if err != nil {
		return nil, err
	}
	spellerActors, _, err := spawnAll[protocol.SpellRequest, *protocol.SpellResult](KindSpeller, cfg.Speller, protocol.SpellerCodec{}, false, logger)
	if err != nil {
		closeAll(ctx, grammarActors)
		return nil, err
	}

	d := newDispatcher(
		NewRouter(KindGrammar, grammarActors),
		NewRouter(KindSpeller, spellerActors),
	)
	if flag := cfg.Grammar.IntrospectFlag; flag != "" && len(grammarTargets) > 0 {
		extractor := prefs.NewExtractor(string(KindGrammar), flag, cfg.Grammar.IntrospectTimeout, cache)
		d.extractInBackground(ctx, extractor, grammarTargets, logger)
	} else {
		d.setPreferences(nil)
	}
	langs := d.Languages()
	if len(langs.Grammar)+len(langs.Speller) == 0 {
		logger.Warn("no language data files found; every request will be unsupported")
	}
	logger.Info("dispatcher started",
		"grammar", langs.Grammar,
		"speller", langs.Speller,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return d, nil
}

// extractInBackground runs extraction detached from ctx's cancellation;
// Dispatcher.Close stops it.
func (d *Dispatcher) extractInBackground(ctx context.Context, extractor *prefs.Extractor, targets []prefs.Target, logger *slog.Logger) {
	ctx, d.stopPrefs = context.WithCancel(context.WithoutCancel(ctx))
	go func() {
		start := time.Now()
		tables := extractor.ExtractAll(ctx, targets)
		d.setPreferences(tables)
		logger.Info("grammar preferences ready",
			"languages", len(tables),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}()
}

func spawnAll[Req, Res any](
	kind Kind,
	pc config.ProviderConfig,
	codec protocol.Codec[Req, Res],
	fingerprint bool,
	logger *slog.Logger,
) (map[string]*worker.Actor[Req, Res], []prefs.Target, error) {
	if !pc.Enabled {
		return nil, nil, nil
	}

	files, err := datafile.Discover(pc.DataDir, pc.Extension)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", kind, err)
	}

	actors := make(map[string]*worker.Actor[Req, Res], len(files))
	targets := make([]prefs.Target, 0, len(files))
	opts := worker.ActorOptions{Kind: string(kind), QueueSize: pc.QueueSize}

	for _, f := range files {
		spec := worker.Spec{
			Executable: pc.Executable,
			Args:       append(append([]string(nil), pc.Args...), f.Path),
		}

		proc, err := worker.Spawn(spec)
		if err != nil {
			logger.Error("failed to spawn worker", "provider", kind, "language", f.Language, "error", err)
			actors[f.Language] = worker.NewUnavailableActor(f.Language, codec, err, opts)
		} else {
			actors[f.Language] = worker.NewActor(f.Language, proc, codec, opts)
		}

		target := prefs.Target{Language: f.Language, Spec: spec}
		if fingerprint {
			if target.DataFingerprint, err = datafile.Fingerprint(f.Path); err != nil {
				logger.Warn("failed to fingerprint data file", "path", f.Path, "error", err)
			}
		}
		targets = append(targets, target)
	}
	return actors, targets, nil
}

func closeAll[Req, Res any](ctx context.Context, actors map[string]*worker.Actor[Req, Res]) {
	for _, a := range actors {
		_ = a.Close(ctx)
	}
}

// DiscoverLanguages lists the languages Start would route for cfg without
// spawning any worker.
func DiscoverLanguages(cfg *config.Config) (Languages, error) {
	var langs Languages
	for _, p := range []struct {
		kind Kind
		pc   config.ProviderConfig
		dst  *[]string
	}{
		{KindGrammar, cfg.Grammar, &langs.Grammar},
		{KindSpeller, cfg.Speller, &langs.Speller},
	} {
		*p.dst = []string{}
		if !p.pc.Enabled {
			continue
		}
		files, err := datafile.Discover(p.pc.DataDir, p.pc.Extension)
		if err != nil {
			return Languages{}, fmt.Errorf("%s: %w", p.kind, err)
		}
		for _, f := range files {
			*p.dst = append(*p.dst, f.Language)
		}
	}
	return langs, nil
}
