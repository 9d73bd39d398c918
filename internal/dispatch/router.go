package dispatch

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/mattjoyce/lexgate/internal/worker"
)

// Kind names a provider family.
type Kind string

const (
	KindGrammar Kind = "grammar"
	KindSpeller Kind = "speller"
)

// Provider routes requests of one kind to per-language workers.
type Provider[Req, Res any] interface {
	Kind() Kind
	Languages() []string
	Dispatch(lang string, req Req) <-chan worker.Result[Res]
	Health() []worker.ActorStats
	Close(ctx context.Context) error
}

// Router is an immutable language -> actor table. It is safe for concurrent
// use without locking because nothing mutates it after NewRouter.
type Router[Req, Res any] struct {
	kind   Kind
	actors map[string]*worker.Actor[Req, Res]
	langs  []string
}

var _ Provider[int, int] = (*Router[int, int])(nil)

// NewRouter copies actors into a new routing table.
func NewRouter[Req, Res any](kind Kind, actors map[string]*worker.Actor[Req, Res]) *Router[Req, Res] {
	r := &Router[Req, Res]{
		kind:   kind,
		actors: make(map[string]*worker.Actor[Req, Res], len(actors)),
		langs:  make([]string, 0, len(actors)),
	}
	for lang, a := range actors {
		r.actors[lang] = a
		r.langs = append(r.langs, lang)
	}
	sort.Strings(r.langs)
	return r
}

func (r *Router[Req, Res]) Kind() Kind { return r.kind }

// Lookup returns the actor serving lang.
func (r *Router[Req, Res]) Lookup(lang string) (*worker.Actor[Req, Res], bool) {
	a, ok := r.actors[lang]
	return a, ok
}

// Languages returns the routed language codes in sorted order.
func (r *Router[Req, Res]) Languages() []string {
	return append([]string(nil), r.langs...)
}

// Dispatch forwards req to the actor for lang. An unknown language resolves
// immediately with KindUnsupportedLanguage.
func (r *Router[Req, Res]) Dispatch(lang string, req Req) <-chan worker.Result[Res] {
	a, ok := r.actors[lang]
	if !ok {
		done := make(chan worker.Result[Res], 1)
		done <- worker.Result[Res]{Err: worker.Unsupported(lang)}
		return done
	}
	return a.Submit(req)
}

// Health returns the stats of every actor, sorted by language.
func (r *Router[Req, Res]) Health() []worker.ActorStats {
	out := make([]worker.ActorStats, 0, len(r.langs))
	for _, lang := range r.langs {
		out = append(out, r.actors[lang].Stats())
	}
	return out
}

// Close shuts all actors down in parallel.
func (r *Router[Req, Res]) Close(ctx context.Context) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, a := range r.actors {
		wg.Go(func() {
			if err := a.Close(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		})
	}
	wg.Wait()
	return errors.Join(errs...)
}
