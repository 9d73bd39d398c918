package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattjoyce/lexgate/internal/log"
	"github.com/mattjoyce/lexgate/internal/protocol"
)

// DefaultQueueSize bounds the number of requests waiting behind the one in flight.
const DefaultQueueSize = 256

// LineConn is the line-oriented connection an Actor drives. *Process implements it.
type LineConn interface {
	WriteLine(text string) error
	ReadLine() (string, error)
	Close(ctx context.Context) error
}

// State is the lifecycle state of an Actor.
type State string

const (
	StateReady  State = "ready"
	StateDead   State = "dead"
	StateClosed State = "closed"
)

// Result resolves one submitted request. Err is an *Error when set.
type Result[Res any] struct {
	Value Res
	Err   error
}

// ActorOptions tunes an Actor.
type ActorOptions struct {
	// Kind names the provider ("grammar", "speller") in logs.
	Kind      string
	QueueSize int
	Logger    *slog.Logger
}

// ActorStats is a point-in-time snapshot for health reporting.
type ActorStats struct {
	Kind     string `json:"kind"`
	Language string `json:"language"`
	State    State  `json:"state"`
	PID      int    `json:"pid,omitempty"`
	Queued   int    `json:"queued"`
	Served   int64  `json:"served"`
	Failed   int64  `json:"failed"`
	Cause    string `json:"cause,omitempty"`
}

type job[Req, Res any] struct {
	req        Req
	done       chan Result[Res]
	enqueuedAt time.Time
}

// Actor serializes requests to one worker process. A single goroutine drains
// a FIFO mailbox: encode, write one line, read one line, decode, resolve.
// Requests are never interleaved on the pipe.
type Actor[Req, Res any] struct {
	lang      string
	kind      string
	conn      LineConn
	codec     protocol.Codec[Req, Res]
	logger    *slog.Logger
	queueSize int

	mu    sync.Mutex
	queue []job[Req, Res]
	state State
	cause error

	wake     chan struct{}
	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	served atomic.Int64
	failed atomic.Int64
}

// NewActor starts an actor that owns conn for language lang.
func NewActor[Req, Res any](lang string, conn LineConn, codec protocol.Codec[Req, Res], opts ActorOptions) *Actor[Req, Res] {
	a := newActor[Req, Res](lang, codec, opts)
	a.conn = conn
	a.state = StateReady
	a.stopped = make(chan struct{})
	go a.run()

	a.logger.Info("worker actor started", "pid", a.pid())
	return a
}

// NewUnavailableActor returns an actor whose worker never started. Every
// submission fails with KindWorkerUnavailable carrying cause.
func NewUnavailableActor[Req, Res any](lang string, codec protocol.Codec[Req, Res], cause error, opts ActorOptions) *Actor[Req, Res] {
	a := newActor[Req, Res](lang, codec, opts)
	a.state = StateDead
	a.cause = cause
	return a
}

func newActor[Req, Res any](lang string, codec protocol.Codec[Req, Res], opts ActorOptions) *Actor[Req, Res] {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithLanguage(opts.Kind, lang)
	}
	return &Actor[Req, Res]{
		lang:      lang,
		kind:      opts.Kind,
		codec:     codec,
		logger:    logger,
		queueSize: opts.QueueSize,
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
	}
}

// Language returns the language code this actor serves.
func (a *Actor[Req, Res]) Language() string { return a.lang }

// Submit enqueues req and returns a channel that receives exactly one Result.
// It never blocks: a dead, closed or full actor resolves the result immediately.
func (a *Actor[Req, Res]) Submit(req Req) <-chan Result[Res] {
	done := make(chan Result[Res], 1)

	a.mu.Lock()
	switch {
	case a.state == StateDead:
		cause := a.cause
		a.mu.Unlock()
		a.failed.Add(1)
		done <- Result[Res]{Err: Unavailable(a.lang, cause)}
		return done
	case a.state == StateClosed:
		a.mu.Unlock()
		a.failed.Add(1)
		done <- Result[Res]{Err: Unavailable(a.lang, errWorkerStopped)}
		return done
	case len(a.queue) >= a.queueSize:
		a.mu.Unlock()
		a.failed.Add(1)
		done <- Result[Res]{Err: Unavailable(a.lang, errMailboxFull)}
		return done
	}
	a.queue = append(a.queue, job[Req, Res]{req: req, done: done, enqueuedAt: time.Now()})
	a.mu.Unlock()

	select {
	case a.wake <- struct{}{}:
	default:
	}
	return done
}

// run is the actor's only execution context; it alone touches conn.
func (a *Actor[Req, Res]) run() {
	defer close(a.stopped)

	for {
		if j, ok := a.next(); ok {
			a.handle(j)
			continue
		}
		select {
		case <-a.wake:
		case <-a.stop:
			return
		}
	}
}

func (a *Actor[Req, Res]) next() (job[Req, Res], bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.queue) == 0 {
		return job[Req, Res]{}, false
	}
	j := a.queue[0]
	a.queue[0] = job[Req, Res]{}
	a.queue = a.queue[1:]
	return j, true
}

func (a *Actor[Req, Res]) handle(j job[Req, Res]) {
	line := a.codec.Encode(j.req)

	if err := a.conn.WriteLine(line); err != nil {
		a.die(err, j)
		return
	}
	resp, err := a.conn.ReadLine()
	if err != nil {
		a.die(err, j)
		return
	}

	value, err := a.codec.Decode(resp)
	if err != nil {
		a.failed.Add(1)
		a.logger.Warn("worker protocol violation", "error", err)
		j.done <- Result[Res]{Err: violation(a.lang, err)}
		return
	}

	a.served.Add(1)
	a.logger.Debug("request served", "wait_ms", time.Since(j.enqueuedAt).Milliseconds())
	j.done <- Result[Res]{Value: value}
}

// die fails the in-flight job and everything queued behind it. The actor
// stays dead; no respawn is attempted.
func (a *Actor[Req, Res]) die(err error, inFlight job[Req, Res]) {
	a.mu.Lock()
	if a.state == StateReady {
		a.state = StateDead
		a.cause = err
	}
	pending := a.queue
	a.queue = nil
	a.mu.Unlock()

	attrs := []any{"error", err, "queued", len(pending)}
	if s, ok := a.conn.(interface{ Stderr() string }); ok {
		if tail := s.Stderr(); tail != "" {
			attrs = append(attrs, "stderr", tail)
		}
	}
	a.logger.Error("worker process died", attrs...)

	a.fail(append([]job[Req, Res]{inFlight}, pending...), err)
}

func (a *Actor[Req, Res]) fail(jobs []job[Req, Res], cause error) {
	for _, j := range jobs {
		a.failed.Add(1)
		j.done <- Result[Res]{Err: Unavailable(a.lang, cause)}
	}
}

// Close stops accepting requests, fails the queued ones, waits for the
// in-flight request and shuts the worker process down. If ctx ends first the
// process is killed, which fails the in-flight request.
func (a *Actor[Req, Res]) Close(ctx context.Context) error {
	a.mu.Lock()
	if a.state == StateClosed {
		a.mu.Unlock()
		return nil
	}
	a.state = StateClosed
	pending := a.queue
	a.queue = nil
	a.mu.Unlock()

	a.fail(pending, errWorkerStopped)
	a.stopOnce.Do(func() { close(a.stop) })

	if a.conn == nil {
		return nil
	}
	select {
	case <-a.stopped:
	case <-ctx.Done():
		a.logger.Warn("in-flight request did not finish before shutdown deadline")
	}
	// With ctx done, run may still be blocked in ReadLine. Killing the
	// process closes its stdout and fails that read, which lets run exit.
	err := a.conn.Close(ctx)
	<-a.stopped
	a.logger.Info("worker actor stopped", "served", a.served.Load(), "failed", a.failed.Load())
	return err
}

// Stats returns a snapshot of the actor's state and counters.
func (a *Actor[Req, Res]) Stats() ActorStats {
	a.mu.Lock()
	st := ActorStats{
		Kind:     a.kind,
		Language: a.lang,
		State:    a.state,
		Queued:   len(a.queue),
	}
	if a.cause != nil {
		st.Cause = a.cause.Error()
	}
	a.mu.Unlock()

	st.PID = a.pid()
	st.Served = a.served.Load()
	st.Failed = a.failed.Load()
	return st
}

func (a *Actor[Req, Res]) pid() int {
	if p, ok := a.conn.(interface{ PID() int }); ok {
		return p.PID()
	}
	return 0
}
