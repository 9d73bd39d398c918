package worker

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	// maxStderrBytes caps the stderr tail kept for diagnostics.
	maxStderrBytes = 64 * 1024

	// MaxLineBytes caps one response line, terminator excluded.
	MaxLineBytes = 16 << 20

	// terminationGracePeriod is how long Close waits at each escalation step
	// (stdin closed, SIGTERM) before moving to the next one.
	terminationGracePeriod = 5 * time.Second
)

// ErrWorkerDied reports that the worker's pipes closed underneath us.
var ErrWorkerDied = errors.New("worker process died")

// ErrLineTooLong reports a response line over the size cap. The rest of the
// stream cannot be trusted afterwards, so it is also reported as ErrWorkerDied.
var ErrLineTooLong = errors.New("response line too long")

// Spec describes how to launch a worker executable.
type Spec struct {
	Executable string
	Args       []string
	Dir        string
	Env        []string
}

func (s Spec) String() string {
	return strings.TrimSpace(s.Executable + " " + strings.Join(s.Args, " "))
}

// SpawnError reports that a worker process could not be created.
type SpawnError struct {
	Executable string
	Err        error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Executable, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Process owns the pipes of one long-lived worker process. It is not safe for
// concurrent use; an Actor serializes access to it.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	stderr *tailBuffer
	// maxLine is MaxLineBytes outside of tests.
	maxLine int

	closeOnce sync.Once
	closeErr  error
}

// Spawn starts the worker described by spec with piped stdin/stdout/stderr.
func Spawn(spec Spec) (*Process, error) {
	path, err := exec.LookPath(spec.Executable)
	if err != nil {
		return nil, &SpawnError{Executable: spec.Executable, Err: err}
	}

	// Not CommandContext: termination is managed by Close.
	cmd := exec.Command(path, spec.Args...)
	cmd.Dir = spec.Dir
	// Grandchildren holding stderr open must not stall Wait forever.
	cmd.WaitDelay = terminationGracePeriod
	if len(spec.Env) > 0 {
		cmd.Env = append(cmd.Environ(), spec.Env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &SpawnError{Executable: spec.Executable, Err: fmt.Errorf("create stdin pipe: %w", err)}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &SpawnError{Executable: spec.Executable, Err: fmt.Errorf("create stdout pipe: %w", err)}
	}
	stderr := &tailBuffer{max: maxStderrBytes}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Executable: spec.Executable, Err: fmt.Errorf("start process: %w", err)}
	}

	return &Process{
		cmd:     cmd,
		stdin:   stdin,
		stdout:  bufio.NewReader(stdout),
		stderr:  stderr,
		maxLine: MaxLineBytes,
	}, nil
}

// PID returns the OS process id.
func (p *Process) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// WriteLine writes text followed by a single newline. Anything from the
// first newline on is dropped so one call is always exactly one line; a
// carriage return just before it goes too.
func (p *Process) WriteLine(text string) error {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = strings.TrimSuffix(text[:i], "\r")
	}
	if _, err := io.WriteString(p.stdin, text+"\n"); err != nil {
		return fmt.Errorf("%w: write request: %v", ErrWorkerDied, err)
	}
	return nil
}

// ReadLine blocks until the worker emits one full line and returns it without
// the line terminator. An unterminated final line is returned as-is. A line
// longer than MaxLineBytes fails with ErrLineTooLong.
func (p *Process) ReadLine() (string, error) {
	var buf []byte
	for {
		chunk, err := p.stdout.ReadSlice('\n')
		buf = append(buf, chunk...)
		if len(bytes.TrimRight(buf, "\r\n")) > p.maxLine {
			return "", fmt.Errorf("%w: %w: more than %d bytes", ErrWorkerDied, ErrLineTooLong, p.maxLine)
		}
		switch {
		case err == nil:
			line := strings.TrimSuffix(string(buf), "\n")
			return strings.TrimSuffix(line, "\r"), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(buf) > 0:
			return strings.TrimSuffix(string(buf), "\r"), nil
		case errors.Is(err, io.EOF):
			return "", fmt.Errorf("%w: stdout closed", ErrWorkerDied)
		default:
			return "", fmt.Errorf("%w: read response: %v", ErrWorkerDied, err)
		}
	}
}

// CloseInput closes the worker's stdin without waiting for it to exit.
func (p *Process) CloseInput() error {
	return p.stdin.Close()
}

// Stderr returns the most recent stderr output of the worker.
func (p *Process) Stderr() string {
	return p.stderr.String()
}

// Close closes stdin and waits for the worker to exit, escalating to SIGTERM
// and then SIGKILL after terminationGracePeriod each. A done ctx skips
// straight to SIGKILL.
func (p *Process) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		p.closeErr = p.terminate(ctx)
	})
	return p.closeErr
}

func (p *Process) terminate(ctx context.Context) error {
	_ = p.stdin.Close()

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- p.cmd.Wait()
	}()

	grace := time.NewTimer(terminationGracePeriod)
	defer grace.Stop()

	select {
	case err := <-waitErr:
		return exitError(err)
	case <-ctx.Done():
		_ = p.cmd.Process.Kill()
		<-waitErr
		return ctx.Err()
	case <-grace.C:
	}

	_ = p.cmd.Process.Signal(syscall.SIGTERM)
	grace.Reset(terminationGracePeriod)

	select {
	case err := <-waitErr:
		return exitError(err)
	case <-ctx.Done():
	case <-grace.C:
	}

	_ = p.cmd.Process.Kill()
	<-waitErr
	return nil
}

// exitError ignores non-zero exits; a worker told to stop may exit however it likes.
func exitError(err error) error {
	var exitErr *exec.ExitError
	if err == nil || errors.As(err, &exitErr) {
		return nil
	}
	return fmt.Errorf("wait for process: %w", err)
}

// tailBuffer is an io.Writer that keeps only the last max bytes written.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
