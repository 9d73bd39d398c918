package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/lexgate/internal/protocol"
)

const echoWorker = `#!/bin/sh
while IFS= read -r line; do
  printf '{"text":"%s","errs":[]}\n' "$line"
done
`

func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func TestSpawn_MissingExecutable(t *testing.T) {
	_, err := Spawn(Spec{Executable: filepath.Join(t.TempDir(), "does-not-exist")})
	require.Error(t, err)
	var spawnErr *SpawnError
	assert.ErrorAs(t, err, &spawnErr)
}

func TestSpawn_NotExecutable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.txt")
	require.NoError(t, os.WriteFile(path, []byte("hi"), 0o644))

	_, err := Spawn(Spec{Executable: path})
	var spawnErr *SpawnError
	assert.ErrorAs(t, err, &spawnErr)
}

func TestProcess_WriteReadLine(t *testing.T) {
	p, err := Spawn(Spec{Executable: writeScript(t, "echo.sh", echoWorker)})
	require.NoError(t, err)
	defer p.Close(context.Background())

	assert.Greater(t, p.PID(), 0)

	require.NoError(t, p.WriteLine("hello"))
	line, err := p.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, `{"text":"hello","errs":[]}`, line)

	// Embedded newlines never split a request into two lines.
	require.NoError(t, p.WriteLine("one\ntwo"))
	line, err = p.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, `{"text":"one","errs":[]}`, line)

	// A carriage return inside the first line is part of the request.
	require.NoError(t, p.WriteLine("foo\rbar baz"))
	line, err = p.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "{\"text\":\"foo\rbar baz\",\"errs\":[]}", line)

	require.NoError(t, p.WriteLine("crlf\r\nsecond"))
	line, err = p.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, `{"text":"crlf","errs":[]}`, line)
}

func TestProcess_ReadLineSizeCap(t *testing.T) {
	script := `#!/bin/sh
read -r line
printf '%064d\n' 0
printf '%065d\n' 0
`
	p, err := Spawn(Spec{Executable: writeScript(t, "long.sh", script)})
	require.NoError(t, err)
	defer p.Close(context.Background())
	p.maxLine = 64

	require.NoError(t, p.WriteLine("x"))
	line, err := p.ReadLine()
	require.NoError(t, err)
	assert.Len(t, line, 64)

	_, err = p.ReadLine()
	assert.ErrorIs(t, err, ErrLineTooLong)
	assert.ErrorIs(t, err, ErrWorkerDied)
}

func TestProcess_ReadLineStreamWithoutNewline(t *testing.T) {
	script := `#!/bin/sh
exec tr -d '\n' < /dev/zero
`
	p, err := Spawn(Spec{Executable: writeScript(t, "stream.sh", script)})
	require.NoError(t, err)
	defer func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_ = p.Close(ctx)
	}()
	p.maxLine = 10000

	_, err = p.ReadLine()
	assert.ErrorIs(t, err, ErrLineTooLong)
}

func TestProcess_ReadLineAfterExit(t *testing.T) {
	script := `#!/bin/sh
read -r line
echo "boom" >&2
exit 3
`
	p, err := Spawn(Spec{Executable: writeScript(t, "dies.sh", script)})
	require.NoError(t, err)
	defer p.Close(context.Background())

	require.NoError(t, p.WriteLine("hello"))
	_, err = p.ReadLine()
	assert.ErrorIs(t, err, ErrWorkerDied)

	require.Eventually(t, func() bool { return p.Stderr() == "boom\n" }, 2*time.Second, 10*time.Millisecond)
}

func TestProcess_UnterminatedFinalLine(t *testing.T) {
	script := `#!/bin/sh
read -r line
printf 'partial'
`
	p, err := Spawn(Spec{Executable: writeScript(t, "partial.sh", script)})
	require.NoError(t, err)
	defer p.Close(context.Background())

	require.NoError(t, p.WriteLine("x"))
	line, err := p.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "partial", line)

	_, err = p.ReadLine()
	assert.ErrorIs(t, err, ErrWorkerDied)
}

func TestProcess_ArgsAndEnv(t *testing.T) {
	script := `#!/bin/sh
read -r line
printf '{"text":"%s %s","errs":[]}\n' "$1" "$LEXGATE_TEST"
`
	p, err := Spawn(Spec{
		Executable: writeScript(t, "args.sh", script),
		Args:       []string{"-a"},
		Env:        []string{"LEXGATE_TEST=yes"},
	})
	require.NoError(t, err)
	defer p.Close(context.Background())

	require.NoError(t, p.WriteLine("x"))
	line, err := p.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, `{"text":"-a yes","errs":[]}`, line)
}

func TestProcess_CloseKillsOnDeadline(t *testing.T) {
	script := `#!/bin/sh
trap '' TERM
while true; do sleep 1; done
`
	p, err := Spawn(Spec{Executable: writeScript(t, "stubborn.sh", script)})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = p.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestActorWithProcess(t *testing.T) {
	p, err := Spawn(Spec{Executable: writeScript(t, "echo.sh", echoWorker)})
	require.NoError(t, err)
	a := NewActor[protocol.CheckRequest, *protocol.CheckResult]("se", p, protocol.GrammarCodec{}, ActorOptions{Kind: "grammar"})

	res := await(t, a.Submit(protocol.CheckRequest{Text: "line one\nline two"}))
	require.NoError(t, res.Err)
	assert.Equal(t, "line one", res.Value.Text)
	assert.Equal(t, p.PID(), a.Stats().PID)

	require.NoError(t, a.Close(context.Background()))
}

func TestActorWithProcess_CarriageReturnReachesWorker(t *testing.T) {
	// Reports the request length so the response stays valid JSON.
	script := `#!/bin/sh
while IFS= read -r line; do
  printf '{"text":"%d","errs":[]}\n' "${#line}"
done
`
	p, err := Spawn(Spec{Executable: writeScript(t, "len.sh", script)})
	require.NoError(t, err)
	a := NewActor[protocol.CheckRequest, *protocol.CheckResult]("se", p, protocol.GrammarCodec{}, ActorOptions{Kind: "grammar"})
	defer a.Close(context.Background())

	res := await(t, a.Submit(protocol.CheckRequest{Text: "foo\rbar baz"}))
	require.NoError(t, res.Err)
	assert.Equal(t, "11", res.Value.Text)
}

func TestActorWithProcess_OversizedLineKillsActor(t *testing.T) {
	script := `#!/bin/sh
while IFS= read -r line; do
  printf '{"text":"%0200d","errs":[]}\n' 0
done
`
	p, err := Spawn(Spec{Executable: writeScript(t, "big.sh", script)})
	require.NoError(t, err)
	p.maxLine = 100
	a := NewActor[protocol.CheckRequest, *protocol.CheckResult]("se", p, protocol.GrammarCodec{}, ActorOptions{Kind: "grammar"})
	defer a.Close(context.Background())

	res := await(t, a.Submit(protocol.CheckRequest{Text: "x"}))
	kind, ok := KindOf(res.Err)
	require.True(t, ok)
	assert.Equal(t, KindWorkerUnavailable, kind)
	assert.ErrorIs(t, res.Err, ErrLineTooLong)
	assert.Equal(t, StateDead, a.Stats().State)
}

func TestActorWithProcess_WorkerExitsBeforeAnswering(t *testing.T) {
	script := `#!/bin/sh
read -r line
sleep 0.2
exit 1
`
	p, err := Spawn(Spec{Executable: writeScript(t, "dies.sh", script)})
	require.NoError(t, err)
	dying := NewActor[protocol.CheckRequest, *protocol.CheckResult]("se", p, protocol.GrammarCodec{}, ActorOptions{Kind: "grammar"})
	defer dying.Close(context.Background())

	healthyProc, err := Spawn(Spec{Executable: writeScript(t, "echo.sh", echoWorker)})
	require.NoError(t, err)
	healthy := NewActor[protocol.CheckRequest, *protocol.CheckResult]("sma", healthyProc, protocol.GrammarCodec{}, ActorOptions{Kind: "grammar"})
	defer healthy.Close(context.Background())

	futures := []<-chan Result[*protocol.CheckResult]{
		dying.Submit(protocol.CheckRequest{Text: "a"}),
		dying.Submit(protocol.CheckRequest{Text: "b"}),
		dying.Submit(protocol.CheckRequest{Text: "c"}),
	}
	for _, f := range futures {
		kind, ok := KindOf(await(t, f).Err)
		require.True(t, ok)
		assert.Equal(t, KindWorkerUnavailable, kind)
	}

	res := await(t, healthy.Submit(protocol.CheckRequest{Text: "fine"}))
	require.NoError(t, res.Err)
	assert.Equal(t, "fine", res.Value.Text)
}

func TestActorWithProcess_CloseDeadlineUnblocksRead(t *testing.T) {
	script := `#!/bin/sh
read -r line
exec sleep 30
`
	p, err := Spawn(Spec{Executable: writeScript(t, "silent.sh", script)})
	require.NoError(t, err)
	a := NewActor[protocol.CheckRequest, *protocol.CheckResult]("se", p, protocol.GrammarCodec{}, ActorOptions{Kind: "grammar"})

	future := a.Submit(protocol.CheckRequest{Text: "never answered"})
	require.Eventually(t, func() bool { return a.Stats().Queued == 0 }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	err = a.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 3*time.Second)

	kind, ok := KindOf(await(t, future).Err)
	require.True(t, ok)
	assert.Equal(t, KindWorkerUnavailable, kind)
}
