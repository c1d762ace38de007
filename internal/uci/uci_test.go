package uci

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hailam/guidedclever/internal/console"
	"github.com/hailam/guidedclever/internal/dispatch"
)

type frontEnd struct {
	*UCI
	buf *bytes.Buffer
}

func newFrontEnd(input string, engineOptions ...string) *frontEnd {
	buf := &bytes.Buffer{}
	u := New(strings.NewReader(input), console.New(buf), dispatch.NewQueue(), &dispatch.Signal{}, engineOptions)
	return &frontEnd{UCI: u, buf: buf}
}

func (f *frontEnd) drain(t *testing.T) []dispatch.Kind {
	t.Helper()
	var kinds []dispatch.Kind
	for f.queue.Len() > 0 {
		cmd, err := f.queue.Pop(context.Background())
		require.NoError(t, err)
		kinds = append(kinds, cmd.Kind)
	}
	return kinds
}

func TestHandleUCI(t *testing.T) {
	f := newFrontEnd("",
		"option name Hash type spin default 16 min 1 max 33554432",
		"option name K type spin default 0 min 0 max 9",
		"option name MultiPV type spin default 1 min 1 max 500",
	)

	require.False(t, f.Handle("uci"))
	require.Equal(t, strings.Join([]string{
		"id name GuidedClever v1.0.0",
		"id author Ajedrecista and Ferdy",
		"option name K type string default 1.0 min 0.0 max 1000.0",
		"option name Hash type spin default 16 min 1 max 33554432",
		"option name MultiPV type spin default 1 min 1 max 500",
		"uciok",
	}, "\n")+"\n", f.buf.String())
	require.Zero(t, f.queue.Len(), "uci is answered directly")
}

func TestHandleQueues(t *testing.T) {
	f := newFrontEnd("")

	for _, line := range []string{
		"ucinewgame",
		"isready",
		"position startpos moves e2e4",
		"setoption name K value 0.5",
		"go depth 10",
		"",
	} {
		require.False(t, f.Handle(line))
	}

	require.Equal(t, []dispatch.Kind{
		dispatch.KindNewGame,
		dispatch.KindIsReady,
		dispatch.KindPosition,
		dispatch.KindSetOption,
		dispatch.KindGo,
	}, f.drain(t))
	require.Empty(t, f.buf.String())
}

func TestHandleCancellation(t *testing.T) {
	f := newFrontEnd("")

	f.Handle("go infinite")
	require.False(t, f.signal.IsSet())

	f.Handle("stop")
	require.True(t, f.signal.IsSet(), "stop raises the signal before it is queued")

	f.Handle("go ponder wtime 100 btime 100")
	require.False(t, f.signal.IsSet(), "a new search clears the signal")

	f.Handle("ponderhit")
	require.True(t, f.signal.IsSet())

	require.Equal(t, []dispatch.Kind{
		dispatch.KindGoInfinite,
		dispatch.KindStop,
		dispatch.KindGoPonder,
		dispatch.KindPonderHit,
	}, f.drain(t))
}

func TestHandleUnknown(t *testing.T) {
	f := newFrontEnd("")

	require.False(t, f.Handle("debug on"))
	require.Equal(t, "info string unknown command debug on\n", f.buf.String())
	require.Zero(t, f.queue.Len())
}

func TestRun(t *testing.T) {
	t.Run("quit ends the loop", func(t *testing.T) {
		f := newFrontEnd("uci\nisready\nquit\ngo depth 1\n")
		require.NoError(t, f.Run(context.Background()))
		require.Equal(t, []dispatch.Kind{dispatch.KindIsReady, dispatch.KindQuit}, f.drain(t))
		require.Contains(t, f.buf.String(), "uciok")
	})

	t.Run("end of input quits", func(t *testing.T) {
		f := newFrontEnd("position startpos\n")
		require.NoError(t, f.Run(context.Background()))
		require.Equal(t, []dispatch.Kind{dispatch.KindPosition, dispatch.KindQuit}, f.drain(t))
	})

	t.Run("context", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		f := New(blockingReader{}, console.New(&bytes.Buffer{}), dispatch.NewQueue(), &dispatch.Signal{}, nil)
		require.ErrorIs(t, f.Run(ctx), context.DeadlineExceeded)
	})
}

type blockingReader struct{}

func (blockingReader) Read([]byte) (int, error) {
	select {}
}
