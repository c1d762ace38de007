package dispatch

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/hailam/guidedclever/internal/engine"
	"github.com/hailam/guidedclever/internal/engine/enginetest"
	"github.com/hailam/guidedclever/internal/proba"
	"github.com/hailam/guidedclever/internal/storage"
)

type recorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *recorder) Println(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func (r *recorder) Last() string {
	lines := r.Lines()
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}

func (r *recorder) Has(prefix string) bool {
	for _, l := range r.Lines() {
		if strings.HasPrefix(l, prefix) {
			return true
		}
	}
	return false
}

// twoMoves answers bounded searches with the 50/30 candidate pair.
func twoMoves(e *enginetest.Engine, cmd string) {
	if strings.HasPrefix(cmd, "go depth") {
		e.Send(
			"info depth 8 multipv 1 score cp 50 pv e2e4 e7e5",
			"info depth 8 multipv 2 score cp 30 pv d2d4 d7d5",
			"bestmove e2e4 ponder e7e5",
		)
	}
}

type harness struct {
	t      *testing.T
	fake   *enginetest.Engine
	out    *recorder
	queue  *Queue
	signal *Signal
	d      *Dispatcher
	done   chan error
}

func start(t *testing.T, h enginetest.Handler, opts ...Option) *harness {
	t.Helper()
	fake, conn := enginetest.New(enginetest.Basic("Fakefish", []string{"MultiPV"}, h))
	t.Cleanup(func() { conn.Close() })

	out := &recorder{}
	hs := &harness{
		t:      t,
		fake:   fake,
		out:    out,
		queue:  NewQueue(),
		signal: &Signal{},
		done:   make(chan error, 1),
	}
	opts = append([]Option{WithSampler(proba.NewSampler(rand.NewSource(11)))}, opts...)
	hs.d = New(engine.New(conn, out), out, hs.queue, hs.signal, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { hs.done <- hs.d.Run(ctx) }()
	return hs
}

func (h *harness) push(lines ...string) {
	for _, l := range lines {
		h.queue.Push(Parse(l))
	}
}

// sync waits until every queued command has been applied.
func (h *harness) sync() {
	h.t.Helper()
	n := strings.Count(strings.Join(h.out.Lines(), "\n"), "readyok")
	h.push("isready")
	require.Eventually(h.t, func() bool {
		return strings.Count(strings.Join(h.out.Lines(), "\n"), "readyok") > n
	}, 2*time.Second, time.Millisecond)
}

func TestBoundedSearch(t *testing.T) {
	j, err := storage.OpenInMemory()
	require.NoError(t, err)
	defer j.Close()

	h := start(t, twoMoves, WithJournal(j))
	h.push("position startpos", "go depth 8")
	require.Eventually(t, func() bool { return strings.HasPrefix(h.out.Last(), "bestmove") }, 2*time.Second, time.Millisecond)

	lines := h.out.Lines()
	last := lines[len(lines)-1]
	require.Contains(t, []string{"bestmove e2e4 ponder e7e5", "bestmove d2d4 ponder d7d5"}, last)
	require.True(t, h.out.Has("info string movenumber "))
	require.True(t, h.out.Has("info score cp "))

	if strings.Contains(last, "e2e4") {
		require.Equal(t, "info score cp 50", lines[len(lines)-2])
	} else {
		require.Equal(t, "info score cp 30", lines[len(lines)-2])
	}

	stats, err := j.Stats()
	require.NoError(t, err)
	require.Equal(t, 1, stats.Selections)

	recs, err := j.Recent(1)
	require.NoError(t, err)
	require.Equal(t, "position startpos", recs[0].Position)
	require.Equal(t, "go depth 8", recs[0].Go)
	require.Len(t, recs[0].Candidates, 2)
}

func TestTemperature(t *testing.T) {
	t.Run("K is kept locally", func(t *testing.T) {
		h := start(t, nil)
		h.push("setoption name K value 2.5", "setoption name MultiPV value 1")
		h.sync()

		require.Equal(t, 2.5, h.d.K())
		require.False(t, h.fake.Received("setoption name K value 2.5"))
		require.True(t, h.fake.Received("setoption name MultiPV value 1"))
	})

	t.Run("out of range", func(t *testing.T) {
		h := start(t, nil)
		h.push("setoption name k value 1001", "setoption name K value -1", "setoption name K value hot")
		h.sync()

		require.Equal(t, DefaultK, h.d.K())
		require.Equal(t, 3, strings.Count(strings.Join(h.out.Lines(), "\n"), "info string invalid temperature"))
	})

	t.Run("zero after a spread candidate set", func(t *testing.T) {
		h := start(t, twoMoves)
		h.push("position startpos", "go depth 8", "setoption name K value 0")
		h.sync()

		require.Equal(t, DefaultK, h.d.K())
		require.True(t, h.out.Has("info string invalid temperature: K 0 with several candidates"))
	})

	t.Run("zero with MultiPV above one", func(t *testing.T) {
		h := start(t, nil)
		h.push("setoption name MultiPV value 3", "setoption name K value 0")
		h.sync()

		require.Equal(t, DefaultK, h.d.K())
	})

	t.Run("zero with a single candidate", func(t *testing.T) {
		h := start(t, nil)
		h.push("setoption name K value 0")
		h.sync()

		require.Zero(t, h.d.K())
	})
}

func TestStopUnboundedSearch(t *testing.T) {
	h := start(t, func(e *enginetest.Engine, cmd string) {
		switch cmd {
		case "go infinite":
			e.StartStream("info depth 30 multipv 1 score cp 12 pv g1f3", time.Millisecond)
		case "stop":
			e.StopStream()
			e.Send("bestmove g1f3 ponder g8f6")
		}
	})

	h.signal.Clear()
	h.push("position startpos", "go infinite")
	require.Eventually(t, func() bool { return h.out.Has("info depth 30") }, 2*time.Second, time.Millisecond)

	h.signal.Set()
	h.push("stop")
	require.Eventually(t, func() bool { return h.out.Last() == "bestmove g1f3 ponder g8f6" }, 2*time.Second, time.Millisecond)
	require.False(t, h.out.Has("info string movenumber"), "unbounded searches are relayed, not sampled")

	// The session goes on.
	h.sync()
}

func TestStopBeforeRelayPolls(t *testing.T) {
	h := start(t, func(e *enginetest.Engine, cmd string) {
		if cmd == "stop" {
			e.Send("bestmove a2a3")
		}
	})

	// The signal is cleared again by a following go before the relay ran.
	h.push("go infinite", "stop", "go depth 3")
	require.Eventually(t, func() bool { return h.out.Has("bestmove a2a3") }, 2*time.Second, time.Millisecond)
}

func TestCandidateSetIncomplete(t *testing.T) {
	j, err := storage.OpenInMemory()
	require.NoError(t, err)
	defer j.Close()

	h := start(t, func(e *enginetest.Engine, cmd string) {
		if strings.HasPrefix(cmd, "go") {
			e.Send(
				"info depth 4 multipv 2 score cp 10 pv b1c3",
				"info depth 4 multipv 3 score cp 5 pv g1f3",
				"bestmove b1c3",
			)
		}
	}, WithJournal(j))

	h.push("go depth 4")
	require.Eventually(t, func() bool { return h.out.Has("bestmove") }, 2*time.Second, time.Millisecond)

	lines := h.out.Lines()
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[0], "info string error: candidate set incomplete"))
	require.Equal(t, "bestmove b1c3", lines[1])

	stats, err := j.Stats()
	require.NoError(t, err)
	require.Equal(t, 1, stats.Incomplete)
	require.Zero(t, stats.Selections)
}

func TestPonderHit(t *testing.T) {
	h := start(t, func(e *enginetest.Engine, cmd string) {
		switch cmd {
		case "go ponder wtime 1000 btime 1000":
			e.Send("info depth 6 multipv 1 score cp 20 pv c7c5 g1f3")
		case "ponderhit":
			e.Send("info depth 7 multipv 1 score cp 22 pv c7c5 g1f3", "bestmove c7c5 ponder g1f3")
		}
	})

	h.push("go ponder wtime 1000 btime 1000")
	require.Eventually(t, func() bool { return h.out.Has("info depth 6") }, 2*time.Second, time.Millisecond)

	h.signal.Set()
	h.push("ponderhit")
	require.Eventually(t, func() bool { return strings.HasPrefix(h.out.Last(), "bestmove") }, 2*time.Second, time.Millisecond)

	require.Equal(t, "bestmove c7c5 ponder g1f3", h.out.Last())
	require.True(t, h.out.Has("info string movenumber 1"))
	require.True(t, h.out.Has("info score cp 22"))
}

func TestPonderMiss(t *testing.T) {
	h := start(t, func(e *enginetest.Engine, cmd string) {
		switch {
		case strings.HasPrefix(cmd, "go ponder"):
			e.Send("info depth 6 multipv 1 score cp 20 pv c7c5 g1f3")
		case cmd == "stop":
			e.Send("bestmove c7c5 ponder g1f3")
		}
	})

	h.push("go ponder movetime 100")
	require.Eventually(t, func() bool { return h.out.Has("info depth 6") }, 2*time.Second, time.Millisecond)
	h.signal.Set()
	h.push("stop")

	require.Eventually(t, func() bool { return h.out.Last() == "bestmove c7c5 ponder g1f3" }, 2*time.Second, time.Millisecond)
	require.False(t, h.out.Has("info string movenumber"))
}

func TestQuit(t *testing.T) {
	h := start(t, nil)
	h.push("ucinewgame", "quit")

	select {
	case err := <-h.done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
	require.Eventually(t, func() bool { return h.fake.Received("quit") }, time.Second, time.Millisecond)
	require.True(t, h.fake.Received("ucinewgame"))
}

func TestEngineLost(t *testing.T) {
	h := start(t, func(e *enginetest.Engine, cmd string) {
		if strings.HasPrefix(cmd, "go") {
			e.Crash()
		}
	})
	h.push("go depth 20")

	select {
	case err := <-h.done:
		require.ErrorIs(t, err, engine.ErrChannelClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not report the lost engine")
	}
}
