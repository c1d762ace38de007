package dispatch

import "sync/atomic"

// Signal is the cancellation flag shared by the front-end loop and the
// dispatcher. It carries no payload and is polled, never waited on.
type Signal struct {
	set atomic.Bool
}

// Set raises the flag.
func (s *Signal) Set() { s.set.Store(true) }

// Clear lowers the flag.
func (s *Signal) Clear() { s.set.Store(false) }

// IsSet reports whether the flag is raised.
func (s *Signal) IsSet() bool { return s.set.Load() }

// interruption is what running searches poll: the signal, or a stop,
// ponderhit or quit already waiting behind the search. The second part
// covers a later "go" clearing the signal before the search saw it.
type interruption struct {
	signal *Signal
	queue  *Queue
}

func (i interruption) IsSet() bool {
	return i.signal.IsSet() || i.queue.Pending(KindStop, KindPonderHit, KindQuit)
}
