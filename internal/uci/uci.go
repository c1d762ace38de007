// Package uci is the controller-facing side of the relay: it answers the
// handshake itself and hands everything else to the dispatcher.
package uci

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hailam/guidedclever/internal/console"
	"github.com/hailam/guidedclever/internal/dispatch"
)

// Public identity
const (
	Name    = "GuidedClever"
	Version = "v1.0.0"
	Author  = "Ajedrecista and Ferdy"
)

// UCI implements the front-end loop of the Universal Chess Interface protocol.
type UCI struct {
	in     io.Reader
	out    *console.Console
	queue  *dispatch.Queue
	signal *dispatch.Signal

	// Options of the wrapped engine advertised alongside our own
	engineOptions []string
}

// New creates a front-end reading controller commands from in.
// engineOptions are "option ..." lines of the wrapped engine to advertise.
func New(in io.Reader, out *console.Console, queue *dispatch.Queue, signal *dispatch.Signal, engineOptions []string) *UCI {
	return &UCI{
		in:            in,
		out:           out,
		queue:         queue,
		signal:        signal,
		engineOptions: engineOptions,
	}
}

// Run reads commands until "quit", end of input or ctx ends. End of input
// is treated as "quit".
func (u *UCI) Run(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(u.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				log.Info().Msg("controller input closed")
				u.queue.Push(dispatch.Parse("quit"))
				select {
				case err := <-readErr:
					return err
				default:
					return ctx.Err()
				}
			}
			if u.Handle(line) {
				return nil
			}
		}
	}
}

// Handle processes one controller line and reports whether it was "quit".
func (u *UCI) Handle(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	log.Debug().Str("cmd", line).Msg("from controller")

	if line == "uci" {
		u.handleUCI()
		return false
	}

	cmd := dispatch.Parse(line)
	switch {
	case cmd.Kind == dispatch.KindUnknown:
		u.out.Info("unknown command %s", line)
		return false
	case cmd.IsSearch():
		u.signal.Clear()
	case cmd.Kind == dispatch.KindStop, cmd.Kind == dispatch.KindPonderHit:
		// Raised before queueing so a running relay sees it on its next poll.
		u.signal.Set()
	}

	u.queue.Push(cmd)
	return cmd.Kind == dispatch.KindQuit
}

// handleUCI responds to the "uci" command.
func (u *UCI) handleUCI() {
	u.out.Printf("id name %s %s", Name, Version)
	u.out.Printf("id author %s", Author)
	u.out.Printf("option name %s type string default 1.0 min 0.0 max %.1f", dispatch.OptionK, dispatch.MaxK)
	for _, opt := range u.engineOptions {
		if optionIsK(opt) {
			continue
		}
		u.out.Println(opt)
	}
	u.out.Println("uciok")
}

func optionIsK(line string) bool {
	fields := strings.Fields(line)
	return len(fields) >= 4 && fields[2] == dispatch.OptionK && fields[3] == "type"
}
