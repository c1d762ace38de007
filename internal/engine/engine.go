// Package engine talks UCI to the wrapped engine. Every operation blocks
// until the engine answers with the line that terminates it.
//
// An Engine is owned by a single goroutine; it has no locking of its own.
package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hailam/guidedclever/internal/search"
)

// PollInterval is how often a running search checks for cancellation.
const PollInterval = 10 * time.Millisecond

// ErrChannelClosed is returned when the engine's output ends or a command
// cannot be written. The session cannot continue after it.
var ErrChannelClosed = errors.New("engine channel closed")

// Cancellation is polled by running searches.
type Cancellation interface {
	IsSet() bool
}

// Relay receives engine output forwarded to the controller.
type Relay interface {
	Println(line string)
}

// Identity is what the engine reports during the uci handshake.
type Identity struct {
	Name    string
	Author  string
	Options []string

	// OptionLines are the "option ..." lines as the engine sent them.
	OptionLines []string
}

// HasOption looks up an advertised option case-insensitively and returns
// its name as the engine spells it.
func (id Identity) HasOption(name string) (string, bool) {
	for _, opt := range id.Options {
		if strings.EqualFold(opt, name) {
			return opt, true
		}
	}
	return "", false
}

// Engine is the adapter over one connection to a wrapped engine.
type Engine struct {
	conn      Conn
	out       Relay
	searching bool
}

// New returns an adapter reading and writing conn and relaying to out.
func New(conn Conn, out Relay) *Engine {
	return &Engine{conn: conn, out: out}
}

// Searching reports whether a search has been started and its best move
// not yet read.
func (e *Engine) Searching() bool {
	return e.searching
}

// Handshake sends "uci" and collects the identity and option names up to "uciok".
func (e *Engine) Handshake() (Identity, error) {
	var id Identity
	if err := e.send("uci"); err != nil {
		return id, err
	}

	for {
		line, err := e.next()
		if err != nil {
			return id, err
		}
		line = strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(line, "id name "):
			id.Name = strings.TrimPrefix(line, "id name ")
		case strings.HasPrefix(line, "id author "):
			id.Author = strings.TrimPrefix(line, "id author ")
		case strings.HasPrefix(line, "option name "):
			if name := optionName(line); name != "" {
				id.Options = append(id.Options, name)
				id.OptionLines = append(id.OptionLines, line)
			}
		case line == "uciok":
			return id, nil
		}
	}
}

// optionName extracts the name from "option name <name> type <t> ...".
func optionName(line string) string {
	rest := strings.TrimPrefix(line, "option name ")
	if i := strings.Index(rest, " type "); i >= 0 {
		rest = rest[:i]
	}
	return strings.TrimSpace(rest)
}

// AwaitReady sends "isready" and relays output up to and including "readyok".
func (e *Engine) AwaitReady() error {
	if err := e.send("isready"); err != nil {
		return err
	}
	for {
		line, err := e.next()
		if err != nil {
			return err
		}
		e.out.Println(line)
		if strings.TrimSpace(line) == "readyok" {
			return nil
		}
	}
}

// SetPosition forwards a full "position ..." command.
func (e *Engine) SetPosition(cmd string) error {
	return e.send(cmd)
}

// SetOption sends "setoption name <name> value <value>".
func (e *Engine) SetOption(name, value string) error {
	if value == "" {
		return e.send("setoption name " + name)
	}
	return e.send(fmt.Sprintf("setoption name %s value %s", name, value))
}

// NewGame sends "ucinewgame".
func (e *Engine) NewGame() error {
	return e.send("ucinewgame")
}

// Search runs a bounded search. Output is fed to c and not relayed; it
// returns once c has seen the best move line. If cancel fires, "stop" is
// forwarded once and the search still completes normally.
func (e *Engine) Search(cmd string, c *search.Collector, cancel Cancellation) error {
	if err := e.send(cmd); err != nil {
		return err
	}
	e.searching = true

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	stopped := false
	for {
		select {
		case line, ok := <-e.conn.Lines():
			if !ok {
				return e.closed()
			}
			done, err := c.Observe(line)
			if err != nil {
				e.degraded(err)
			}
			if done {
				e.searching = false
				return nil
			}
		case <-ticker.C:
			if !stopped && cancel != nil && cancel.IsSet() {
				log.Debug().Str("cmd", cmd).Msg("stopping bounded search")
				if err := e.send("stop"); err != nil {
					return err
				}
				stopped = true
			}
		}
	}
}

// SearchUnbounded starts "go infinite" style searches. See relay.
func (e *Engine) SearchUnbounded(cmd string, c *search.Collector, cancel Cancellation) error {
	return e.relay(cmd, c, cancel)
}

// Ponder starts a "go ponder" search. See relay.
func (e *Engine) Ponder(cmd string, c *search.Collector, cancel Cancellation) error {
	return e.relay(cmd, c, cancel)
}

// relay sends cmd and forwards every output line verbatim, also feeding c
// when it is not nil. It returns when cancel fires, leaving the search
// running for Interrupt or PonderHit to finish, or when the engine ends the
// search on its own.
func (e *Engine) relay(cmd string, c *search.Collector, cancel Cancellation) error {
	if err := e.send(cmd); err != nil {
		return err
	}
	e.searching = true

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case line, ok := <-e.conn.Lines():
			if !ok {
				return e.closed()
			}
			e.out.Println(line)
			if c != nil {
				c.Observe(line)
			}
			if search.IsBestMove(line) {
				e.searching = false
				return nil
			}
		case <-ticker.C:
			if cancel != nil && cancel.IsSet() {
				return nil
			}
		}
	}
}

// Interrupt sends "stop" to a running search and returns its best move
// line. Output before it is relayed. With no search running it does nothing
// and returns "".
func (e *Engine) Interrupt(c *search.Collector) (string, error) {
	return e.finish("stop", c)
}

// PonderHit sends "ponderhit" and waits for the best move like Interrupt.
func (e *Engine) PonderHit(c *search.Collector) (string, error) {
	return e.finish("ponderhit", c)
}

func (e *Engine) finish(cmd string, c *search.Collector) (string, error) {
	if !e.searching {
		return "", nil
	}
	if err := e.send(cmd); err != nil {
		return "", err
	}

	for {
		line, err := e.next()
		if err != nil {
			return "", err
		}
		if c != nil {
			if _, err := c.Observe(line); err != nil {
				e.degraded(err)
			}
		}
		if search.IsBestMove(line) {
			e.searching = false
			return strings.TrimSpace(line), nil
		}
		e.out.Println(line)
	}
}

// Terminate sends "quit". No reply is awaited.
func (e *Engine) Terminate() error {
	e.searching = false
	return e.send("quit")
}

func (e *Engine) degraded(err error) {
	log.Warn().Err(err).Msg("degraded evaluation line")
	e.out.Println(fmt.Sprintf("info string %v, use 0", err))
}

func (e *Engine) send(cmd string) error {
	log.Debug().Str("cmd", cmd).Msg("to engine")
	if err := e.conn.WriteLine(cmd); err != nil {
		return fmt.Errorf("%w: write %q: %v", ErrChannelClosed, cmd, err)
	}
	return nil
}

func (e *Engine) next() (string, error) {
	line, ok := <-e.conn.Lines()
	if !ok {
		return "", e.closed()
	}
	return line, nil
}

func (e *Engine) closed() error {
	if err := e.conn.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChannelClosed, err)
	}
	return ErrChannelClosed
}
