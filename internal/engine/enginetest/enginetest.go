// Package enginetest provides a scripted UCI engine running in-process, for
// tests that would otherwise need a real engine binary.
package enginetest

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/hailam/guidedclever/internal/engine"
)

// Handler answers one command received by the fake engine.
type Handler func(e *Engine, cmd string)

// Engine is the engine side of a pipe pair.
type Engine struct {
	handler Handler

	mu   sync.Mutex
	out  *io.PipeWriter
	cmds []string

	streamStop chan struct{}
	streamWG   sync.WaitGroup
}

// New starts a fake engine and returns it with the adapter side of the
// connection. A nil handler answers nothing.
func New(h Handler) (*Engine, *engine.StreamConn) {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	e := &Engine{handler: h, out: outW}
	go e.loop(inR)
	return e, engine.NewConn(outR, inW)
}

func (e *Engine) loop(in *io.PipeReader) {
	defer e.Crash()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		cmd := strings.TrimSpace(scanner.Text())
		e.mu.Lock()
		e.cmds = append(e.cmds, cmd)
		e.mu.Unlock()

		if e.handler != nil {
			e.handler(e, cmd)
		}
		if cmd == "quit" {
			return
		}
	}
}

// Send writes lines to the adapter.
func (e *Engine) Send(lines ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, l := range lines {
		fmt.Fprintln(e.out, l)
	}
}

// Commands returns the commands received so far.
func (e *Engine) Commands() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.cmds...)
}

// Received reports whether cmd has been received.
func (e *Engine) Received(cmd string) bool {
	for _, c := range e.Commands() {
		if c == cmd {
			return true
		}
	}
	return false
}

// StartStream sends line every interval until StopStream.
func (e *Engine) StartStream(line string, every time.Duration) {
	e.StopStream()
	stop := make(chan struct{})
	e.streamStop = stop
	e.streamWG.Add(1)
	go func() {
		defer e.streamWG.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				e.Send(line)
			}
		}
	}()
}

// StopStream ends a stream started with StartStream and waits for it.
func (e *Engine) StopStream() {
	if e.streamStop != nil {
		close(e.streamStop)
		e.streamStop = nil
	}
	e.streamWG.Wait()
}

// Crash closes the engine's output as if the process had exited.
func (e *Engine) Crash() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.out.Close()
}

// Basic answers the handshake and readiness probe as an engine called name
// with the given options, and passes every other command to next.
func Basic(name string, options []string, next Handler) Handler {
	return func(e *Engine, cmd string) {
		switch cmd {
		case "uci":
			lines := []string{"id name " + name, "id author Test Author"}
			for _, opt := range options {
				lines = append(lines, "option name "+opt+" type spin default 1 min 1 max 500")
			}
			e.Send(append(lines, "uciok")...)
		case "isready":
			e.Send("readyok")
		default:
			if next != nil {
				next(e, cmd)
			}
		}
	}
}
