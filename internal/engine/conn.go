package engine

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Conn is a line-oriented duplex channel to a wrapped engine. Lines is closed
// when the engine side goes away; Err then returns the read error, if any.
type Conn interface {
	Lines() <-chan string
	Err() error
	WriteLine(line string) error
	Close() error
}

// StreamConn implements Conn over a reader and a writer, typically the pipes
// of a child process.
type StreamConn struct {
	w     io.WriteCloser
	lines chan string
	done  chan struct{}
	once  sync.Once

	mu  sync.Mutex
	err error
}

// NewConn starts reading lines from r. Lines written with WriteLine go to w.
func NewConn(r io.Reader, w io.WriteCloser) *StreamConn {
	c := &StreamConn{
		w:     w,
		lines: make(chan string, 256),
		done:  make(chan struct{}),
	}
	go c.read(r)
	return c
}

func (c *StreamConn) read(r io.Reader) {
	defer close(c.lines)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case c.lines <- strings.TrimRight(scanner.Text(), "\r"):
		case <-c.done:
			return
		}
	}

	c.mu.Lock()
	c.err = scanner.Err()
	c.mu.Unlock()
}

// Lines returns the inbound line stream.
func (c *StreamConn) Lines() <-chan string {
	return c.lines
}

// Err returns the error that ended the line stream, nil on a clean EOF.
func (c *StreamConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// WriteLine writes one newline-terminated line.
func (c *StreamConn) WriteLine(line string) error {
	_, err := fmt.Fprintln(c.w, line)
	return err
}

// Close closes the outbound side and stops delivering lines.
func (c *StreamConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.w.Close()
	})
	return err
}
