// Package console serializes the lines written to the controller.
package console

import (
	"bufio"
	"fmt"
	"io"
	"sync"
)

// Console writes whole lines to the controller. The front-end loop and the
// dispatcher both print, so every line is written and flushed under a lock.
type Console struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// New returns a console writing to w.
func New(w io.Writer) *Console {
	return &Console{w: bufio.NewWriter(w)}
}

// Println writes one line.
func (c *Console) Println(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.w.WriteString(line)
	c.w.WriteByte('\n')
	c.w.Flush()
}

// Printf formats and writes one line.
func (c *Console) Printf(format string, args ...any) {
	c.Println(fmt.Sprintf(format, args...))
}

// Info writes a diagnostic "info string" line.
func (c *Console) Info(format string, args ...any) {
	c.Println("info string " + fmt.Sprintf(format, args...))
}
