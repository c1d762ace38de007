package engine

import (
	"fmt"
	"os"
	"os/exec"
	"time"
)

// Process is a wrapped engine running as a child process. Its stdout and
// stderr are merged into the line stream.
type Process struct {
	*StreamConn
	cmd *exec.Cmd
}

// Start launches the engine executable at path.
func Start(path string) (*Process, error) {
	cmd := exec.Command(path)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("start %s: %w", path, err)
	}
	// The child holds its own copy of the write end.
	pw.Close()

	return &Process{StreamConn: NewConn(pr, stdin), cmd: cmd}, nil
}

// Pid returns the child's process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Shutdown closes the engine's stdin and waits for it to exit, killing it
// after grace.
func (p *Process) Shutdown(grace time.Duration) error {
	p.StreamConn.Close()

	done := make(chan error, 1)
	go func() { done <- p.cmd.Wait() }()

	select {
	case err := <-done:
		return err
	case <-time.After(grace):
		p.cmd.Process.Kill()
		return <-done
	}
}
