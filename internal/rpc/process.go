package rpc

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"time"
)

const processStopTimeout = 5 * time.Second

// Process is a Client talking to a child process over its stdin and stdout.
type Process struct {
	*Client
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

// StartProcess launches command and connects a Client to it. The child's stderr
// is forwarded to ours.
func StartProcess(command []string, modelID string, logger *log.Logger) (*Process, error) {
	if len(command) == 0 {
		return nil, errors.New("process command is empty")
	}
	cmd := exec.Command(command[0], command[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("start process: %w", err)
	}
	return &Process{
		Client: NewClient(stdout, stdin, modelID, logger),
		cmd:    cmd,
		stdin:  stdin,
	}, nil
}

// Close ends the request stream, waits for the child to drain and exit, and
// kills it if it does not exit in time.
func (p *Process) Close() error {
	_ = p.stdin.Close()
	select {
	case <-p.Done():
	case <-time.After(processStopTimeout):
		p.logf("process did not exit, killing it")
		_ = p.cmd.Process.Kill()
		<-p.Done()
	}
	if err := p.cmd.Wait(); err != nil {
		return fmt.Errorf("wait for process: %w", err)
	}
	return nil
}
