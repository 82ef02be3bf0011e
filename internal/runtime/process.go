package runtime

import (
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// Process is a started crew subprocess.
type Process interface {
	PID() int
	// ExitCode returns nil while the process is still running.
	ExitCode() *int
	Stdout() io.Reader
	Stderr() io.Reader
	Terminate() error
	Kill() error
	// Wait blocks until the process exits and returns its exit code. It
	// must be called after both output streams have been drained.
	Wait() int
}

type execProcess struct {
	cmd    *exec.Cmd
	stdout io.Reader
	stderr io.Reader

	mu       sync.Mutex
	waitOnce sync.Once
	exitCode *int
}

// startProcess launches argv in dir with the given environment.
func startProcess(argv []string, dir string, env []string) (Process, error) {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = env

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start process: %w", err)
	}
	return &execProcess{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

func (p *execProcess) PID() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) ExitCode() *int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exitCode == nil {
		return nil
	}
	code := *p.exitCode
	return &code
}

func (p *execProcess) Stdout() io.Reader { return p.stdout }
func (p *execProcess) Stderr() io.Reader { return p.stderr }

func (p *execProcess) Kill() error {
	return p.cmd.Process.Kill()
}

func (p *execProcess) Wait() int {
	p.waitOnce.Do(func() {
		err := p.cmd.Wait()
		code := -1
		if p.cmd.ProcessState != nil {
			code = p.cmd.ProcessState.ExitCode()
		} else if err == nil {
			code = 0
		}
		p.mu.Lock()
		p.exitCode = &code
		p.mu.Unlock()
	})
	p.mu.Lock()
	defer p.mu.Unlock()
	return *p.exitCode
}
