//go:build !windows

package runtime

import "syscall"

func (p *execProcess) Terminate() error {
	return p.cmd.Process.Signal(syscall.SIGTERM)
}
