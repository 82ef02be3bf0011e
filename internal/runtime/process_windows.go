//go:build windows

package runtime

// Windows has no SIGTERM equivalent for console subprocesses, so terminate
// degrades to kill.
func (p *execProcess) Terminate() error {
	return p.cmd.Process.Kill()
}
