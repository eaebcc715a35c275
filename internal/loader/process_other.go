//go:build windows

package loader

import "os/exec"

// setupProcessGroup is a no-op on Windows; golang.org/x/sys/unix's
// process-group primitives don't apply there. A cancelled load on Windows
// falls back to killing the direct child only.
func setupProcessGroup(cmd *exec.Cmd) {}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process != nil {
		cmd.Process.Kill()
	}
}
