//go:build !windows

package monitor

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr places the child in its own process group so TERM
// and KILL sent to -pid reach the whole tree, not just the immediate child.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
