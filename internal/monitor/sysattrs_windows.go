//go:build windows

package monitor

import (
	"os/exec"
	"syscall"
)

// Windows creation flags
const CREATE_NEW_PROCESS_GROUP = 0x00000200

// configureSysProcAttr creates the child in a new process group so it can
// be terminated independently of the supervisor's console.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: CREATE_NEW_PROCESS_GROUP}
}
