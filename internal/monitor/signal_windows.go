//go:build windows

package monitor

import "syscall"

var (
	kernel32             = syscall.NewLazyDLL("kernel32.dll")
	procOpenProcess      = kernel32.NewProc("OpenProcess")
	procTerminateProcess = kernel32.NewProc("TerminateProcess")
	procCloseHandle      = kernel32.NewProc("CloseHandle")
)

const (
	PROCESS_TERMINATE         = 0x0001
	PROCESS_QUERY_INFORMATION = 0x0400
)

// killProcess terminates a Windows process by PID. Windows has no TERM/KILL
// distinction and no process-group kill via signal, so both signals map to
// TerminateProcess and a negative (group) pid is folded to its absolute
// value. Signal 0 only checks existence.
func killProcess(pid int, signal syscall.Signal) error {
	if pid == 0 {
		return nil
	}
	if pid < 0 {
		pid = -pid
	}

	if signal == 0 {
		return checkProcessExists(pid)
	}

	handle, err := openProcess(PROCESS_TERMINATE, false, uint32(pid))
	if err != nil {
		// The process most likely exited already; treat as done.
		return nil
	}
	defer func() { _ = closeHandle(handle) }()

	ret, _, callErr := procTerminateProcess.Call(uintptr(handle), uintptr(1))
	if ret == 0 {
		return callErr
	}
	return nil
}

// checkProcessExists is the Windows equivalent of kill(pid, 0).
func checkProcessExists(pid int) error {
	handle, err := openProcess(PROCESS_QUERY_INFORMATION, false, uint32(pid))
	if err != nil {
		return err
	}
	defer func() { _ = closeHandle(handle) }()
	return nil
}

func openProcess(access uint32, inheritHandle bool, processID uint32) (syscall.Handle, error) {
	inherit := 0
	if inheritHandle {
		inherit = 1
	}
	ret, _, err := procOpenProcess.Call(
		uintptr(access),
		uintptr(inherit),
		uintptr(processID),
	)
	if ret == 0 {
		return 0, err
	}
	return syscall.Handle(ret), nil
}

func closeHandle(handle syscall.Handle) error {
	ret, _, err := procCloseHandle.Call(uintptr(handle))
	if ret == 0 {
		return err
	}
	return nil
}

// processExists checks if a process exists (for test compatibility)
func processExists(pid int) bool {
	return checkProcessExists(pid) == nil
}
