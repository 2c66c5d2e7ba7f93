package daemon

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// SignalRunning sends sig to the daemon whose PID is recorded in pidFile.
func SignalRunning(pidFile string, sig syscall.Signal) (int, error) {
	pid, err := ReadPIDFile(pidFile)
	if err != nil {
		return 0, err
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return pid, err
	}
	if err := process.Signal(sig); err != nil {
		return pid, fmt.Errorf("signal pid %d: %w", pid, err)
	}
	return pid, nil
}

// ReadPIDFile reads the PID written by a running daemon.
func ReadPIDFile(pidFile string) (int, error) {
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return 0, fmt.Errorf("daemon not running: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID file %s", pidFile)
	}
	return pid, nil
}
