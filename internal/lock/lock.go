// Package lock keeps two consolidations from writing one output directory at
// the same time.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// FileName is the lock file's name inside the output directory.
const FileName = ".brcamerge.lock"

// Path returns the lock path for an output directory.
func Path(outputDir string) string {
	return filepath.Join(outputDir, FileName)
}

// Acquire creates the lock file with the current process PID. A lock left by
// a process that is no longer running is taken over.
func Acquire(path string) error {
	held, pid, err := IsHeld(path)
	if err != nil {
		return err
	}
	if held && pid != os.Getpid() {
		return fmt.Errorf("another brcamerge run is writing %s (PID %d)", filepath.Dir(path), pid)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating lock directory: %w", err)
	}

	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// Release removes the lock file.
func Release(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// IsHeld checks if the lock is currently held by a running process.
func IsHeld(path string) (bool, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return false, 0, nil
	}
	return isProcessRunning(pid), pid, nil
}

func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
