//go:build !windows

package util

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

func getCurrentWindowProcessNames() ([]string, error) {
	return nil, errors.New("not implemented")
}

func createMutex(name string) error {
	lockFile := name + ".lock"
	currentPid := os.Getpid()

	lockContent, err := os.ReadFile(lockFile)
	if err == nil {
		lockProcessID, convErr := strconv.Atoi(strings.TrimSpace(string(lockContent)))
		if convErr == nil && lockProcessID != currentPid {
			process, err := os.FindProcess(lockProcessID)

			// signal 0 only probes for existence
			if err == nil && process.Signal(syscall.Signal(0)) == nil {
				return fmt.Errorf("another instance of %s is running (pid %d)", name, lockProcessID)
			}
		}
	}

	if err := os.WriteFile(lockFile, []byte(strconv.Itoa(currentPid)), 0664); err != nil {
		return fmt.Errorf("write lock file %s: %w", lockFile, err)
	}

	return nil
}
