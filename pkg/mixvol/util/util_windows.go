package util

import (
	"errors"
	"fmt"
	"syscall"
	"time"

	"github.com/lxn/win"
	"github.com/mitchellh/go-ps"
	"golang.org/x/sys/windows"
)

const (
	getCurrentWindowInternalCooldown = time.Millisecond * 350
)

var (
	lastGetCurrentWindowResult []string
	lastGetCurrentWindowCall   = time.Now()
)

func getCurrentWindowProcessNames() ([]string, error) {
	// apply an internal cooldown on this function to avoid calling windows API functions too frequently.
	// return a cached value during that cooldown
	now := time.Now()
	if lastGetCurrentWindowCall.Add(getCurrentWindowInternalCooldown).After(now) {
		return lastGetCurrentWindowResult, nil
	}

	lastGetCurrentWindowCall = now

	// UWP apps are rendered inside ApplicationFrameHost.exe, so the foreground window belongs to that
	// container process. the same goes for launchers like steam. collect the child windows' processes too,
	// looking them up is cheap and one of them is the process actually playing audio
	result := []string{}

	hwnd := win.GetForegroundWindow()

	var ownerPID uint32
	win.GetWindowThreadProcessId(hwnd, &ownerPID)

	// system PID
	if ownerPID == 0 {
		return nil, nil
	}

	process, err := ps.FindProcess(int(ownerPID))
	if err != nil {
		return nil, fmt.Errorf("get parent process for pid %d: %w", ownerPID, err)
	}

	if process == nil {
		return nil, fmt.Errorf("parent process %d already exited", ownerPID)
	}

	result = append(result, process.Executable())

	enumChildWindowsCallback := func(childHWND win.HWND, _ uintptr) uintptr {
		var childPID uint32
		win.GetWindowThreadProcessId(childHWND, &childPID)

		if childPID != ownerPID {
			// children may exit while we iterate, just skip them
			if actualProcess, err := ps.FindProcess(int(childPID)); err == nil && actualProcess != nil {
				result = append(result, actualProcess.Executable())
			}
		}

		// keep iterating
		return 1
	}

	win.EnumChildWindows(hwnd, syscall.NewCallback(enumChildWindowsCallback), 0)

	lastGetCurrentWindowResult = result
	return result, nil
}

func createMutex(name string) error {
	mutexName, err := windows.UTF16PtrFromString("Global\\" + name)
	if err != nil {
		return fmt.Errorf("encode mutex name: %w", err)
	}

	// relying on the OS to release it on program exit
	_, err = windows.CreateMutex(nil, false, mutexName)
	if errors.Is(err, windows.ERROR_ALREADY_EXISTS) {
		return fmt.Errorf("another instance of %s is running", name)
	}

	if err != nil {
		return fmt.Errorf("create mutex: %w", err)
	}

	return nil
}
