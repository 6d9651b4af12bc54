package mixvol

import (
	"fmt"

	"github.com/mitchellh/go-ps"
)

// psProcessDirectory resolves pids through the OS process table.
// On Linux the name is the kernel's comm value, which is truncated to 15 characters.
type psProcessDirectory struct{}

func NewProcessDirectory() ProcessDirectory {
	return psProcessDirectory{}
}

func (psProcessDirectory) ResolveName(pid uint32) (string, error) {
	process, err := ps.FindProcess(int(pid))
	if err != nil {
		return "", fmt.Errorf("find process %d: %w", pid, err)
	}

	// go-ps reports a missing process as (nil, nil)
	if process == nil {
		return "", fmt.Errorf("pid %d: %w", pid, ErrProcessNotFound)
	}

	return process.Executable(), nil
}
