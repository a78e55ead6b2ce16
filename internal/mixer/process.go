package mixer

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessResolver maps a PID to the path of its executable.
type ProcessResolver interface {
	ExePath(pid uint32) (string, error)
}

// ProcessTable resolves executables through the host process table.
type ProcessTable struct{}

func (ProcessTable) ExePath(pid uint32) (string, error) {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return "", fmt.Errorf("process %d: %w", pid, err)
	}
	exe, err := proc.Exe()
	if err == nil && exe != "" {
		return exe, nil
	}
	// Exe needs elevated rights for processes owned by other users on some
	// platforms; the short name is still good enough for matching.
	name, nameErr := proc.Name()
	if nameErr != nil || name == "" {
		return "", fmt.Errorf("process %d executable: %w", pid, err)
	}
	return name, nil
}
