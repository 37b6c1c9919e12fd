package lockfile

import (
	"encoding/json"
	"fmt"
	"os"
	"syscall"

	"github.com/mvcruz/lockstep/pkg/types"
)

// Inspect reads the owner metadata stamped into a lock file and reports
// whether the recorded PID still refers to a live process. A dead owner
// with kernel flock state already dropped is harmless; a dead owner is
// only reported, never recovered from automatically.
func Inspect(path string) (*types.LockInfo, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("read lock file %s: %w", path, err)
	}

	if len(data) == 0 {
		// lock file exists but was never stamped (created by a bare acquire)
		return nil, false, nil
	}

	var info types.LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, false, fmt.Errorf("decode lock metadata %s: %w", path, err)
	}

	return &info, pidAlive(info.PID), nil
}

// signal 0 probes for existence without delivering anything
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
