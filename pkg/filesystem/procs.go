package filesystem

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// maxHoldingProcs caps the diagnostic list handed to the recovery dialog.
const maxHoldingProcs = 8

// holdingProcesses identifies processes holding path open, best effort, by
// scanning /proc fd tables. Any failure yields an empty list; this is
// diagnostic data for the busy-file dialog, never a hard dependency.
func holdingProcesses(path string) []string {
	target, err := filepath.EvalSymlinks(path)
	if err != nil {
		target = path
	}

	procs, err := os.ReadDir("/proc")
	if err != nil {
		return nil
	}

	var out []string
	for _, proc := range procs {
		if !proc.IsDir() || !isNumeric(proc.Name()) {
			continue
		}
		fdDir := filepath.Join("/proc", proc.Name(), "fd")
		fds, err := os.ReadDir(fdDir)
		if err != nil {
			continue
		}
		for _, fd := range fds {
			link, err := os.Readlink(filepath.Join(fdDir, fd.Name()))
			if err != nil || link != target {
				continue
			}
			name := processName(proc.Name())
			out = append(out, fmt.Sprintf("%s (pid %s)", name, proc.Name()))
			break
		}
		if len(out) >= maxHoldingProcs {
			break
		}
	}
	return out
}

func processName(pid string) string {
	data, err := os.ReadFile(filepath.Join("/proc", pid, "comm"))
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(data))
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
