package elevate

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
)

// RunHelper is the entry point of the privileged helper process. It dials
// the channel the parent is listening on, executes the single request it
// receives, and reports the result back before exiting.
func RunHelper(channel string) error {
	conn, err := net.Dial("unix", channel)
	if err != nil {
		return fmt.Errorf("failed to reach parent channel: %w", err)
	}
	defer func() { _ = conn.Close() }()

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		return fmt.Errorf("failed to decode request: %w", err)
	}

	resp := Response{Outcome: OutcomeSuccess}
	if err := execute(req); err != nil {
		resp = Response{Outcome: OutcomeError, Detail: err.Error()}
	}

	return json.NewEncoder(conn).Encode(resp)
}

func execute(req Request) error {
	switch req.Op {
	case OpMakeAccessible:
		return makeAccessible(req.Path, req.Recursive)
	default:
		return fmt.Errorf("unknown operation %q", req.Op)
	}
}

// makeAccessible hands ownership of path back to the invoking (pre-
// elevation) user and grants owner read/write, plus traverse on
// directories.
func makeAccessible(path string, recursive bool) error {
	uid, gid := invokingUser()

	fix := func(p string, info fs.FileInfo) error {
		if uid >= 0 {
			if err := os.Lchown(p, uid, gid); err != nil {
				return err
			}
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return nil
		}
		mode := info.Mode().Perm() | 0600
		if info.IsDir() {
			mode |= 0700
		}
		return os.Chmod(p, mode)
	}

	info, err := os.Lstat(path)
	if err != nil {
		return err
	}
	if !recursive || !info.IsDir() {
		return fix(path, info)
	}

	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return fix(p, info)
	})
}

// invokingUser resolves the pre-elevation user from the environment pkexec
// or sudo leaves behind. Returns -1 ids when unknown, which leaves
// ownership untouched.
func invokingUser() (int, int) {
	uid, gid := -1, -1
	for _, name := range []string{"PKEXEC_UID", "SUDO_UID"} {
		if v := os.Getenv(name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				uid = n
				break
			}
		}
	}
	if v := os.Getenv("SUDO_GID"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			gid = n
		}
	}
	if gid == -1 {
		gid = uid
	}
	return uid, gid
}
