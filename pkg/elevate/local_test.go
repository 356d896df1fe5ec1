package elevate

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestElevator wires the transport to an in-process helper (or to a
// scripted process) instead of a real privilege prompt.
func newTestElevator(t *testing.T, launch func(channel string) (*exec.Cmd, error)) *localElevator {
	t.Helper()
	e := &localElevator{runtimeDir: t.TempDir()}
	e.launch = launch
	return e
}

func TestRun_SuccessRoundTrip(t *testing.T) {
	target := filepath.Join(t.TempDir(), "locked.dat")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0400))

	e := newTestElevator(t, func(channel string) (*exec.Cmd, error) {
		// Stand-in for the privileged process; the real helper work runs
		// in-process against the same channel.
		cmd := exec.Command("true")
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		go func() { _ = RunHelper(channel) }()
		return cmd, nil
	})

	resp, err := e.Run(Request{Op: OpMakeAccessible, Path: target})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, resp.Outcome)

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode().Perm()&0600)
}

func TestRun_RecursiveMakeAccessible(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "deployed")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "textures"), 0700))
	inner := filepath.Join(dir, "textures", "rock.dds")
	require.NoError(t, os.WriteFile(inner, []byte("x"), 0400))

	e := newTestElevator(t, func(channel string) (*exec.Cmd, error) {
		cmd := exec.Command("true")
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		go func() { _ = RunHelper(channel) }()
		return cmd, nil
	})

	resp, err := e.Run(Request{Op: OpMakeAccessible, Path: dir, Recursive: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, resp.Outcome)

	info, err := os.Stat(inner)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode().Perm()&0600)
}

func TestRun_PromptDeclinedMapsToDeclined(t *testing.T) {
	old := acceptTimeout
	acceptTimeout = 50 * time.Millisecond
	t.Cleanup(func() { acceptTimeout = old })

	e := newTestElevator(t, func(channel string) (*exec.Cmd, error) {
		// pkexec exits 127 when the user dismisses the prompt; the helper
		// never connects.
		cmd := exec.Command("sh", "-c", "exit 127")
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		return cmd, nil
	})

	resp, err := e.Run(Request{Op: OpMakeAccessible, Path: "/nonexistent"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeclined, resp.Outcome)
}

func TestRun_HelperFailureReportsError(t *testing.T) {
	e := newTestElevator(t, func(channel string) (*exec.Cmd, error) {
		cmd := exec.Command("true")
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		go func() { _ = RunHelper(channel) }()
		return cmd, nil
	})

	// Path does not exist, so the helper reports an error outcome over the
	// channel rather than a transport failure.
	resp, err := e.Run(Request{Op: OpMakeAccessible, Path: filepath.Join(t.TempDir(), "gone")})
	require.NoError(t, err)
	assert.Equal(t, OutcomeError, resp.Outcome)
	assert.NotEmpty(t, resp.Detail)
}

func TestRun_UnknownOp(t *testing.T) {
	e := newTestElevator(t, func(channel string) (*exec.Cmd, error) {
		cmd := exec.Command("true")
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		go func() { _ = RunHelper(channel) }()
		return cmd, nil
	})

	resp, err := e.Run(Request{Op: "reformat-disk", Path: "/"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeError, resp.Outcome)
}
