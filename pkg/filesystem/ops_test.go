package filesystem_test

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/arthur-debert/modlink/pkg/elevate"
	"github.com/arthur-debert/modlink/pkg/errors"
	"github.com/arthur-debert/modlink/pkg/filesystem"
	"github.com/arthur-debert/modlink/pkg/testutil"
	"github.com/arthur-debert/modlink/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyFS wraps a real filesystem and injects an error into one operation
// for a fixed number of calls, then lets the real call through.
type flakyFS struct {
	types.FS
	failOp    string
	failErr   error
	remaining int
	calls     map[string]int
}

func newFlakyFS(base types.FS, op string, err error, times int) *flakyFS {
	return &flakyFS{FS: base, failOp: op, failErr: err, remaining: times, calls: map[string]int{}}
}

func (f *flakyFS) maybeFail(op string) error {
	f.calls[op]++
	if op == f.failOp && f.remaining != 0 {
		if f.remaining > 0 {
			f.remaining--
		}
		return f.failErr
	}
	return nil
}

func (f *flakyFS) Remove(name string) error {
	if err := f.maybeFail("remove"); err != nil {
		return err
	}
	return f.FS.Remove(name)
}

func (f *flakyFS) WriteFile(name string, data []byte, perm fs.FileMode) error {
	if err := f.maybeFail("write"); err != nil {
		return err
	}
	return f.FS.WriteFile(name, data, perm)
}

func (f *flakyFS) Rename(oldpath, newpath string) error {
	if err := f.maybeFail("rename"); err != nil {
		return err
	}
	return f.FS.Rename(oldpath, newpath)
}

func busyErr(path string) error {
	return &fs.PathError{Op: "open", Path: path, Err: syscall.EBUSY}
}

func permErr(path string) error {
	return &fs.PathError{Op: "open", Path: path, Err: syscall.EACCES}
}

func fullErr(path string) error {
	return &fs.PathError{Op: "write", Path: path, Err: syscall.ENOSPC}
}

func TestDelete_IdempotentOnMissing(t *testing.T) {
	ops := filesystem.NewOps(filesystem.NewOS())
	missing := filepath.Join(t.TempDir(), "never-existed")

	assert.NoError(t, ops.Remove(missing))
	assert.NoError(t, ops.Unlink(missing))
	assert.NoError(t, ops.Rmdir(missing))
	assert.NoError(t, ops.RemoveAll(missing))
}

func TestStat_NotFoundPropagates(t *testing.T) {
	ops := filesystem.NewOps(filesystem.NewOS())

	_, err := ops.Stat(filepath.Join(t.TempDir(), "ghost"))
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}

func TestCopy_SelfCollisionGuard(t *testing.T) {
	tempDir := t.TempDir()
	src := filepath.Join(tempDir, "data.bin")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0644))

	ops := filesystem.NewOps(filesystem.NewOS())

	err := ops.Copy(src, src)
	require.Error(t, err)
	assert.ErrorContains(t, err, "onto itself")

	// The guard is what stands between the caller and data loss: without
	// it, creating the destination truncates the source before a single
	// byte is read.
	require.NoError(t, ops.CopyUnchecked(src, src))
	data, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestCopy_GuardDetectsHardlinkIdentity(t *testing.T) {
	tempDir := t.TempDir()
	src := filepath.Join(tempDir, "data.bin")
	alias := filepath.Join(tempDir, "alias.bin")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0644))
	require.NoError(t, os.Link(src, alias))

	ops := filesystem.NewOps(filesystem.NewOS())

	err := ops.Copy(src, alias)
	require.Error(t, err)
	assert.ErrorContains(t, err, "same file")
}

func TestCopy_NormalCase(t *testing.T) {
	tempDir := t.TempDir()
	src := filepath.Join(tempDir, "src.bin")
	dst := filepath.Join(tempDir, "dst.bin")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0640))

	ops := filesystem.NewOps(filesystem.NewOS())
	require.NoError(t, ops.Copy(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}

func TestCopy_StreamsLargeContentAndKeepsMode(t *testing.T) {
	tempDir := t.TempDir()
	src := filepath.Join(tempDir, "textures.bsa")
	dst := filepath.Join(tempDir, "deployed.bsa")

	// Well past any single read buffer, so the copy must iterate.
	payload := bytes.Repeat([]byte("0123456789abcdef"), 1<<16) // 1 MiB
	require.NoError(t, os.WriteFile(src, payload, 0750))

	ops := filesystem.NewOps(filesystem.NewOS())
	require.NoError(t, ops.Copy(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0750), info.Mode().Perm())
}

func TestRetryConvergence(t *testing.T) {
	tempDir := t.TempDir()
	victim := filepath.Join(tempDir, "locked.dat")
	require.NoError(t, os.WriteFile(victim, []byte("x"), 0644))

	const failures = 3
	flaky := newFlakyFS(filesystem.NewOS(), "remove", busyErr(victim), failures)
	dialog := testutil.NewMockDialog(1) // always Retry
	ops := filesystem.NewOps(flaky, filesystem.WithDialog(dialog))

	require.NoError(t, ops.Remove(victim))
	assert.Equal(t, failures, dialog.AskCount())
	assert.NoFileExists(t, victim)
}

func TestCancelPropagation(t *testing.T) {
	tempDir := t.TempDir()
	victim := filepath.Join(tempDir, "locked.dat")
	require.NoError(t, os.WriteFile(victim, []byte("x"), 0644))

	flaky := newFlakyFS(filesystem.NewOS(), "remove", busyErr(victim), -1)
	dialog := testutil.NewMockDialog(0) // Cancel
	ops := filesystem.NewOps(flaky, filesystem.WithDialog(dialog))

	err := ops.Remove(victim)
	require.Error(t, err)
	assert.True(t, errors.IsUserCanceled(err))
	// The OS error class must not leak through a cancellation.
	assert.NotErrorIs(t, err, syscall.EBUSY)
	assert.Equal(t, 1, dialog.AskCount())
}

func TestNonInteractiveBusyRetryIsBounded(t *testing.T) {
	tempDir := t.TempDir()
	victim := filepath.Join(tempDir, "locked.dat")
	require.NoError(t, os.WriteFile(victim, []byte("x"), 0644))

	flaky := newFlakyFS(filesystem.NewOS(), "remove", busyErr(victim), -1)
	ops := filesystem.NewOps(flaky, filesystem.WithRetry(3, time.Millisecond))

	err := ops.Remove(victim)
	require.Error(t, err)
	assert.True(t, errors.IsTemporary(err))
	assert.Equal(t, 3, flaky.calls["remove"])
}

func TestNonInteractiveBusyRecoversWithinBudget(t *testing.T) {
	tempDir := t.TempDir()
	victim := filepath.Join(tempDir, "locked.dat")
	require.NoError(t, os.WriteFile(victim, []byte("x"), 0644))

	flaky := newFlakyFS(filesystem.NewOS(), "remove", busyErr(victim), 2)
	ops := filesystem.NewOps(flaky, filesystem.WithRetry(5, time.Millisecond))

	require.NoError(t, ops.Remove(victim))
	assert.NoFileExists(t, victim)
}

func TestDiskFull_RetryThenSuccess(t *testing.T) {
	tempDir := t.TempDir()
	target := filepath.Join(tempDir, "out.dat")

	flaky := newFlakyFS(filesystem.NewOS(), "write", fullErr(target), 1)
	dialog := testutil.NewMockDialog(1) // Retry
	ops := filesystem.NewOps(flaky, filesystem.WithDialog(dialog))

	require.NoError(t, ops.WriteFile(target, []byte("x"), 0644))
	assert.Equal(t, 1, dialog.AskCount())
	assert.Equal(t, "Disk full", dialog.Requests[0].Title)
}

func TestDiskFull_CancelSurfacesAsUserCanceled(t *testing.T) {
	tempDir := t.TempDir()
	target := filepath.Join(tempDir, "out.dat")

	flaky := newFlakyFS(filesystem.NewOS(), "write", fullErr(target), -1)
	dialog := testutil.NewMockDialog(0) // Cancel
	ops := filesystem.NewOps(flaky, filesystem.WithDialog(dialog))

	err := ops.WriteFile(target, []byte("x"), 0644)
	assert.True(t, errors.IsUserCanceled(err))
}

func TestPermission_GrantThenRetry(t *testing.T) {
	tempDir := t.TempDir()
	target := filepath.Join(tempDir, "out.dat")

	flaky := newFlakyFS(filesystem.NewOS(), "write", permErr(target), -1)
	elevator := &testutil.FakeElevator{
		Response: elevate.Response{Outcome: elevate.OutcomeSuccess},
		OnRun: func(elevate.Request) {
			// The helper "fixed" the permissions; stop injecting failures.
			flaky.remaining = 0
		},
	}
	dialog := testutil.NewMockDialog(2) // Grant Permission
	ops := filesystem.NewOps(flaky,
		filesystem.WithDialog(dialog),
		filesystem.WithElevator(elevator))

	require.NoError(t, ops.WriteFile(target, []byte("x"), 0644))

	require.Len(t, elevator.Requests, 1)
	assert.Equal(t, elevate.OpMakeAccessible, elevator.Requests[0].Op)
	assert.Equal(t, target, elevator.Requests[0].Path)

	require.NotEmpty(t, dialog.Requests)
	assert.Contains(t, dialog.Requests[0].Options, filesystem.OptionGrant)
}

func TestPermission_PromptDeclinedIsUserCanceled(t *testing.T) {
	tempDir := t.TempDir()
	target := filepath.Join(tempDir, "out.dat")

	flaky := newFlakyFS(filesystem.NewOS(), "write", permErr(target), -1)
	elevator := &testutil.FakeElevator{
		Response: elevate.Response{Outcome: elevate.OutcomeDeclined},
	}
	dialog := testutil.NewMockDialog(2) // Grant Permission
	ops := filesystem.NewOps(flaky,
		filesystem.WithDialog(dialog),
		filesystem.WithElevator(elevator))

	err := ops.WriteFile(target, []byte("x"), 0644)
	assert.True(t, errors.IsUserCanceled(err))
}

func TestPermission_NoElevatorOffersNoGrantOption(t *testing.T) {
	tempDir := t.TempDir()
	target := filepath.Join(tempDir, "out.dat")

	flaky := newFlakyFS(filesystem.NewOS(), "write", permErr(target), 1)
	dialog := testutil.NewMockDialog(1) // Retry
	ops := filesystem.NewOps(flaky, filesystem.WithDialog(dialog))

	require.NoError(t, ops.WriteFile(target, []byte("x"), 0644))
	require.NotEmpty(t, dialog.Requests)
	assert.NotContains(t, dialog.Requests[0].Options, filesystem.OptionGrant)
}

func TestEnsureDirWritable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "deep", "target")
	ops := filesystem.NewOps(filesystem.NewOS())

	require.NoError(t, ops.EnsureDirWritable(dir))
	assert.DirExists(t, dir)

	// No canary left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEnsureDirWritable_GrantScopedToDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "protected")
	require.NoError(t, os.MkdirAll(dir, 0755))

	flaky := newFlakyFS(filesystem.NewOS(), "write", permErr(dir), -1)
	elevator := &testutil.FakeElevator{
		Response: elevate.Response{Outcome: elevate.OutcomeSuccess},
		OnRun:    func(elevate.Request) { flaky.remaining = 0 },
	}
	dialog := testutil.NewMockDialog(2) // Grant Permission
	ops := filesystem.NewOps(flaky,
		filesystem.WithDialog(dialog),
		filesystem.WithElevator(elevator))

	require.NoError(t, ops.EnsureDirWritable(dir))

	require.Len(t, elevator.Requests, 1)
	assert.Equal(t, dir, elevator.Requests[0].Path)
	assert.True(t, elevator.Requests[0].Recursive)
}

func TestMove_FallsBackToCopyAcrossDevices(t *testing.T) {
	tempDir := t.TempDir()
	src := filepath.Join(tempDir, "src.dat")
	dst := filepath.Join(tempDir, "dst.dat")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0644))

	exdev := &fs.PathError{Op: "rename", Path: dst, Err: syscall.EXDEV}
	flaky := newFlakyFS(filesystem.NewOS(), "rename", exdev, -1)
	ops := filesystem.NewOps(flaky)

	require.NoError(t, ops.Move(src, dst))
	assert.NoFileExists(t, src)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}

func TestMkdirAll_UnexpectedErrorCarriesTrace(t *testing.T) {
	tempDir := t.TempDir()
	blocker := filepath.Join(tempDir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	ops := filesystem.NewOps(filesystem.NewOS())

	// MkdirAll over an existing file is not a retryable class.
	err := ops.MkdirAll(filepath.Join(blocker, "sub"), 0755)
	require.Error(t, err)
	assert.Equal(t, errors.ErrIO, errors.GetErrorCode(err))
	assert.NotNil(t, errors.GetTrace(err))
}
