package filesystem

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/arthur-debert/modlink/pkg/elevate"
	"github.com/arthur-debert/modlink/pkg/errors"
	"github.com/arthur-debert/modlink/pkg/logging"
	"github.com/arthur-debert/modlink/pkg/types"
	"github.com/rs/zerolog"

	stderrors "errors"
)

// Recovery dialog option labels. The presentation layer renders these as
// buttons; choices come back as indexes into the option slice.
const (
	OptionCancel = "Cancel"
	OptionRetry  = "Retry"
	OptionGrant  = "Grant Permission"
)

const (
	choiceCancel = 0
	choiceRetry  = 1
	choiceGrant  = 2
)

const (
	defaultRetryAttempts = 5
	defaultRetryDelay    = 100 * time.Millisecond
)

// Ops wraps a types.FS with the resilient operation layer: every primitive
// survives transient OS errors via bounded automatic retries or interactive
// recovery, deletions are idempotent, and permission failures can be fixed
// through the out-of-process elevation helper.
//
// An Ops without a dialog is non-interactive: busy errors get a fixed number
// of delayed retries, everything else propagates.
type Ops struct {
	fs       types.FS
	dialog   types.Dialog
	elevator elevate.Elevator

	retryAttempts int
	retryDelay    time.Duration
	identityCheck bool

	logger zerolog.Logger
}

// Option configures an Ops.
type Option func(*Ops)

// WithDialog enables interactive recovery through the given collaborator.
func WithDialog(d types.Dialog) Option {
	return func(o *Ops) { o.dialog = d }
}

// WithElevator enables the grant-permission recovery path.
func WithElevator(e elevate.Elevator) Option {
	return func(o *Ops) { o.elevator = e }
}

// WithRetry tunes the bounded non-interactive retry loop.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(o *Ops) {
		o.retryAttempts = attempts
		o.retryDelay = delay
	}
}

// WithoutIdentityCheck disables the copy self-collision guard by default.
// Copy callers that need the guard back can still use CopyChecked.
func WithoutIdentityCheck() Option {
	return func(o *Ops) { o.identityCheck = false }
}

// NewOps creates the resilient operation layer over fs.
func NewOps(fs types.FS, opts ...Option) *Ops {
	o := &Ops{
		fs:            fs,
		retryAttempts: defaultRetryAttempts,
		retryDelay:    defaultRetryDelay,
		identityCheck: true,
		logger:        logging.GetLogger("filesystem.ops"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithoutDialog returns a copy of o with interactive recovery disabled,
// for paths that must not block on user input.
func (o *Ops) WithoutDialog() *Ops {
	c := *o
	c.dialog = nil
	return &c
}

// FS exposes the underlying primitive filesystem. Callers should prefer the
// wrapped operations; this exists for read-only walks where the recovery
// policy has nothing to add.
func (o *Ops) FS() types.FS {
	return o.fs
}

// withRecovery runs fn under the retry/escalation policy. The backtrace is
// captured up front so an eventual error can point at the logical call
// site; resolving it stays deferred until someone renders it.
//
// grantDir marks path as a directory for the grant-permission path, which
// then fixes the whole tree instead of a single file.
func (o *Ops) withRecovery(op, path string, grantDir bool, fn func() error) error {
	bt := errors.Here(2)
	autoTries := 0

	for {
		err := fn()
		if err == nil {
			return nil
		}
		// A cancellation from a nested wrapped call passes through every
		// layer unchanged.
		if errors.IsUserCanceled(err) {
			return err
		}

		switch classify(err) {
		case classBusy:
			if o.dialog == nil {
				autoTries++
				if autoTries >= o.retryAttempts {
					return errors.Wrapf(err, errors.ErrTemporary,
						"%s %q: still busy after %d attempts", op, path, autoTries).WithTrace(bt)
				}
				time.Sleep(o.retryDelay)
				continue
			}
			choice, derr := o.ask(types.DialogRequest{
				Title: "File in use",
				Message: fmt.Sprintf(
					"%q is locked by another process (antivirus scanners are a common cause). Close the application holding it, then retry.", path),
				Detail:  holdingProcesses(path),
				Options: []string{OptionCancel, OptionRetry},
			})
			if derr != nil {
				return derr
			}
			if choice == choiceCancel {
				return o.canceled(op, path, bt)
			}
			continue

		case classDiskFull:
			if o.dialog == nil {
				return errors.Wrapf(err, errors.ErrTemporary,
					"%s %q: disk full", op, path).WithTrace(bt)
			}
			choice, derr := o.ask(types.DialogRequest{
				Title: "Disk full",
				Message: fmt.Sprintf(
					"There is not enough space to %s %q. Free up space, then retry.", op, path),
				Options: []string{OptionCancel, OptionRetry},
			})
			if derr != nil {
				return derr
			}
			if choice == choiceCancel {
				return o.canceled(op, path, bt)
			}
			continue

		case classPermission:
			if o.dialog == nil {
				return errors.Wrapf(err, errors.ErrIO,
					"%s %q: permission denied", op, path).WithTrace(bt)
			}
			options := []string{OptionCancel, OptionRetry}
			if o.elevator != nil {
				options = append(options, OptionGrant)
			}
			choice, derr := o.ask(types.DialogRequest{
				Title: "Access denied",
				Message: fmt.Sprintf(
					"You lack permission to %s %q. Grant Permission fixes ownership using elevated privileges.", op, path),
				Options: options,
			})
			if derr != nil {
				return derr
			}
			switch choice {
			case choiceCancel:
				return o.canceled(op, path, bt)
			case choiceGrant:
				if gerr := o.grantAccess(path, grantDir, bt); gerr != nil {
					return gerr
				}
			}
			continue

		case classNotFound:
			// Deletions translate this to success before we get here; for
			// everything else let callers test with os.IsNotExist.
			return err

		default:
			return errors.Wrapf(err, errors.ErrIO, "%s %q failed", op, path).
				WithDetail("path", path).WithTrace(bt)
		}
	}
}

// ask forwards to the dialog, normalizing its errors: a user cancellation
// passes through, anything else becomes an internal error.
func (o *Ops) ask(req types.DialogRequest) (int, error) {
	choice, err := o.dialog.Ask(req)
	if err != nil {
		if errors.IsUserCanceled(err) {
			return 0, err
		}
		return 0, errors.Wrap(err, errors.ErrInternal, "recovery dialog failed")
	}
	return choice, nil
}

func (o *Ops) canceled(op, path string, bt *errors.Backtrace) error {
	o.logger.Info().Str("op", op).Str("path", path).Msg("User canceled recovery")
	return errors.Newf(errors.ErrUserCanceled, "%s %q canceled by user", op, path).WithTrace(bt)
}

// grantAccess runs the elevation helper against path, mapping a declined
// privilege prompt to a user cancellation.
func (o *Ops) grantAccess(path string, recursive bool, bt *errors.Backtrace) error {
	resp, err := o.elevator.Run(elevate.Request{
		Op:        elevate.OpMakeAccessible,
		Path:      path,
		Recursive: recursive,
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrElevation, "elevation transport failed").WithTrace(bt)
	}
	switch resp.Outcome {
	case elevate.OutcomeSuccess:
		return nil
	case elevate.OutcomeDeclined:
		return errors.New(errors.ErrUserCanceled, "privilege prompt declined").WithTrace(bt)
	default:
		return errors.Newf(errors.ErrElevation, "elevated helper failed: %s", resp.Detail).WithTrace(bt)
	}
}

// Stat wraps fs.Stat. Not-found propagates untouched so existence probes
// stay cheap.
func (o *Ops) Stat(name string) (fs.FileInfo, error) {
	var info fs.FileInfo
	err := o.withRecovery("stat", name, false, func() error {
		var err error
		info, err = o.fs.Stat(name)
		return err
	})
	return info, err
}

// Lstat wraps fs.Lstat.
func (o *Ops) Lstat(name string) (fs.FileInfo, error) {
	var info fs.FileInfo
	err := o.withRecovery("lstat", name, false, func() error {
		var err error
		info, err = o.fs.Lstat(name)
		return err
	})
	return info, err
}

// ReadFile wraps fs.ReadFile.
func (o *Ops) ReadFile(name string) ([]byte, error) {
	var data []byte
	err := o.withRecovery("read", name, false, func() error {
		var err error
		data, err = o.fs.ReadFile(name)
		return err
	})
	return data, err
}

// WriteFile wraps fs.WriteFile.
func (o *Ops) WriteFile(name string, data []byte, perm fs.FileMode) error {
	return o.withRecovery("write", name, false, func() error {
		return o.fs.WriteFile(name, data, perm)
	})
}

// Chmod wraps fs.Chmod.
func (o *Ops) Chmod(name string, mode fs.FileMode) error {
	return o.withRecovery("chmod", name, false, func() error {
		return o.fs.Chmod(name, mode)
	})
}

// MkdirAll wraps fs.MkdirAll. Grant-permission recovery applies to the
// directory tree.
func (o *Ops) MkdirAll(path string, perm fs.FileMode) error {
	return o.withRecovery("mkdir", path, true, func() error {
		return o.fs.MkdirAll(path, perm)
	})
}

// ReadDir wraps fs.ReadDir.
func (o *Ops) ReadDir(name string) ([]fs.DirEntry, error) {
	var entries []fs.DirEntry
	err := o.withRecovery("readdir", name, true, func() error {
		var err error
		entries, err = o.fs.ReadDir(name)
		return err
	})
	return entries, err
}

// Link wraps fs.Link (hardlink).
func (o *Ops) Link(oldname, newname string) error {
	return o.withRecovery("link", newname, false, func() error {
		return o.fs.Link(oldname, newname)
	})
}

// Symlink wraps fs.Symlink.
func (o *Ops) Symlink(oldname, newname string) error {
	return o.withRecovery("symlink", newname, false, func() error {
		return o.fs.Symlink(oldname, newname)
	})
}

// Readlink wraps fs.Readlink.
func (o *Ops) Readlink(name string) (string, error) {
	var target string
	err := o.withRecovery("readlink", name, false, func() error {
		var err error
		target, err = o.fs.Readlink(name)
		return err
	})
	return target, err
}

// Remove deletes a file or empty directory. A target that is already gone
// is success; callers never special-case it.
func (o *Ops) Remove(name string) error {
	return o.withRecovery("remove", name, false, func() error {
		return ignoreNotExist(o.fs.Remove(name))
	})
}

// Unlink is Remove for files; the distinct name keeps call sites readable.
func (o *Ops) Unlink(name string) error {
	return o.withRecovery("unlink", name, false, func() error {
		return ignoreNotExist(o.fs.Remove(name))
	})
}

// Rmdir removes an empty directory, tolerating one that is already gone.
func (o *Ops) Rmdir(name string) error {
	return o.withRecovery("rmdir", name, true, func() error {
		return ignoreNotExist(o.fs.Remove(name))
	})
}

// RemoveAll deletes a tree. Already-absent is success.
func (o *Ops) RemoveAll(path string) error {
	return o.withRecovery("remove", path, true, func() error {
		return ignoreNotExist(o.fs.RemoveAll(path))
	})
}

// Rename wraps fs.Rename.
func (o *Ops) Rename(oldpath, newpath string) error {
	return o.withRecovery("rename", newpath, false, func() error {
		return o.fs.Rename(oldpath, newpath)
	})
}

// Move renames oldpath to newpath, degrading to copy-then-delete when the
// two live on different filesystems.
func (o *Ops) Move(oldpath, newpath string) error {
	err := o.Rename(oldpath, newpath)
	if err == nil {
		return nil
	}
	if !isCrossDevice(err) {
		return err
	}
	if cerr := o.CopyUnchecked(oldpath, newpath); cerr != nil {
		return cerr
	}
	return o.Remove(oldpath)
}

// Copy copies src to dst, honoring the configured self-collision guard.
func (o *Ops) Copy(src, dst string) error {
	return o.copy(src, dst, o.identityCheck)
}

// CopyChecked copies with the self-collision guard always on.
func (o *Ops) CopyChecked(src, dst string) error {
	return o.copy(src, dst, true)
}

// CopyUnchecked skips the identity check, for callers on hot paths that
// know src and dst cannot collide.
func (o *Ops) CopyUnchecked(src, dst string) error {
	return o.copy(src, dst, false)
}

func (o *Ops) copy(src, dst string, check bool) error {
	if check && o.sameFile(src, dst) {
		return errors.Newf(errors.ErrIO,
			"refusing to copy %q onto itself: destination %q resolves to the same file", src, dst).
			WithTrace(errors.Here(1))
	}
	// Streamed, never buffered: mod archives and texture packs are
	// routinely larger than memory.
	return o.withRecovery("copy", dst, false, func() error {
		info, err := o.fs.Stat(src)
		if err != nil {
			return err
		}
		in, err := o.fs.Open(src)
		if err != nil {
			return err
		}
		defer func() { _ = in.Close() }()

		out, err := o.fs.Create(dst)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, in); err != nil {
			_ = out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}
		return o.fs.Chmod(dst, info.Mode().Perm())
	})
}

// sameFile reports whether src and dst resolve to the same underlying file
// identity. A missing destination is never a collision.
func (o *Ops) sameFile(src, dst string) bool {
	if filepath.Clean(src) == filepath.Clean(dst) {
		return true
	}
	si, err := o.fs.Stat(src)
	if err != nil {
		return false
	}
	di, err := o.fs.Stat(dst)
	if err != nil {
		return false
	}
	return os.SameFile(si, di)
}

// EnsureDirWritable creates dir if absent and proves write access by
// writing and removing a canary file. Permission failures route through the
// grant-permission recovery scoped to the directory.
func (o *Ops) EnsureDirWritable(dir string) error {
	if err := o.MkdirAll(dir, 0755); err != nil {
		return err
	}
	canary := filepath.Join(dir, ".modlink-write-probe")
	err := o.withRecovery("probe", dir, true, func() error {
		return o.fs.WriteFile(canary, []byte{}, 0644)
	})
	if err != nil {
		return err
	}
	return o.Remove(canary)
}

func ignoreNotExist(err error) error {
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

func isCrossDevice(err error) bool {
	var errno syscall.Errno
	if stderrors.As(err, &errno) {
		return errno == syscall.EXDEV
	}
	return false
}
