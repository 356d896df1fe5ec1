package types

import (
	"io"
	"io/fs"
)

// FS is the filesystem interface required for modlink operations
type FS interface {
	// File operations
	Stat(name string) (fs.FileInfo, error)
	Lstat(name string) (fs.FileInfo, error)
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm fs.FileMode) error
	Chmod(name string, mode fs.FileMode) error

	// Streaming handles. Copies go through these so a multi-gigabyte
	// archive never has to fit in memory.
	Open(name string) (io.ReadCloser, error)
	Create(name string) (io.WriteCloser, error)

	// Directory operations
	MkdirAll(path string, perm fs.FileMode) error
	ReadDir(name string) ([]fs.DirEntry, error)

	// Link operations
	Link(oldname, newname string) error
	Symlink(oldname, newname string) error
	Readlink(name string) (string, error)

	// Removal and renames
	Remove(name string) error
	RemoveAll(path string) error
	Rename(oldpath, newpath string) error
}

// DialogRequest describes one recovery or confirmation prompt presented to
// the user by the external presentation layer.
type DialogRequest struct {
	// Title is a short, user-facing summary of the condition.
	Title string

	// Message explains the condition and what each option will do.
	Message string

	// Detail is optional diagnostic context, e.g. the list of processes
	// holding a locked file.
	Detail []string

	// Options are the ordered button labels. The response is an index into
	// this slice.
	Options []string
}

// Dialog is the recovery/confirmation collaborator. Implementations block
// until the user picks an option and return its index. Returning an error
// aborts the surrounding operation; a user-cancellation error must be
// propagated unchanged by every caller.
type Dialog interface {
	Ask(req DialogRequest) (int, error)
}

// Notifier is the event surface consumed by the presentation layer.
type Notifier interface {
	// ModsRefreshed fires after reconciliation, carrying the ids of newly
	// discovered mods and of mods dropped because their files vanished.
	ModsRefreshed(gameID string, discovered, removed []string)

	// Error reports a failed operation. allowReport distinguishes
	// user-actionable conditions (false) from bug-worthy ones (true).
	Error(title string, err error, allowReport bool)

	// StartActivity announces a long-running operation; StopActivity ends it.
	// Activities are keyed by id so overlapping notifications stay distinct.
	StartActivity(id, message string)
	StopActivity(id string)
}

// StateAction is a mutation request against the application state store.
// The concrete variants live below; the interface exists so dispatch sites
// stay exhaustive under a type switch.
type StateAction interface {
	isStateAction()
}

// AddMod registers a new mod for a game.
type AddMod struct {
	Mod Mod
}

// SetModState transitions a mod's lifecycle state.
type SetModState struct {
	ModID string
	State ModState
}

// RemoveMod drops a mod from tracked state. Dispatched only after the mod's
// files are gone (successful undeploy, or confirmed missing on disk).
type RemoveMod struct {
	ModID string
}

// SetActivator records the deployment method configured for a game.
type SetActivator struct {
	MethodID string
}

func (AddMod) isStateAction()       {}
func (SetModState) isStateAction()  {}
func (RemoveMod) isStateAction()    {}
func (SetActivator) isStateAction() {}

// StateSnapshot is a point-in-time, read-only view of one game's tracked
// state.
type StateSnapshot struct {
	// Mods is keyed by mod id.
	Mods map[string]Mod

	// ActivatorID is the configured deployment method, empty if unset.
	ActivatorID string
}

// StateAccess is the explicit interface to the global application state
// container. Components receive it as a constructor argument; nothing in
// modlink holds an ambient reference to a singleton store.
type StateAccess interface {
	// Snapshot returns the current state for a game. The returned snapshot
	// is a copy; mutating it has no effect on the store.
	Snapshot(gameID string) StateSnapshot

	// Dispatch applies one mutation to a game's state.
	Dispatch(gameID string, action StateAction)

	// Subscribe registers a callback invoked after every dispatch for the
	// given game. The returned function cancels the subscription.
	Subscribe(gameID string, fn func()) (cancel func())
}
