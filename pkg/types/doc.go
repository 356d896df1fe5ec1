// Package types defines the shared data model for modlink: mods and their
// managed files, the per-game deployment context, and the interfaces through
// which modlink talks to its collaborators (filesystem, user dialogs,
// notifications, and the application state store).
//
// The package is dependency-free by design so that every other package can
// import it without cycles.
package types
