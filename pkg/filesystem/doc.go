// Package filesystem provides filesystem implementations for modlink.
//
// This package contains implementations of the types.FS interface (the
// standard OS filesystem and an afero adapter for tests), plus Ops: the
// resilient operation layer that wraps every primitive with retry,
// interactive recovery, and privilege escalation so that transient OS
// failures never corrupt deployment state.
package filesystem
