// Package elevate runs individual filesystem fixes with raised OS
// privileges. The privileged work executes in a separate helper process
// reached over a private, uniquely named local channel; callers only see the
// Elevator interface and its three-way outcome.
package elevate

// Op names one privileged operation the helper knows how to perform.
type Op string

const (
	// OpMakeAccessible reassigns ownership of a path to the invoking user
	// and grants owner read/write (plus traverse on directories).
	OpMakeAccessible Op = "make-accessible"
)

// Request describes one privileged operation.
type Request struct {
	Op   Op     `json:"op"`
	Path string `json:"path"`

	// Recursive applies the operation to a directory tree instead of a
	// single entry.
	Recursive bool `json:"recursive,omitempty"`
}

// Outcome is the three-way result of an elevation attempt.
type Outcome int

const (
	// OutcomeSuccess means the helper completed the operation.
	OutcomeSuccess Outcome = iota

	// OutcomeDeclined means the user rejected the OS privilege prompt.
	// Callers must treat this as a user cancellation, not a failure.
	OutcomeDeclined

	// OutcomeError means the helper or the privilege mechanism failed.
	OutcomeError
)

// Response reports the result of a Request.
type Response struct {
	Outcome Outcome `json:"outcome"`

	// Detail carries the OS error message when Outcome is OutcomeError.
	Detail string `json:"detail,omitempty"`
}

// Elevator executes privileged requests. Run blocks until the helper
// finishes, disconnects, or the privilege mechanism reports rejection.
type Elevator interface {
	Run(req Request) (Response, error)
}
