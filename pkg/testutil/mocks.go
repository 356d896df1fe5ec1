// Package testutil provides shared test doubles for modlink's collaborator
// interfaces: the recovery dialog, the elevation transport, and the
// notification surface.
package testutil

import (
	"sync"

	"github.com/arthur-debert/modlink/pkg/elevate"
	"github.com/arthur-debert/modlink/pkg/errors"
	"github.com/arthur-debert/modlink/pkg/types"
)

// MockDialog replays a scripted sequence of answers and records every
// request it was asked. Once the script runs out it keeps returning the
// last answer.
type MockDialog struct {
	mu       sync.Mutex
	Answers  []int
	Requests []types.DialogRequest
}

// NewMockDialog creates a dialog that answers with the given option
// indexes, in order.
func NewMockDialog(answers ...int) *MockDialog {
	return &MockDialog{Answers: answers}
}

func (d *MockDialog) Ask(req types.DialogRequest) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Requests = append(d.Requests, req)
	if len(d.Answers) == 0 {
		return 0, errors.New(errors.ErrInternal, "mock dialog has no scripted answer")
	}
	answer := d.Answers[0]
	if len(d.Answers) > 1 {
		d.Answers = d.Answers[1:]
	}
	return answer, nil
}

// AskCount returns how many times the dialog was invoked.
func (d *MockDialog) AskCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Requests)
}

// FakeElevator returns a fixed response and records requests; Err, when
// set, simulates a transport failure.
type FakeElevator struct {
	Response elevate.Response
	Err      error
	Requests []elevate.Request

	// OnRun, when set, runs before returning; used to actually fix
	// permissions in tests that retry afterwards.
	OnRun func(req elevate.Request)
}

func (e *FakeElevator) Run(req elevate.Request) (elevate.Response, error) {
	e.Requests = append(e.Requests, req)
	if e.OnRun != nil {
		e.OnRun(req)
	}
	if e.Err != nil {
		return elevate.Response{}, e.Err
	}
	return e.Response, nil
}

// Notification records one Error call on RecordingNotifier.
type Notification struct {
	Title       string
	Err         error
	AllowReport bool
}

// RecordingNotifier captures every event for later assertions.
type RecordingNotifier struct {
	mu         sync.Mutex
	Refreshed  []struct{ Discovered, Removed []string }
	Errors     []Notification
	Activities []string
}

func (n *RecordingNotifier) ModsRefreshed(gameID string, discovered, removed []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Refreshed = append(n.Refreshed, struct{ Discovered, Removed []string }{discovered, removed})
}

func (n *RecordingNotifier) Error(title string, err error, allowReport bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Errors = append(n.Errors, Notification{Title: title, Err: err, AllowReport: allowReport})
}

func (n *RecordingNotifier) StartActivity(id, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Activities = append(n.Activities, "start:"+id)
}

func (n *RecordingNotifier) StopActivity(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Activities = append(n.Activities, "stop:"+id)
}
