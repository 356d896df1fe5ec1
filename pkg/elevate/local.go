package elevate

import (
	"encoding/json"
	"errors"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/arthur-debert/modlink/pkg/logging"
	"github.com/google/uuid"
)

// pkexec reports these when the user dismisses or fails the privilege
// prompt.
const (
	exitNotAuthorized = 126
	exitAuthDismissed = 127
)

// acceptTimeout bounds how long we wait for the helper to call back after
// its process has already exited. The privilege prompt itself has no
// timeout; the user may take as long as they like.
var acceptTimeout = 5 * time.Second

// HelperArg is the hidden subcommand name under which the current binary
// re-executes itself as the privileged helper.
const HelperArg = "elevate-helper"

type localElevator struct {
	runtimeDir string

	// launch starts the privileged helper for a channel. Swapped out in
	// tests to avoid a real privilege prompt.
	launch func(channel string) (*exec.Cmd, error)
}

// NewLocal returns an Elevator that spawns the current executable as a
// privileged helper via the system's polkit/sudo mechanism, connected back
// over a uniquely named unix socket under runtimeDir.
func NewLocal(runtimeDir string) Elevator {
	e := &localElevator{runtimeDir: runtimeDir}
	e.launch = e.launchPrivileged
	return e
}

func (e *localElevator) Run(req Request) (Response, error) {
	logger := logging.GetLogger("elevate")

	if err := os.MkdirAll(e.runtimeDir, 0700); err != nil {
		return Response{}, err
	}

	channel := filepath.Join(e.runtimeDir, "elevate-"+uuid.NewString()+".sock")
	ln, err := net.Listen("unix", channel)
	if err != nil {
		return Response{}, err
	}
	defer func() {
		_ = ln.Close()
		_ = os.Remove(channel)
	}()

	cmd, err := e.launch(channel)
	if err != nil {
		return Response{}, err
	}

	logger.Debug().
		Str("channel", channel).
		Str("op", string(req.Op)).
		Str("path", req.Path).
		Msg("Elevation helper launched")

	type serveResult struct {
		resp Response
		err  error
	}
	served := make(chan serveResult, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			served <- serveResult{err: err}
			return
		}
		defer func() { _ = conn.Close() }()
		if err := json.NewEncoder(conn).Encode(req); err != nil {
			served <- serveResult{err: err}
			return
		}
		var resp Response
		if err := json.NewDecoder(conn).Decode(&resp); err != nil {
			served <- serveResult{err: err}
			return
		}
		served <- serveResult{resp: resp}
	}()

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	// The parent blocks until the helper reports a result over the channel
	// or its process exits without ever connecting.
	select {
	case res := <-served:
		<-exited
		if res.err != nil {
			return Response{Outcome: OutcomeError, Detail: res.err.Error()}, nil
		}
		return res.resp, nil
	case err := <-exited:
		// Process ended before connecting: privilege prompt rejected, or
		// the mechanism itself failed. Give a late connection a grace
		// window before concluding.
		select {
		case res := <-served:
			if res.err == nil {
				return res.resp, nil
			}
		case <-time.After(acceptTimeout):
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code := exitErr.ExitCode()
			if code == exitNotAuthorized || code == exitAuthDismissed {
				logger.Info().Int("code", code).Msg("Privilege prompt declined")
				return Response{Outcome: OutcomeDeclined}, nil
			}
		}
		detail := "helper exited without reporting"
		if err != nil {
			detail = err.Error()
		}
		return Response{Outcome: OutcomeError, Detail: detail}, nil
	}
}

// launchPrivileged starts the helper through pkexec, falling back to sudo.
func (e *localElevator) launchPrivileged(channel string) (*exec.Cmd, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}

	var cmd *exec.Cmd
	if pkexec, lookErr := exec.LookPath("pkexec"); lookErr == nil {
		cmd = exec.Command(pkexec, exe, HelperArg, channel)
	} else {
		cmd = exec.Command("sudo", "--", exe, HelperArg, channel)
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}
