package executor

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthFailure means every connection attempt failed.
	ErrAuthFailure = errors.New("could not connect")
	// ErrPromptTimeout means a command never completed: its echo or the
	// following prompt did not show up in time.
	ErrPromptTimeout = errors.New("prompt timeout")
	// ErrSessionClosed means the device closed the shell mid-session.
	ErrSessionClosed = errors.New("session closed by device")
	// ErrCredentialsRejected means the device answered the handshake but
	// refused the username and password.
	ErrCredentialsRejected = errors.New("credentials rejected")
)

const connectErrorPrefix = "ERROR: Could not connect to: "

// ConnectErrorLine is the single transcript line produced for a device that
// could not be connected to.
func ConnectErrorLine(name string) string {
	return connectErrorPrefix + name
}

// PromptTimeoutError records which command on which device never completed.
type PromptTimeoutError struct {
	Device  string
	Command string
	Cause   error
}

func (e *PromptTimeoutError) Error() string {
	return fmt.Sprintf("%s: %v waiting for %q: %v", e.Device, ErrPromptTimeout, e.Command, e.Cause)
}

func (e *PromptTimeoutError) Unwrap() error { return ErrPromptTimeout }
