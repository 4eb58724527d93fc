package executor

import (
	"context"
	"io"
)

// Shell is an interactive pseudo-terminal channel to one device. Reads return
// whatever the device has emitted so far; Close releases the channel and the
// transport underneath it.
type Shell interface {
	io.Reader
	io.Writer
	Close() error
}

// Dialer makes one attempt to open an authenticated interactive shell.
type Dialer interface {
	Dial(ctx context.Context, host string) (Shell, error)
}

// Runner executes a command batch on a device and returns its transcript.
type Runner interface {
	Run(ctx context.Context, name, host string, commands []string) (string, error)
}
