package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/andrej220/routerconfig/internal/lg"
	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

const (
	readSize                = 4096
	DefaultAttempts         = 3
	DefaultPagingCommand    = "terminal length 0\n"
	DefaultPacingDelay      = 1 * time.Second
	DefaultCommandTimeout   = 60 * time.Second
	DefaultSetupReadTimeout = 5 * time.Second
)

// State is the position of a session in the driver state machine.
type State int

const (
	Disconnected State = iota
	Authenticating
	ShellOpen
	PagingDisabled
	AwaitingCommand
	CommandSent
	ScanningForPrompt
	Closed
	Failed
)

var stateNames = [...]string{
	"disconnected", "authenticating", "shell_open", "paging_disabled",
	"awaiting_command", "command_sent", "scanning_for_prompt", "closed", "failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type Options struct {
	// Attempts bounds connection attempts; retries are immediate.
	Attempts      int
	PagingCommand string
	// PacingDelay is slept after the paging command and after each command
	// before the first read.
	PacingDelay time.Duration
	// CommandTimeout bounds the wait for one command's echo and prompt.
	CommandTimeout time.Duration
	// SetupReadTimeout bounds the single reads of the setup phase.
	SetupReadTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Attempts <= 0 {
		o.Attempts = DefaultAttempts
	}
	if o.PagingCommand == "" {
		o.PagingCommand = DefaultPagingCommand
	}
	if o.PacingDelay < 0 {
		o.PacingDelay = 0
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = DefaultCommandTimeout
	}
	if o.SetupReadTimeout <= 0 {
		o.SetupReadTimeout = DefaultSetupReadTimeout
	}
	return o
}

// Driver runs command batches over interactive shells.
type Driver struct {
	dialer Dialer
	opts   Options
}

var _ Runner = (*Driver)(nil)

func NewDriver(dialer Dialer, opts Options) *Driver {
	return &Driver{dialer: dialer, opts: opts.withDefaults()}
}

// Run connects to host, sends every command and returns the session
// transcript. name is the device name the prompts are derived from.
//
// When no connection attempt succeeds the transcript is the single
// ConnectErrorLine and the error wraps ErrAuthFailure. When a command never
// completes the transcript holds everything read so far and the error is a
// *PromptTimeoutError. The shell is closed on every path.
func (d *Driver) Run(ctx context.Context, name, host string, commands []string) (string, error) {
	logger := lg.FromContext(ctx).With(lg.String("device", name))

	shell, err := d.connect(ctx, logger, host)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ConnectErrorLine(name), fmt.Errorf("%s: connect: %w", name, ctxErr)
		}
		return ConnectErrorLine(name), fmt.Errorf("%w: %s: %v", ErrAuthFailure, name, err)
	}

	s := newSession(name, shell, d.opts, logger)
	defer s.close()

	transcript, err := s.run(ctx, commands)
	if err != nil {
		logger.Warn("session failed", lg.Err(err), lg.String("state", s.state.String()))
		s.setState(Failed)
		return transcript, err
	}
	logger.Info("session completed", lg.Int("commands", len(commands)))
	return transcript, nil
}

func (d *Driver) connect(ctx context.Context, logger lg.Logger, host string) (Shell, error) {
	var shell Shell
	attempt := 0
	operation := func() error {
		attempt++
		sh, err := d.dialer.Dial(ctx, host)
		if err != nil {
			logger.Warn("connection attempt failed",
				lg.Int("attempt", attempt), lg.Int("max_attempts", d.opts.Attempts), lg.Err(err))
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			return err
		}
		shell = sh
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(d.opts.Attempts-1)), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		return nil, err
	}
	logger.Info("interactive session established", lg.Int("attempt", attempt))
	return shell, nil
}

type chunk struct {
	data []byte
	err  error
}

// session is owned by one Run call and never escapes it.
type session struct {
	name   string
	shell  Shell
	opts   Options
	logger lg.Logger

	chunks <-chan chunk
	done   chan struct{}
	once   sync.Once

	state State
}

func newSession(name string, shell Shell, opts Options, logger lg.Logger) *session {
	s := &session{
		name:   name,
		shell:  shell,
		opts:   opts,
		logger: logger,
		done:   make(chan struct{}),
	}
	s.chunks = s.pump()
	s.setState(ShellOpen)
	return s
}

// pump turns the blocking shell reads into a channel so every wait can be
// bounded by a timer or the context. It exits once the shell is closed.
func (s *session) pump() <-chan chunk {
	ch := make(chan chunk, 16)
	go func() {
		defer close(ch)
		buf := make([]byte, readSize)
		for {
			n, err := s.shell.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				select {
				case ch <- chunk{data: data}:
				case <-s.done:
					return
				}
			}
			if err != nil {
				select {
				case ch <- chunk{err: err}:
				case <-s.done:
				}
				return
			}
		}
	}()
	return ch
}

func (s *session) setState(st State) {
	s.state = st
	s.logger.Debug("session state", lg.String("state", st.String()))
}

func (s *session) close() {
	s.once.Do(func() {
		close(s.done)
		if err := s.shell.Close(); err != nil {
			s.logger.Debug("closing shell", lg.Err(err))
		}
		if s.state != Failed {
			s.setState(Closed)
		}
	})
}

func (s *session) run(ctx context.Context, commands []string) (string, error) {
	var transcript strings.Builder

	// banner and initial prompt
	if _, err := s.readOnce(ctx); err != nil {
		return transcript.String(), err
	}

	if err := s.send(s.opts.PagingCommand); err != nil {
		return transcript.String(), err
	}
	if err := sleep(ctx, s.opts.PacingDelay); err != nil {
		return transcript.String(), err
	}
	if _, err := s.readOnce(ctx); err != nil {
		return transcript.String(), err
	}
	s.setState(PagingDisabled)

	if err := s.send("\n"); err != nil {
		return transcript.String(), err
	}
	reply, err := s.readOnce(ctx)
	if err != nil {
		return transcript.String(), err
	}
	transcript.Write(reply)
	s.setState(AwaitingCommand)

	for _, cmd := range commands {
		s.logger.Debug("processing command", lg.String("command", strings.TrimSpace(cmd)))
		out, err := s.runCommand(ctx, cmd)
		transcript.WriteString(out)
		if err != nil {
			return transcript.String(), err
		}
		s.setState(AwaitingCommand)
	}
	return transcript.String(), nil
}

// runCommand sends cmd verbatim and accumulates output until MatchPrompt
// holds, the command timeout fires or the context ends.
func (s *session) runCommand(ctx context.Context, cmd string) (string, error) {
	if err := s.send(cmd); err != nil {
		return "", err
	}
	s.setState(CommandSent)
	if err := sleep(ctx, s.opts.PacingDelay); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", s.timeout(cmd, err)
		}
		return "", err
	}
	s.setState(ScanningForPrompt)

	timer := time.NewTimer(s.opts.CommandTimeout)
	defer timer.Stop()

	var buf strings.Builder
	for {
		select {
		case c, ok := <-s.chunks:
			if !ok || c.err != nil {
				return buf.String(), s.readError(c.err)
			}
			buf.Write(c.data)
			if MatchPrompt(buf.String(), cmd, s.name) {
				return buf.String(), nil
			}
		case <-timer.C:
			return buf.String(), s.timeout(cmd, fmt.Errorf("no prompt after %s", s.opts.CommandTimeout))
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return buf.String(), s.timeout(cmd, ctx.Err())
			}
			return buf.String(), ctx.Err()
		}
	}
}

func (s *session) timeout(cmd string, cause error) error {
	return &PromptTimeoutError{Device: s.name, Command: strings.TrimSpace(cmd), Cause: cause}
}

// readOnce is a single bounded read: it returns the next chunk the device
// sends, or nothing if the device stays quiet for SetupReadTimeout.
func (s *session) readOnce(ctx context.Context) ([]byte, error) {
	timer := time.NewTimer(s.opts.SetupReadTimeout)
	defer timer.Stop()
	select {
	case c, ok := <-s.chunks:
		if !ok || c.err != nil {
			return nil, s.readError(c.err)
		}
		return c.data, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *session) readError(err error) error {
	if err == nil || errors.Is(err, io.EOF) {
		return fmt.Errorf("%s: %w", s.name, ErrSessionClosed)
	}
	return fmt.Errorf("%s: read: %w", s.name, err)
}

func (s *session) send(data string) error {
	if _, err := io.WriteString(s.shell, data); err != nil {
		return fmt.Errorf("%s: write: %w", s.name, err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
