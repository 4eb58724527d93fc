package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/crypto/ssh"
)

const (
	termType = "vt100"
	// wide terminal so long commands echo on a single line
	termCols = 511
	termRows = 24
)

// NewBreaker returns the run-wide connection breaker. It opens after
// threshold consecutive credential rejections, across all devices, so a bad
// shared credential is not replayed against the whole fleet.
// Refused or timed out dials only mean one host is down and do not count.
// A zero threshold disables tripping.
func NewBreaker(threshold uint32) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ssh-connection",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return threshold > 0 && counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return !errors.Is(err, ErrCredentialsRejected)
		},
	})
}

// SSHDialer opens interactive shells with password authentication.
type SSHDialer struct {
	Config  *ssh.ClientConfig
	Port    int
	Breaker *gobreaker.CircuitBreaker
}

var _ Dialer = (*SSHDialer)(nil)

// NewSSHDialer builds a dialer for the shared credential pair.
//
// Host keys are not verified: devices are addressed by names that resolve to
// rotating management addresses and there is no known_hosts inventory for
// them. This is a deliberate simplification.
func NewSSHDialer(username, password string, port int, timeout time.Duration, breaker *gobreaker.CircuitBreaker) *SSHDialer {
	config := &ssh.ClientConfig{
		User: username,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
		BannerCallback:  func(message string) error { return nil }, //ignore banner
	}
	return &SSHDialer{Config: config, Port: port, Breaker: breaker}
}

func (d *SSHDialer) Dial(ctx context.Context, host string) (Shell, error) {
	if d.Breaker == nil {
		return d.dial(ctx, host)
	}
	res, err := d.Breaker.Execute(func() (any, error) {
		return d.dial(ctx, host)
	})
	if err != nil {
		return nil, err
	}
	return res.(Shell), nil
}

func (d *SSHDialer) dial(ctx context.Context, host string) (Shell, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(d.Port))

	nd := net.Dialer{Timeout: d.Config.Timeout}
	conn, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	// the handshake has no timeout of its own
	deadline := time.Now().Add(d.Config.Timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, d.Config)
	if err != nil {
		conn.Close()
		// x/crypto/ssh has no typed error for a rejected login
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, fmt.Errorf("ssh handshake with %s: %w: %w", addr, ErrCredentialsRejected, err)
		}
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Time{})
	client := ssh.NewClient(c, chans, reqs)

	shell, err := openShell(client)
	if err != nil {
		client.Close()
		return nil, err
	}
	return shell, nil
}

func openShell(client *ssh.Client) (*sshShell, error) {
	sess, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}
	modes := ssh.TerminalModes{
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := sess.RequestPty(termType, termRows, termCols, modes); err != nil {
		sess.Close()
		return nil, fmt.Errorf("request pty: %w", err)
	}
	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := sess.Shell(); err != nil {
		sess.Close()
		return nil, fmt.Errorf("start shell: %w", err)
	}
	return &sshShell{client: client, session: sess, stdin: stdin, stdout: stdout}, nil
}

type sshShell struct {
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
}

func (s *sshShell) Read(p []byte) (int, error)  { return s.stdout.Read(p) }
func (s *sshShell) Write(p []byte) (int, error) { return s.stdin.Write(p) }

func (s *sshShell) Close() error {
	s.session.Close()
	return s.client.Close()
}
