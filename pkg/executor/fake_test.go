package executor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"
)

// fakeDevice simulates an IOS-style CLI behind a Shell. Writes are answered
// with the echoed command, optional output and the prompt of the current mode.
type fakeDevice struct {
	mu     sync.Mutex
	cond   *sync.Cond
	out    bytes.Buffer
	closed bool

	hostname string
	mode     string
	outputs  map[string]string
	// silent commands are echoed but never followed by a prompt
	silent map[string]bool
	// promptFirst emits the prompt before echoing the command
	promptFirst map[string]bool
	delay       time.Duration
	written     []string
}

func newFakeDevice(hostname string) *fakeDevice {
	d := &fakeDevice{
		hostname:    hostname,
		outputs:     map[string]string{},
		silent:      map[string]bool{},
		promptFirst: map[string]bool{},
	}
	d.cond = sync.NewCond(&d.mu)
	d.out.WriteString("\r\n\r\nUser Access Verification\r\n\r\n" + d.prompt())
	return d
}

func (d *fakeDevice) prompt() string {
	if d.mode == "" {
		return d.hostname + "#"
	}
	return d.hostname + "(" + d.mode + ")#"
}

func (d *fakeDevice) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.out.Len() == 0 && !d.closed {
		d.cond.Wait()
	}
	if d.closed {
		return 0, io.EOF
	}
	return d.out.Read(p)
}

func (d *fakeDevice) Write(p []byte) (int, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	cmd := strings.TrimSpace(string(p))
	d.written = append(d.written, string(p))
	pieces := d.respond(cmd)
	d.mu.Unlock()

	if d.delay == 0 {
		d.emit(pieces...)
	} else {
		go func() {
			for _, piece := range pieces {
				time.Sleep(d.delay)
				d.emit(piece)
			}
		}()
	}
	return len(p), nil
}

// respond must be called with mu held.
func (d *fakeDevice) respond(cmd string) []string {
	switch {
	case cmd == "conf t" || cmd == "configure terminal":
		d.mode = "config"
	case strings.HasPrefix(cmd, "interface "):
		d.mode = "config-if"
	case cmd == "end":
		d.mode = ""
	}
	if d.silent[cmd] {
		return []string{cmd + "\r\n"}
	}
	body := ""
	if out, ok := d.outputs[cmd]; ok {
		body = out
	}
	if d.promptFirst[cmd] {
		return []string{d.prompt(), cmd + "\r\n" + body, "\r\n" + d.prompt()}
	}
	return []string{cmd + "\r\n" + body + "\r\n" + d.prompt()}
}

func (d *fakeDevice) emit(pieces ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	for _, piece := range pieces {
		d.out.WriteString(piece)
	}
	d.cond.Broadcast()
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.cond.Broadcast()
	return nil
}

func (d *fakeDevice) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *fakeDevice) commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.written...)
}

// fakeDialer fails the first failures attempts, then hands out device.
type fakeDialer struct {
	mu       sync.Mutex
	device   *fakeDevice
	failures int
	err      error
	attempts int
}

func (f *fakeDialer) Dial(_ context.Context, _ string) (Shell, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.attempts <= f.failures || f.device == nil {
		if f.err != nil {
			return nil, f.err
		}
		return nil, errors.New("ssh: handshake failed: unable to authenticate")
	}
	return f.device, nil
}
