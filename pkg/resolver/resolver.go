// Package resolver finds a device's network address by asking an external
// reachability probe about its host name.
package resolver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrUnreachable means the probe never reported a data payload for the host.
var ErrUnreachable = errors.New("device unreachable")

const (
	payloadMarker = "bytes of data"
	addressToken  = 2
)

// Prober runs one reachability probe and returns its textual output.
type Prober interface {
	Probe(ctx context.Context, host string) (string, error)
}

// PingProber shells out to the system ping binary.
type PingProber struct {
	// Command is the probe invocation without the host, e.g. "ping -c 1".
	Command string
}

func (p PingProber) Probe(ctx context.Context, host string) (string, error) {
	args := strings.Fields(p.Command)
	if len(args) == 0 {
		return "", fmt.Errorf("empty probe command")
	}
	args = append(args, host)
	out, err := exec.CommandContext(ctx, args[0], args[1:]...).CombinedOutput()
	return string(out), err
}

// HostName applies the legacy naming rule: names starting with prefix get
// suffix appended, everything else is used unchanged.
func HostName(name, prefix, suffix string) string {
	if prefix != "" && strings.HasPrefix(name, prefix) {
		return name + suffix
	}
	return name
}

type Resolver struct {
	Prober       Prober
	LegacyPrefix string
	LegacySuffix string
}

func New(p Prober, legacyPrefix, legacySuffix string) *Resolver {
	return &Resolver{Prober: p, LegacyPrefix: legacyPrefix, LegacySuffix: legacySuffix}
}

// HostName returns the name the device is dialled and probed by.
func (r *Resolver) HostName(name string) string {
	return HostName(name, r.LegacyPrefix, r.LegacySuffix)
}

// Resolve returns the device address reported by the probe. Probe failures
// are not told apart from silence: both yield ErrUnreachable. No retry.
func (r *Resolver) Resolve(ctx context.Context, name string) (string, error) {
	out, _ := r.Prober.Probe(ctx, r.HostName(name))
	if addr, ok := ParseProbeOutput(out); ok {
		return addr, nil
	}
	return "", fmt.Errorf("%s: %w", name, ErrUnreachable)
}

// ParseProbeOutput looks for the payload marker line and extracts the address
// token from it, e.g. "PING r1 (10.1.2.3) 56(84) bytes of data." -> 10.1.2.3.
func ParseProbeOutput(out string) (string, bool) {
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, payloadMarker) {
			continue
		}
		words := strings.Fields(line)
		if len(words) <= addressToken {
			return "", false
		}
		addr := strings.Trim(words[addressToken], "[]()")
		return addr, addr != ""
	}
	return "", false
}
