package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	out   map[string]string
	err   error
	hosts []string
}

func (f *fakeProber) Probe(_ context.Context, host string) (string, error) {
	f.hosts = append(f.hosts, host)
	return f.out[host], f.err
}

const linuxPing = `PING r1 (10.20.30.40) 56(84) bytes of data.
64 bytes from r1 (10.20.30.40): icmp_seq=1 ttl=254 time=1.21 ms
`

func TestHostName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{name: "fl0042", want: "fl0042.stores.example.net"},
		{name: "r1", want: "r1"},
		{name: "f1", want: "f1"},
		{name: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HostName(tt.name, "fl", ".stores.example.net"))
		})
	}
}

func TestParseProbeOutput(t *testing.T) {
	tests := []struct {
		name   string
		out    string
		want   string
		wantOK bool
	}{
		{name: "linux parentheses", out: linuxPing, want: "10.20.30.40", wantOK: true},
		{name: "square brackets", out: "PING r1 [10.1.1.1] 56 bytes of data\n", want: "10.1.1.1", wantOK: true},
		{name: "unknown host", out: "ping: r9: Name or service not known\n"},
		{name: "empty", out: ""},
		{name: "marker with too few tokens", out: "bytes of data\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseProbeOutput(tt.out)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve(t *testing.T) {
	p := &fakeProber{out: map[string]string{
		"r1":                      linuxPing,
		"fl7.stores.example.net": "PING fl7.stores.example.net (10.9.8.7) 56(84) bytes of data.\n",
	}}
	r := New(p, "fl", ".stores.example.net")

	addr, err := r.Resolve(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "10.20.30.40", addr)

	addr, err = r.Resolve(context.Background(), "fl7")
	require.NoError(t, err)
	assert.Equal(t, "10.9.8.7", addr)
	assert.Equal(t, []string{"r1", "fl7.stores.example.net"}, p.hosts)
}

func TestResolveUnreachable(t *testing.T) {
	r := New(&fakeProber{err: errors.New("exit status 2")}, "fl", ".x")
	_, err := r.Resolve(context.Background(), "r9")
	assert.ErrorIs(t, err, ErrUnreachable)
}
