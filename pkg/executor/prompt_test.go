package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchPrompt(t *testing.T) {
	tests := []struct {
		name    string
		buf     string
		command string
		device  string
		want    bool
	}{
		{name: "echo then exec prompt", buf: "show version\r\nIOS 15.1\r\nR1#", command: "show version\n", device: "R1", want: true},
		{name: "lowercase device name", buf: "show version\r\nR1#", command: "show version\n", device: "r1", want: true},
		{name: "config submode", buf: "interface Gi0/1\r\nR1(config-if)#", command: "interface Gi0/1\n", device: "R1", want: true},
		{name: "echo without prompt", buf: "show version\r\nIOS 15.1\r\n", command: "show version\n", device: "R1", want: false},
		{name: "prompt before echo only", buf: "R1#show version\r\nIOS 15.1", command: "show version\n", device: "R1", want: false},
		{name: "no echo", buf: "R1#", command: "show version\n", device: "R1", want: false},
		{name: "other device prompt", buf: "show version\r\nR2#", command: "show version\n", device: "R1", want: false},
		{name: "bare newline", buf: "\r\nR1#", command: "\n", device: "R1", want: true},
		{name: "pager prompt is not a prompt", buf: "show run\r\n --More-- ", command: "show run\n", device: "R1", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchPrompt(tt.buf, tt.command, tt.device))
		})
	}
}

func TestConnectErrorLine(t *testing.T) {
	assert.Equal(t, "ERROR: Could not connect to: fl0042", ConnectErrorLine("fl0042"))
}
