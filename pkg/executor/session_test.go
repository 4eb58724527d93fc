package executor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const showVersion = "Cisco IOS Software, C2900 Software (C2900-UNIVERSALK9-M), Version 15.1(4)M4, RELEASE SOFTWARE (fc2)\r\n" +
	"Processor board ID FTX1628838P\r\n"

func testOptions() Options {
	return Options{
		PacingDelay:      0,
		CommandTimeout:   time.Second,
		SetupReadTimeout: time.Second,
	}
}

func TestRunCollectsTranscript(t *testing.T) {
	dev := newFakeDevice("R1")
	dev.outputs["show version"] = showVersion
	dialer := &fakeDialer{device: dev}

	transcript, err := NewDriver(dialer, testOptions()).Run(context.Background(), "r1", "r1", []string{"show version\n"})
	require.NoError(t, err)

	assert.Contains(t, transcript, "Version 15.1(4)M4,")
	assert.Contains(t, transcript, "Processor board ID FTX1628838P")
	assert.NotContains(t, transcript, "User Access Verification", "banner must be discarded")
	assert.NotContains(t, transcript, "terminal length 0", "paging reply must be discarded")
	assert.True(t, strings.HasSuffix(transcript, "R1#"))
	assert.True(t, dev.isClosed(), "shell must be released")
	assert.Equal(t, []string{"terminal length 0\n", "\n", "show version\n"}, dev.commands())
}

func TestRunMatchesPromptCaseInsensitively(t *testing.T) {
	dev := newFakeDevice("ROUTER-1")
	dialer := &fakeDialer{device: dev}

	_, err := NewDriver(dialer, testOptions()).Run(context.Background(), "router-1", "router-1", []string{"show clock\n"})
	assert.NoError(t, err)
}

func TestRunIgnoresPromptBeforeEcho(t *testing.T) {
	dev := newFakeDevice("R1")
	dev.delay = 20 * time.Millisecond
	dev.outputs["show version"] = showVersion
	dev.promptFirst["show version"] = true
	dialer := &fakeDialer{device: dev}

	transcript, err := NewDriver(dialer, testOptions()).Run(context.Background(), "r1", "r1", []string{"show version\n"})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(transcript, "FTX1628838P\r\n\r\nR1#"),
		"command must not complete on the prompt that preceded its echo, got %q", transcript)
}

func TestRunFollowsConfigurationSubmodes(t *testing.T) {
	dev := newFakeDevice("R1")
	dialer := &fakeDialer{device: dev}
	commands := []string{"conf t\n", "interface Gi0/1\n", "description uplink\n", "end\n"}

	transcript, err := NewDriver(dialer, testOptions()).Run(context.Background(), "R1", "R1", commands)
	require.NoError(t, err)
	assert.Contains(t, transcript, "R1(config)#")
	assert.Contains(t, transcript, "R1(config-if)#description uplink")
	assert.True(t, strings.HasSuffix(transcript, "end\r\n\r\nR1#"))
}

func TestRunConnectFailure(t *testing.T) {
	dialer := &fakeDialer{failures: 100}

	transcript, err := NewDriver(dialer, testOptions()).Run(context.Background(), "r7", "r7", []string{"show version\n"})
	assert.ErrorIs(t, err, ErrAuthFailure)
	assert.Equal(t, "ERROR: Could not connect to: r7", transcript)
	assert.Equal(t, 3, dialer.attempts)
}

func TestRunConnectSucceedsOnLastAttempt(t *testing.T) {
	dev := newFakeDevice("R1")
	dialer := &fakeDialer{device: dev, failures: 2}

	_, err := NewDriver(dialer, testOptions()).Run(context.Background(), "R1", "R1", []string{"show clock\n"})
	require.NoError(t, err)
	assert.Equal(t, 3, dialer.attempts)
}

func TestRunStopsRetryingWhenBreakerOpen(t *testing.T) {
	dialer := &fakeDialer{failures: 100, err: gobreaker.ErrOpenState}

	transcript, err := NewDriver(dialer, testOptions()).Run(context.Background(), "r1", "r1", nil)
	assert.ErrorIs(t, err, ErrAuthFailure)
	assert.Equal(t, ConnectErrorLine("r1"), transcript)
	assert.Equal(t, 1, dialer.attempts)
}

func TestRunPromptTimeout(t *testing.T) {
	dev := newFakeDevice("R1")
	dev.silent["reload"] = true
	dialer := &fakeDialer{device: dev}
	opts := testOptions()
	opts.CommandTimeout = 100 * time.Millisecond

	start := time.Now()
	transcript, err := NewDriver(dialer, opts).Run(context.Background(), "R1", "R1",
		[]string{"show clock\n", "reload\n", "show version\n"})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPromptTimeout)
	var pte *PromptTimeoutError
	require.True(t, errors.As(err, &pte))
	assert.Equal(t, "reload", pte.Command)
	assert.Equal(t, "R1", pte.Device)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Contains(t, transcript, "show clock", "completed commands stay in the transcript")
	assert.True(t, strings.HasSuffix(transcript, "reload\r\n"))
	assert.True(t, dev.isClosed(), "shell must be released on timeout")
	assert.NotContains(t, dev.commands(), "show version\n")
}

func TestRunDeviceDeadline(t *testing.T) {
	dev := newFakeDevice("R1")
	dev.silent["show tech-support"] = true
	dialer := &fakeDialer{device: dev}
	opts := testOptions()
	opts.CommandTimeout = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_, err := NewDriver(dialer, opts).Run(ctx, "R1", "R1", []string{"show tech-support\n"})

	var pte *PromptTimeoutError
	require.True(t, errors.As(err, &pte))
	assert.ErrorIs(t, pte.Cause, context.DeadlineExceeded)
	assert.True(t, dev.isClosed())
}

func TestRunSessionClosedByDevice(t *testing.T) {
	dev := newFakeDevice("R1")
	dev.silent["reload"] = true
	dialer := &fakeDialer{device: dev}
	go func() {
		time.Sleep(100 * time.Millisecond)
		dev.Close()
	}()

	_, err := NewDriver(dialer, testOptions()).Run(context.Background(), "R1", "R1", []string{"reload\n"})
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, DefaultAttempts, o.Attempts)
	assert.Equal(t, DefaultPagingCommand, o.PagingCommand)
	assert.Equal(t, DefaultCommandTimeout, o.CommandTimeout)
	assert.Equal(t, DefaultSetupReadTimeout, o.SetupReadTimeout)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "scanning_for_prompt", ScanningForPrompt.String())
	assert.Equal(t, "state(42)", State(42).String())
}
