// Package dispatcher fans a command batch out to many devices on a fixed
// worker pool and streams every device's transcript into a report sink.
package dispatcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/andrej220/routerconfig/internal/lg"
	"github.com/andrej220/routerconfig/pkg/executor"
	"github.com/andrej220/routerconfig/pkg/factstore"
	"github.com/andrej220/routerconfig/pkg/models"
	"github.com/andrej220/routerconfig/pkg/octets"
	"github.com/andrej220/routerconfig/pkg/report"
	"github.com/andrej220/routerconfig/pkg/transcript"
	"github.com/andrej220/routerconfig/pkg/workerpool"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultDeviceTimeout = 5 * time.Minute
	lineBuffer           = 16
)

// PromptTimeoutLine is appended to a device's partial transcript when one of
// its commands never completed.
func PromptTimeoutLine(name string) string {
	return "ERROR: Prompt timeout on: " + name
}

// Resolver finds a device's address and the host name used to reach it.
type Resolver interface {
	Resolve(ctx context.Context, name string) (string, error)
	HostName(name string) string
}

type Options struct {
	Workers       int
	DeviceTimeout time.Duration
	RunID         uuid.UUID
	// Facts receives parsed device facts after each successful session.
	// Nil disables fact collection.
	Facts factstore.Store
}

type Dispatcher struct {
	resolver Resolver
	runner   executor.Runner
	sink     report.Sink
	opts     Options
}

func New(resolver Resolver, runner executor.Runner, sink report.Sink, opts Options) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = workerpool.DefaultWorkers
	}
	if opts.DeviceTimeout <= 0 {
		opts.DeviceTimeout = DefaultDeviceTimeout
	}
	if opts.RunID == uuid.Nil {
		opts.RunID = uuid.New()
	}
	return &Dispatcher{resolver: resolver, runner: runner, sink: sink, opts: opts}
}

// Summary records how every dispatched device ended.
type Summary struct {
	RunID    uuid.UUID
	Outcomes map[string]models.Outcome
	Lines    int
	// FailedWrites counts lines the sink rejected.
	FailedWrites int
	// Duplicates counts repeated device names that were not processed again.
	Duplicates int
	Elapsed    time.Duration
}

// Count returns how many devices ended with outcome o.
func (s Summary) Count(o models.Outcome) int {
	n := 0
	for _, v := range s.Outcomes {
		if v == o {
			n++
		}
	}
	return n
}

// Dispatch processes devices on the worker pool. Each device's lines reach
// the sink as one contiguous batch in transcript order; batches from
// different devices arrive in completion order. A device name listed more
// than once is processed once. Per-device failures never fail the run: the
// returned error is the first sink error or the cancellation of ctx. A sink
// error never stops later lines from being offered to the sink.
func (d *Dispatcher) Dispatch(ctx context.Context, devices []string, commands []string) (Summary, error) {
	start := time.Now()
	logger := lg.FromContext(ctx).With(lg.String("run_id", d.opts.RunID.String()))
	ctx = lg.Attach(ctx, logger)

	devices, duplicates := unique(devices)
	if duplicates > 0 {
		logger.Warn("duplicate devices skipped", lg.Int("duplicates", duplicates))
	}

	rs := &runState{
		Dispatcher: d,
		commands:   commands,
		batches:    make(chan []models.ResultLine, lineBuffer),
		outcomes:   make(map[string]models.Outcome, len(devices)),
	}

	pool := workerpool.NewPool[models.Device](d.opts.Workers)
	logger.Info("dispatch started",
		lg.Int("devices", len(devices)), lg.Int("commands", len(commands)), lg.Int("workers", pool.Size()))

	var g errgroup.Group
	g.Go(func() error {
		defer close(rs.batches)
		defer pool.Stop()
		for _, name := range devices {
			err := pool.Submit(workerpool.Job[models.Device]{
				Payload: models.Device{Name: name},
				Fn:      rs.process,
				Ctx:     ctx,
			})
			if err != nil {
				logger.Warn("device not dispatched", lg.String("device", name), lg.Err(err))
				rs.record(name, models.OutcomeFailed)
			}
		}
		return nil
	})

	lines, failed := 0, 0
	g.Go(func() error {
		var first error
		for batch := range rs.batches {
			for _, line := range batch {
				if err := d.sink.Write(ctx, line); err != nil {
					if first == nil {
						logger.Error("report write failed", lg.String("device", line.Device), lg.Err(err))
						first = err
					}
					failed++
					continue
				}
				lines++
			}
		}
		if failed > 0 {
			logger.Error("report lines lost", lg.Int("failed_writes", failed))
		}
		return first
	})

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	for _, name := range devices {
		if _, ok := rs.outcomes[name]; !ok {
			rs.outcomes[name] = models.OutcomeFailed
		}
	}

	summary := Summary{
		RunID:        d.opts.RunID,
		Outcomes:     rs.outcomes,
		Lines:        lines,
		FailedWrites: failed,
		Duplicates:   duplicates,
		Elapsed:      time.Since(start),
	}
	logger.Info("dispatch finished",
		lg.Int("lines", summary.Lines),
		lg.Int("ok", summary.Count(models.OutcomeOK)),
		lg.Int("unreachable", summary.Count(models.OutcomeUnreachable)),
		lg.Int("auth_failure", summary.Count(models.OutcomeAuthFailure)),
		lg.Int("prompt_timeout", summary.Count(models.OutcomePromptTimeout)),
		lg.Int("failed", summary.Count(models.OutcomeFailed)),
		lg.Duration("elapsed", summary.Elapsed))
	return summary, err
}

// runState is shared by the workers of one Dispatch call.
type runState struct {
	*Dispatcher
	commands []string
	batches  chan []models.ResultLine

	mu       sync.Mutex
	outcomes map[string]models.Outcome
}

func (r *runState) record(name string, o models.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[name] = o
}

func (r *runState) process(ctx context.Context, dev models.Device) error {
	ctx, cancel := context.WithTimeout(ctx, r.opts.DeviceTimeout)
	defer cancel()
	logger := lg.FromContext(ctx).With(lg.String("device", dev.Name))

	addr, err := r.resolver.Resolve(ctx, dev.Name)
	if err != nil {
		logger.Info("device unreachable, skipping", lg.Err(err))
		r.record(dev.Name, models.OutcomeUnreachable)
		return nil
	}
	dev.Address = addr

	text, err := r.runner.Run(ctx, dev.Name, r.resolver.HostName(dev.Name), r.commands)
	lines := toResultLines(dev.Name, text)

	var outcome models.Outcome
	switch {
	case err == nil:
		outcome = models.OutcomeOK
	case errors.Is(err, executor.ErrAuthFailure):
		outcome = models.OutcomeAuthFailure
	case errors.Is(err, executor.ErrPromptTimeout):
		outcome = models.OutcomePromptTimeout
		lines = append(lines, models.ResultLine{Device: dev.Name, Text: PromptTimeoutLine(dev.Name)})
	default:
		outcome = models.OutcomeFailed
	}
	r.record(dev.Name, outcome)

	if len(lines) > 0 {
		// the drain loop never stops early, so this send cannot block forever
		r.batches <- lines
	}
	if err != nil {
		return err
	}

	r.saveFacts(ctx, logger, dev, text)
	return nil
}

func (r *runState) saveFacts(ctx context.Context, logger lg.Logger, dev models.Device, text string) {
	if r.opts.Facts == nil {
		return
	}
	info := transcript.Parse(dev.Name, text)
	facts := models.Facts{
		RunID:       r.opts.RunID,
		Name:        dev.Name,
		Address:     dev.Address,
		Version:     info.Version,
		Serial:      info.Serial,
		Info:        info.Line(),
		CollectedAt: time.Now().UTC(),
	}
	family, err := octets.Derive(dev.Address)
	if err != nil {
		logger.Warn("octet derivation failed", lg.String("address", dev.Address), lg.Err(err))
	} else {
		facts.Octets = &family
	}
	if err := r.opts.Facts.Save(ctx, facts); err != nil {
		logger.Error("saving device facts failed", lg.Err(err))
	}
}

// unique drops repeated names, keeping the first occurrence.
func unique(names []string) ([]string, int) {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out, len(names) - len(out)
}

func toResultLines(name, text string) []models.ResultLine {
	split := transcript.SplitLines(text)
	lines := make([]models.ResultLine, 0, len(split))
	for _, l := range split {
		lines = append(lines, models.ResultLine{Device: name, Text: l})
	}
	return lines
}
