// Package report persists result lines. A run writes to one or more sinks;
// the file sink is the report proper, the others mirror it.
package report

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/andrej220/routerconfig/internal/lg"
	"github.com/andrej220/routerconfig/pkg/models"
)

// Sink receives result lines as they are produced. Write may be called from
// one goroutine only; Close flushes and releases the sink.
type Sink interface {
	Write(ctx context.Context, line models.ResultLine) error
	Close() error
}

// FileSink writes one physical line per result line, no header and no
// per-device delimiter.
type FileSink struct {
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	path string
}

var _ Sink = (*FileSink)(nil)

// NewFileSink creates (or truncates) the report at path.
func NewFileSink(path string) (*FileSink, error) {
	if path == "" {
		return nil, fmt.Errorf("invalid report path: %w", os.ErrInvalid)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create report %s: %w", path, err)
	}
	return &FileSink{f: f, w: bufio.NewWriter(f), path: path}, nil
}

func (s *FileSink) Write(_ context.Context, line models.ResultLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.WriteString(line.Text); err != nil {
		return fmt.Errorf("write report %s: %w", s.path, err)
	}
	return s.w.WriteByte('\n')
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ferr := s.w.Flush()
	cerr := s.f.Close()
	if ferr != nil {
		return fmt.Errorf("flush report %s: %w", s.path, ferr)
	}
	return cerr
}

// MultiSink writes every line to Primary, the report proper, and offers it
// to each mirror. Mirrors are best effort: their errors are logged and kept
// for Err, never returned from Write or Close, and never stop later lines.
type MultiSink struct {
	Primary Sink
	Mirrors []Sink
	Logger  lg.Logger

	mu        sync.Mutex
	mirrorErr error
}

var _ Sink = (*MultiSink)(nil)

func NewMultiSink(primary Sink, logger lg.Logger, mirrors ...Sink) *MultiSink {
	if logger == nil {
		logger = lg.Discard
	}
	return &MultiSink{Primary: primary, Mirrors: mirrors, Logger: logger}
}

func (m *MultiSink) Write(ctx context.Context, line models.ResultLine) error {
	err := m.Primary.Write(ctx, line)
	for i, mirror := range m.Mirrors {
		if merr := mirror.Write(ctx, line); merr != nil {
			m.mirrorFailed(i, "write", merr)
		}
	}
	return err
}

func (m *MultiSink) Close() error {
	err := m.Primary.Close()
	for i, mirror := range m.Mirrors {
		if merr := mirror.Close(); merr != nil {
			m.mirrorFailed(i, "close", merr)
		}
	}
	return err
}

// Err returns the first mirror error, if any.
func (m *MultiSink) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mirrorErr
}

func (m *MultiSink) mirrorFailed(i int, op string, err error) {
	m.mu.Lock()
	if m.mirrorErr == nil {
		m.mirrorErr = err
	}
	m.mu.Unlock()
	m.Logger.Warn("report mirror failed", lg.Int("mirror", i), lg.String("op", op), lg.Err(err))
}
