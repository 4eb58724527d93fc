package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andrej220/routerconfig/internal/lg"
	"github.com/andrej220/routerconfig/pkg/models"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// MirrorReader reads back the lines a KafkaSink mirrored for one run.
type MirrorReader struct {
	reader messageReader
	runID  uuid.UUID
}

// NewMirrorReader starts a fresh consumer group at the beginning of topic.
func NewMirrorReader(brokers []string, topic string, runID uuid.UUID) *MirrorReader {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     "routerconfig-replay-" + uuid.NewString(),
		Topic:       topic,
		StartOffset: kafka.FirstOffset,
	})
	return &MirrorReader{reader: r, runID: runID}
}

// Read returns the next line of the run. Messages of other runs are
// committed and skipped.
func (m *MirrorReader) Read(ctx context.Context) (models.ResultLine, error) {
	for {
		msg, err := m.reader.FetchMessage(ctx)
		if err != nil {
			return models.ResultLine{}, err
		}
		if err := m.reader.CommitMessages(ctx, msg); err != nil {
			return models.ResultLine{}, err
		}
		if headerValue(msg, "run_id") != m.runID.String() {
			continue
		}
		return models.ResultLine{Device: string(msg.Key), Text: string(msg.Value)}, nil
	}
}

func (m *MirrorReader) Close() error {
	return m.reader.Close()
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// Replay copies the run's mirrored lines into sink until the topic stays
// quiet for idle. It returns the number of lines written.
func Replay(ctx context.Context, m *MirrorReader, sink Sink, idle time.Duration) (int, error) {
	logger := lg.FromContext(ctx)
	n := 0
	for {
		readCtx, cancel := context.WithTimeout(ctx, idle)
		line, err := m.Read(readCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				logger.Info("mirror drained", lg.Int("lines", n))
				return n, nil
			}
			return n, fmt.Errorf("read mirror: %w", err)
		}
		if err := sink.Write(ctx, line); err != nil {
			return n, err
		}
		n++
	}
}
