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

const (
	kafkaBatchSize    = 100
	kafkaCloseTimeout = 30 * time.Second
)

type messageWriter interface {
	WriteMessages(context.Context, ...kafka.Message) error
	Close() error
}

// KafkaSink mirrors result lines onto a topic, keyed by device name so one
// device's lines stay ordered within a partition.
type KafkaSink struct {
	writer  messageWriter
	runID   uuid.UUID
	pending []kafka.Message
	lg      lg.Logger
}

var _ Sink = (*KafkaSink)(nil)

func NewKafkaSink(brokers []string, topic string, runID uuid.UUID, logger lg.Logger) *KafkaSink {
	return newKafkaSink(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		Async:                  false,
		AllowAutoTopicCreation: true,
	}, runID, logger)
}

func newKafkaSink(w messageWriter, runID uuid.UUID, logger lg.Logger) *KafkaSink {
	return &KafkaSink{writer: w, runID: runID, lg: logger}
}

func (k *KafkaSink) Write(ctx context.Context, line models.ResultLine) error {
	k.pending = append(k.pending, kafka.Message{
		Key:     []byte(line.Device),
		Value:   []byte(line.Text),
		Time:    time.Now(),
		Headers: []kafka.Header{{Key: "run_id", Value: []byte(k.runID.String())}},
	})
	if len(k.pending) < kafkaBatchSize {
		return nil
	}
	return k.flush(ctx)
}

func (k *KafkaSink) flush(ctx context.Context) error {
	if len(k.pending) == 0 {
		return nil
	}
	batch := k.pending
	k.pending = nil
	if err := k.writer.WriteMessages(ctx, batch...); err != nil {
		if errors.Is(err, kafka.UnknownTopicOrPartition) {
			k.lg.Error("Kafka topic does not exist",
				lg.String("action", "Create the topic manually or enable auto-creation"))
		}
		return fmt.Errorf("kafka write %d messages: %w", len(batch), err)
	}
	return nil
}

func (k *KafkaSink) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), kafkaCloseTimeout)
	defer cancel()
	ferr := k.flush(ctx)
	cerr := k.writer.Close()
	return errors.Join(ferr, cerr)
}
