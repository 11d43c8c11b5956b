package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/station-table-service/internal/config"
	"github.com/couchcryptid/station-table-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	changelogPartition = 0
	// Retries belong to the pipeline; each Append is a single bounded attempt.
	changelogWriteTimeout = 10 * time.Second
)

// ErrMultiPartitionChangelog is returned by Replay when the changelog topic
// has more than one partition.
var ErrMultiPartitionChangelog = errors.New("changelog topic must have exactly one partition")

// Changelog is a table.Changelog backed by a single-partition Kafka topic.
// The topic doubles as the public feed of table updates.
type Changelog struct {
	brokers []string
	topic   string
	writer  *kafkago.Writer
	logger  *slog.Logger
}

// NewChangelog creates a changelog on the configured changelog topic.
func NewChangelog(cfg *config.Config, logger *slog.Logger) *Changelog {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaChangelogTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		MaxAttempts:  1,
		WriteTimeout: changelogWriteTimeout,
		BatchSize:    1,
		BatchTimeout: time.Millisecond,
	}
	return &Changelog{
		brokers: cfg.KafkaBrokers,
		topic:   cfg.KafkaChangelogTopic,
		writer:  w,
		logger:  logger,
	}
}

// Append writes one entry and returns once every in-sync replica has acknowledged it.
func (c *Changelog) Append(ctx context.Context, entry domain.ChangelogEntry) error {
	msg, err := entryToMessage(entry)
	if err != nil {
		return err
	}
	if err := c.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write changelog %s: %w", c.topic, err)
	}
	return nil
}

// Replay reads the changelog partition from its first retained offset up to
// the high watermark observed when Replay starts.
func (c *Changelog) Replay(ctx context.Context, fn func(domain.ChangelogEntry) error) error {
	first, last, err := c.offsets(ctx)
	if err != nil {
		return err
	}
	c.logger.Info("replaying changelog", "topic", c.topic, "first_offset", first, "last_offset", last)
	if last <= first {
		return nil
	}

	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:   c.brokers,
		Topic:     c.topic,
		Partition: changelogPartition,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer r.Close()

	if err := r.SetOffset(first); err != nil {
		return fmt.Errorf("seek changelog to %d: %w", first, err)
	}

	for {
		msg, err := r.ReadMessage(ctx)
		if err != nil {
			return fmt.Errorf("read changelog %s: %w", c.topic, err)
		}
		entry, err := domain.DecodeEntry(msg.Key, msg.Value)
		if err != nil {
			return fmt.Errorf("changelog %s offset %d: %w", c.topic, msg.Offset, err)
		}
		if err := fn(entry); err != nil {
			return err
		}
		if msg.Offset >= last-1 {
			return nil
		}
	}
}

// offsets returns the first retained offset and the high watermark of the
// changelog partition, refusing topics with more than one partition.
func (c *Changelog) offsets(ctx context.Context) (int64, int64, error) {
	var lastErr error
	for _, broker := range c.brokers {
		conn, err := kafkago.DialLeader(ctx, "tcp", broker, c.topic, changelogPartition)
		if err != nil {
			lastErr = err
			continue
		}
		defer conn.Close()

		partitions, err := conn.ReadPartitions(c.topic)
		if err != nil {
			return 0, 0, fmt.Errorf("read changelog partitions: %w", err)
		}
		if len(partitions) != 1 {
			return 0, 0, fmt.Errorf("%w: %s has %d", ErrMultiPartitionChangelog, c.topic, len(partitions))
		}

		first, last, err := conn.ReadOffsets()
		if err != nil {
			return 0, 0, fmt.Errorf("read changelog offsets: %w", err)
		}
		return first, last, nil
	}
	return 0, 0, fmt.Errorf("dial changelog leader: %w", lastErr)
}

// Close flushes and closes the writer.
func (c *Changelog) Close() error {
	return c.writer.Close()
}

// entryToMessage encodes a changelog entry. Tombstones carry a nil value.
func entryToMessage(entry domain.ChangelogEntry) (kafkago.Message, error) {
	value, err := domain.EncodeValue(entry.Value)
	if err != nil {
		return kafkago.Message{}, err
	}
	msg := kafkago.Message{
		Key:   domain.EncodeKey(entry.Key),
		Value: value,
	}
	if entry.Value != nil && entry.Value.Line != domain.LineNone {
		msg.Headers = []kafkago.Header{{Key: "line", Value: []byte(entry.Value.Line.String())}}
	}
	return msg, nil
}
