// Package redis stores the table changelog in a Redis stream.
package redis

import (
	"context"
	"fmt"

	"github.com/couchcryptid/station-table-service/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const (
	fieldKey       = "key"
	fieldValue     = "value"
	fieldTombstone = "tombstone"

	replayPageSize = 500
)

// Changelog is a table.Changelog backed by a Redis stream. Stream IDs give a
// total order; durability follows the server's persistence settings.
type Changelog struct {
	client *goredis.Client
	stream string
}

// NewChangelog wraps an existing client.
func NewChangelog(client *goredis.Client, stream string) *Changelog {
	return &Changelog{client: client, stream: stream}
}

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, addr, password string, db int, stream string) (*Changelog, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return NewChangelog(client, stream), nil
}

// Append adds entry to the end of the stream.
func (c *Changelog) Append(ctx context.Context, entry domain.ChangelogEntry) error {
	value, err := domain.EncodeValue(entry.Value)
	if err != nil {
		return err
	}
	tombstone := "0"
	if entry.Tombstone() {
		tombstone = "1"
	}
	err = c.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: c.stream,
		Values: map[string]any{
			fieldKey:       string(domain.EncodeKey(entry.Key)),
			fieldValue:     string(value),
			fieldTombstone: tombstone,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", c.stream, err)
	}
	return nil
}

// Replay pages through the stream from the first entry to the last one
// present when Replay starts.
func (c *Changelog) Replay(ctx context.Context, fn func(domain.ChangelogEntry) error) error {
	last, err := c.client.XRevRangeN(ctx, c.stream, "+", "-", 1).Result()
	if err != nil {
		return fmt.Errorf("xrevrange %s: %w", c.stream, err)
	}
	if len(last) == 0 {
		return nil
	}
	stop := last[0].ID

	start := "-"
	for {
		msgs, err := c.client.XRangeN(ctx, c.stream, start, stop, replayPageSize).Result()
		if err != nil {
			return fmt.Errorf("xrange %s: %w", c.stream, err)
		}
		for i, msg := range msgs {
			// ranges are inclusive, so every page after the first repeats the previous last ID
			if i == 0 && start != "-" && msg.ID == start {
				continue
			}
			entry, err := decodeMessage(msg)
			if err != nil {
				return fmt.Errorf("stream %s id %s: %w", c.stream, msg.ID, err)
			}
			if err := fn(entry); err != nil {
				return err
			}
		}
		if len(msgs) == 0 || msgs[len(msgs)-1].ID == stop {
			return nil
		}
		start = msgs[len(msgs)-1].ID
	}
}

// Close closes the Redis client.
func (c *Changelog) Close() error {
	return c.client.Close()
}

func decodeMessage(msg goredis.XMessage) (domain.ChangelogEntry, error) {
	key, ok := msg.Values[fieldKey].(string)
	if !ok {
		return domain.ChangelogEntry{}, fmt.Errorf("missing %q field", fieldKey)
	}
	if msg.Values[fieldTombstone] == "1" {
		return domain.DecodeEntry([]byte(key), nil)
	}
	value, ok := msg.Values[fieldValue].(string)
	if !ok || value == "" {
		return domain.ChangelogEntry{}, fmt.Errorf("missing %q field", fieldValue)
	}
	return domain.DecodeEntry([]byte(key), []byte(value))
}
