//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/station-table-service/internal/adapter/kafka"
	"github.com/couchcryptid/station-table-service/internal/config"
	"github.com/couchcryptid/station-table-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const kafkaImage = "confluentinc/confluent-local:7.5.0"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker for the lifetime of the test and
// returns its bootstrap address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := tckafka.Run(ctx, kafkaImage, tckafka.WithClusterID("station-table-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate kafka container: %v", err)
		}
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// testConfig returns a config with unique topic and group names so tests
// sharing a broker do not see each other's records.
func testConfig(broker, name string) *config.Config {
	suffix := fmt.Sprintf("%s-%d", name, time.Now().UnixNano())
	return &config.Config{
		KafkaBrokers:           []string{broker},
		KafkaSourceTopic:       "stations-" + suffix,
		KafkaChangelogTopic:    "stations-table-" + suffix,
		KafkaGroupID:           "stations-stream-" + suffix,
		KafkaReplicationFactor: 1,
		KafkaSourcePartitions:  1,
		ConsumerCount:          1,
		MaxRetries:             5,
		ChangelogBackend:       config.BackendKafka,
	}
}

// createTopics creates the source and changelog topics and waits until the
// broker reports both.
func createTopics(ctx context.Context, t *testing.T, cfg *config.Config) {
	t.Helper()
	kafka.EnsureTopics(ctx, cfg, discardLogger())

	conn, err := kafkago.DialContext(ctx, "tcp", cfg.KafkaBrokers[0])
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		parts, err := conn.ReadPartitions(cfg.KafkaSourceTopic, cfg.KafkaChangelogTopic)
		return err == nil && len(parts) >= 2
	}, 30*time.Second, 250*time.Millisecond, "topics not created")
}

func publishEvents(ctx context.Context, t *testing.T, cfg *config.Config, values ...[]byte) {
	t.Helper()
	producer := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaSourceTopic,
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: false,
	}
	defer producer.Close()

	msgs := make([]kafkago.Message, 0, len(values))
	for _, v := range values {
		msgs = append(msgs, kafkago.Message{Value: v})
	}
	require.NoError(t, producer.WriteMessages(ctx, msgs...))
}

func stationPayload(t *testing.T, event domain.StationEvent) []byte {
	t.Helper()
	data, err := json.Marshal(event)
	require.NoError(t, err)
	return data
}

// readChangelog reads n messages from the start of the changelog topic.
func readChangelog(ctx context.Context, t *testing.T, cfg *config.Config, n int) []kafkago.Message {
	t.Helper()
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:   cfg.KafkaBrokers,
		Topic:     cfg.KafkaChangelogTopic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer r.Close()

	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msgs := make([]kafkago.Message, 0, n)
	for len(msgs) < n {
		msg, err := r.ReadMessage(readCtx)
		require.NoError(t, err, "read changelog")
		msgs = append(msgs, msg)
	}
	return msgs
}

func headerValue(headers []kafkago.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// createTopic creates a topic with an explicit partition count, bypassing the
// service's own topic layout.
func createTopic(ctx context.Context, t *testing.T, broker, topic string, partitions int) {
	t.Helper()

	conn, err := kafkago.DialContext(ctx, "tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	controllerConn, err := kafkago.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer controllerConn.Close()

	require.NoError(t, controllerConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	}))

	require.Eventually(t, func() bool {
		parts, err := conn.ReadPartitions(topic)
		return err == nil && len(parts) == partitions
	}, 30*time.Second, 250*time.Millisecond, "topic %s not created", topic)
}
