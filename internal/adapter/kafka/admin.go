package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/couchcryptid/station-table-service/internal/config"
	kafkago "github.com/segmentio/kafka-go"
)

// TopicConfigs returns the topics this service reads and writes. The
// changelog topic is compacted and always has exactly one partition.
func TopicConfigs(cfg *config.Config) []kafkago.TopicConfig {
	return []kafkago.TopicConfig{
		{
			Topic:             cfg.KafkaSourceTopic,
			NumPartitions:     cfg.KafkaSourcePartitions,
			ReplicationFactor: cfg.KafkaReplicationFactor,
		},
		{
			Topic:             cfg.KafkaChangelogTopic,
			NumPartitions:     1,
			ReplicationFactor: cfg.KafkaReplicationFactor,
			ConfigEntries: []kafkago.ConfigEntry{
				{ConfigName: "cleanup.policy", ConfigValue: "compact"},
			},
		},
	}
}

// EnsureTopics creates any missing topic. Failures are logged and otherwise
// ignored; a topic that really is missing surfaces later as a read or write error.
func EnsureTopics(ctx context.Context, cfg *config.Config, logger *slog.Logger) {
	topics := TopicConfigs(cfg)
	if err := createTopics(ctx, cfg.KafkaBrokers, topics); err != nil {
		logger.Error("failed to create topics", "error", err)
		return
	}
	for _, t := range topics {
		logger.Info("topic ensured", "topic", t.Topic, "partitions", t.NumPartitions)
	}
}

func createTopics(ctx context.Context, brokers []string, topics []kafkago.TopicConfig) error {
	if len(brokers) == 0 {
		return errors.New("no brokers configured")
	}

	var dialer kafkago.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("find controller: %w", err)
	}
	controllerConn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("dial controller: %w", err)
	}
	defer controllerConn.Close()

	// kafka-go treats "already exists" as success for CreateTopics.
	if err := controllerConn.CreateTopics(topics...); err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	return nil
}
