package domain

import (
	"context"
	"time"
)

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// StationEvent is the per-stop record published by the upstream connector.
type StationEvent struct {
	StopID                 int64  `json:"stop_id"`
	DirectionID            string `json:"direction_id"`
	StopName               string `json:"stop_name"`
	StationName            string `json:"station_name"`
	StationDescriptiveName string `json:"station_descriptive_name"`
	StationID              int64  `json:"station_id"`
	Order                  int64  `json:"order"`
	Red                    bool   `json:"red"`
	Blue                   bool   `json:"blue"`
	Green                  bool   `json:"green"`
}

// TransformedStation is the table value stored under StationID.
type TransformedStation struct {
	StationID   int64  `json:"station_id"`
	StationName string `json:"station_name"`
	Order       int64  `json:"order"`
	Line        Line   `json:"line"`
}

// ChangelogEntry is one table mutation. A nil Value is a tombstone.
type ChangelogEntry struct {
	Key   int64
	Value *TransformedStation
}

// Tombstone reports whether the entry deletes its key.
func (e ChangelogEntry) Tombstone() bool {
	return e.Value == nil
}
