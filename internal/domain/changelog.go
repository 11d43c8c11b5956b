package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// EncodeKey returns the changelog key for a station id.
func EncodeKey(stationID int64) []byte {
	return []byte(strconv.FormatInt(stationID, 10))
}

// DecodeKey parses a changelog key produced by EncodeKey.
func DecodeKey(key []byte) (int64, error) {
	id, err := strconv.ParseInt(string(key), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decode changelog key %q: %w", key, err)
	}
	return id, nil
}

// EncodeValue serializes a table value. A nil station encodes as an empty
// tombstone value.
func EncodeValue(station *TransformedStation) ([]byte, error) {
	if station == nil {
		return nil, nil
	}
	data, err := json.Marshal(station)
	if err != nil {
		return nil, fmt.Errorf("encode changelog value: %w", err)
	}
	return data, nil
}

// DecodeValue parses a changelog value. Empty input is a tombstone and yields nil.
func DecodeValue(data []byte) (*TransformedStation, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var station TransformedStation
	if err := json.Unmarshal(data, &station); err != nil {
		return nil, fmt.Errorf("decode changelog value: %w", err)
	}
	return &station, nil
}

// DecodeEntry rebuilds a ChangelogEntry from its encoded key and value.
func DecodeEntry(key, value []byte) (ChangelogEntry, error) {
	id, err := DecodeKey(key)
	if err != nil {
		return ChangelogEntry{}, err
	}
	station, err := DecodeValue(value)
	if err != nil {
		return ChangelogEntry{}, err
	}
	if station != nil && station.StationID != id {
		return ChangelogEntry{}, fmt.Errorf("changelog key %d does not match value station_id %d", id, station.StationID)
	}
	return ChangelogEntry{Key: id, Value: station}, nil
}
