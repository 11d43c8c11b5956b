package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedEvent is returned when a source record cannot be decoded into a
// StationEvent.
var ErrMalformedEvent = errors.New("malformed station event")

// ParseStationEvent decodes a RawEvent's value into a StationEvent.
// A record without a station_id cannot be keyed and is rejected.
func ParseStationEvent(raw RawEvent) (StationEvent, error) {
	var rec struct {
		StationEvent
		StationID *int64 `json:"station_id"`
	}
	if err := json.Unmarshal(raw.Value, &rec); err != nil {
		return StationEvent{}, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	if rec.StationID == nil {
		return StationEvent{}, fmt.Errorf("%w: missing station_id", ErrMalformedEvent)
	}

	event := rec.StationEvent
	event.StationID = *rec.StationID
	return event, nil
}

// TransformStation derives the table value for a station event. Line flags are
// checked red, blue, green and each true flag overwrites the previous choice,
// so green wins over blue and blue wins over red.
func TransformStation(event StationEvent) TransformedStation {
	line := LineNone
	if event.Red {
		line = LineRed
	}
	if event.Blue {
		line = LineBlue
	}
	if event.Green {
		line = LineGreen
	}

	return TransformedStation{
		StationID:   event.StationID,
		StationName: event.StationName,
		Order:       event.Order,
		Line:        line,
	}
}
