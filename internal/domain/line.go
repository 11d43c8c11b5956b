package domain

import (
	"encoding/json"
	"fmt"
)

// Line is the rail line a station belongs to. The zero value is LineNone.
type Line uint8

const (
	LineNone Line = iota
	LineRed
	LineBlue
	LineGreen
)

// String returns the lowercase color name, or "" for LineNone.
func (l Line) String() string {
	switch l {
	case LineRed:
		return "red"
	case LineBlue:
		return "blue"
	case LineGreen:
		return "green"
	default:
		return ""
	}
}

// ParseLine maps a color name to a Line. The empty string is LineNone.
func ParseLine(s string) (Line, error) {
	switch s {
	case "":
		return LineNone, nil
	case "red":
		return LineRed, nil
	case "blue":
		return LineBlue, nil
	case "green":
		return LineGreen, nil
	default:
		return LineNone, fmt.Errorf("unknown line %q", s)
	}
}

// MarshalJSON encodes LineNone as null and other lines as their color name.
func (l Line) MarshalJSON() ([]byte, error) {
	if l == LineNone {
		return []byte("null"), nil
	}
	return json.Marshal(l.String())
}

// UnmarshalJSON accepts null or a color name; unknown names are an error.
func (l *Line) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = LineNone
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode line: %w", err)
	}
	parsed, err := ParseLine(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
