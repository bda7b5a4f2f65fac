package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// floating marks a wall-clock time that carried no UTC offset on the wire.
var floating = time.FixedZone("floating", 0)

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// ParseTimestamp reads an ISO-8601 timestamp. RFC 3339 values keep their offset; values
// without one are returned as floating wall-clock times for ResolveLocal.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, raw, floating); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not an ISO-8601 timestamp", raw)
}

// IsFloating reports whether t came from a timestamp without an offset.
func IsFloating(t time.Time) bool {
	return t.Location() == floating
}

// ResolveLocal places a floating timestamp on loc's wall clock. Other values pass through.
func ResolveLocal(t time.Time, loc *time.Location) time.Time {
	if !IsFloating(t) {
		return t
	}
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()
	return time.Date(y, m, d, hh, mm, ss, t.Nanosecond(), loc)
}

// Timestamp decodes a JSON string with ParseTimestamp.
type Timestamp time.Time

// UnmarshalJSON implements json.Unmarshaler. null leaves the zero time.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	if raw == "" {
		*t = Timestamp{}
		return nil
	}
	parsed, err := ParseTimestamp(raw)
	if err != nil {
		return err
	}
	*t = Timestamp(parsed)
	return nil
}

// UnmarshalJSON accepts start_time with or without an offset.
func (r *BookLessonRequest) UnmarshalJSON(data []byte) error {
	type Alias BookLessonRequest
	aux := struct {
		*Alias
		StartTime Timestamp `json:"start_time"`
	}{Alias: (*Alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.StartTime = time.Time(aux.StartTime)
	return nil
}

// UnmarshalJSON accepts new_start_time with or without an offset.
func (r *RescheduleLessonRequest) UnmarshalJSON(data []byte) error {
	type Alias RescheduleLessonRequest
	aux := struct {
		*Alias
		NewStartTime Timestamp `json:"new_start_time"`
	}{Alias: (*Alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.NewStartTime = time.Time(aux.NewStartTime)
	return nil
}
