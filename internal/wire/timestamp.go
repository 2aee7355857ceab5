package wire

import (
	"encoding/json"
	"time"
)

// wireTimeFormat is the server's timestamp format: ISO-8601 with
// millisecond precision and a literal Z suffix.
const wireTimeFormat = "2006-01-02T15:04:05.000Z"

// Timestamp is a lenient wire timestamp. The server emits ISO-8601 UTC
// strings, but an unparsable value must not fail the whole event: the raw
// string is kept for display and the parsed time stays zero.
type Timestamp struct {
	Time time.Time
	Raw  string
}

// At builds a parsed Timestamp from a time value.
func At(t time.Time) Timestamp {
	if t.IsZero() {
		return Timestamp{}
	}
	return Timestamp{Time: t.UTC(), Raw: t.UTC().Format(wireTimeFormat)}
}

// IsZero reports whether the timestamp carries no value at all.
func (t Timestamp) IsZero() bool {
	return t.Time.IsZero() && t.Raw == ""
}

// Valid reports whether the raw value parsed into an actual time.
func (t Timestamp) Valid() bool {
	return !t.Time.IsZero()
}

// Before orders two timestamps. Unparsable timestamps sort before parsed
// ones so arrival order decides among them.
func (t Timestamp) Before(other Timestamp) bool {
	return t.Time.Before(other.Time)
}

// String returns the display form: the parsed time if available,
// otherwise the opaque raw string.
func (t Timestamp) String() string {
	if t.Valid() {
		return t.Time.UTC().Format(wireTimeFormat)
	}
	return t.Raw
}

// UnmarshalJSON accepts a string timestamp, parsing it when possible and
// preserving it as an opaque raw value otherwise. null yields a zero value.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Not even a string; keep it opaque rather than failing the event.
		*t = Timestamp{Raw: string(data)}
		return nil
	}
	if s == "" {
		*t = Timestamp{}
		return nil
	}
	for _, layout := range []string{wireTimeFormat, time.RFC3339Nano, time.RFC3339} {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = Timestamp{Time: parsed.UTC(), Raw: s}
			return nil
		}
	}
	*t = Timestamp{Raw: s}
	return nil
}

// MarshalJSON emits the wire format, round-tripping opaque raw values.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.String())
}
