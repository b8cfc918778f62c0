package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"solar_report/internal/model"
)

var (
	ErrEmptyPayload = errors.New("empty payload")
	ErrNonFinite    = errors.New("non-finite power value")
)

// powerMessage is the JSON form of a power reading. Timestamp may be an
// RFC 3339 string, Unix seconds or Unix milliseconds.
type powerMessage struct {
	Power     *float64        `json:"power"`
	Value     *float64        `json:"value"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// unixMillisThreshold separates Unix seconds from milliseconds. Seconds
// exceed it only after the year 33658.
const unixMillisThreshold = 1e12

// ParsePayload decodes an MQTT power message. It accepts a bare number
// (e.g. "1234.5") or a JSON object {"power": 1234.5, "timestamp": ...}.
// Messages without a timestamp are stamped with now.
func ParsePayload(payload []byte, now time.Time) (model.Sample, error) {
	text := strings.TrimSpace(string(payload))
	if text == "" {
		return model.Sample{}, ErrEmptyPayload
	}

	if !strings.HasPrefix(text, "{") {
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return model.Sample{}, fmt.Errorf("parsing power %q: %w", text, err)
		}
		return normalized(v, now)
	}

	var msg powerMessage
	if err := json.Unmarshal([]byte(text), &msg); err != nil {
		return model.Sample{}, fmt.Errorf("decoding power message: %w", err)
	}
	power := msg.Power
	if power == nil {
		power = msg.Value
	}
	if power == nil {
		return model.Sample{}, errors.New("power message has no power or value field")
	}
	ts := now
	if len(msg.Timestamp) > 0 && string(msg.Timestamp) != "null" {
		var err error
		if ts, err = decodeTimestamp(msg.Timestamp); err != nil {
			return model.Sample{}, err
		}
	}
	return normalized(*power, ts)
}

func normalized(v float64, ts time.Time) (model.Sample, error) {
	s, ok := Normalize(v, ts)
	if !ok {
		return model.Sample{}, ErrNonFinite
	}
	return s, nil
}

func decodeTimestamp(raw json.RawMessage) (time.Time, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return ParseTimestamp(str)
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return time.Time{}, fmt.Errorf("decoding timestamp %s: %w", raw, err)
	}
	if n >= unixMillisThreshold {
		return time.UnixMilli(int64(n)).UTC(), nil
	}
	whole, frac := math.Modf(n)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC(), nil
}
