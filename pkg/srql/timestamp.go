package srql

import (
	"encoding/json"
	"strconv"
	"time"
)

// Unix values above this are milliseconds; below, seconds. The boundary is
// safely past any plausible seconds value (year 33658) and before any
// plausible milliseconds value (year 2001).
const millisecondThreshold = 1e12

// NormalizeTimestamp coerces the timestamp representations the backend mixes
// freely into a time.Time: RFC3339 strings, unix seconds, unix milliseconds,
// numeric strings, and json.Number. The second return is false when the value
// is not recognizably a timestamp.
func NormalizeTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case int64:
		return fromUnix(float64(t))
	case int:
		return fromUnix(float64(t))
	case float64:
		return fromUnix(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return fromUnix(f)
	case string:
		return parseTimestampString(t)
	default:
		return time.Time{}, false
	}
}

func fromUnix(v float64) (time.Time, bool) {
	if v <= 0 {
		return time.Time{}, false
	}
	if v > millisecondThreshold {
		return time.UnixMilli(int64(v)).UTC(), true
	}
	return time.Unix(int64(v), 0).UTC(), true
}

func parseTimestampString(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromUnix(f)
	}
	return time.Time{}, false
}
