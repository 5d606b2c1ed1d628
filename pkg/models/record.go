package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/netsight-io/netsight/pkg/srql"
)

var errNullRecord = errors.New("record is JSON null")

// Record is a single validated result row. Accessors tolerate the numeric
// and timestamp representations the backend actually emits instead of
// assuming one shape.
type Record map[string]any

// ParseFailure records one result row that failed validation, by position.
type ParseFailure struct {
	Index int
	Err   error
}

func (f ParseFailure) Error() string {
	return fmt.Sprintf("record %d: %v", f.Index, f.Err)
}

func (f ParseFailure) Unwrap() error { return f.Err }

// RecordSet is the outcome of validating raw query results: rows either
// become Records or ParseFailures, never silently both or neither.
type RecordSet struct {
	Records  []Record
	Failures []ParseFailure
}

// DecodeRecords validates raw result rows at the API boundary. Rows that are
// not JSON objects are reported as failures; downstream code only ever sees
// well-formed Records.
func DecodeRecords(raw []json.RawMessage) RecordSet {
	var set RecordSet
	for i, r := range raw {
		var m map[string]any
		if err := json.Unmarshal(r, &m); err != nil {
			set.Failures = append(set.Failures, ParseFailure{Index: i, Err: err})
			continue
		}
		if m == nil {
			set.Failures = append(set.Failures, ParseFailure{Index: i, Err: errNullRecord})
			continue
		}
		set.Records = append(set.Records, Record(m))
	}
	return set
}

// String returns the value for key if it is a string.
func (r Record) String(key string) (string, bool) {
	s, ok := r[key].(string)
	return s, ok
}

// Int64 returns the value for key coerced to int64. JSON numbers decode as
// float64, and some backend fields arrive as numeric strings.
func (r Record) Int64(key string) (int64, bool) {
	switch v := r[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			return n, true
		}
		f, err := strconv.ParseFloat(v, 64)
		return int64(f), err == nil
	default:
		return 0, false
	}
}

// Float64 returns the value for key coerced to float64.
func (r Record) Float64(key string) (float64, bool) {
	switch v := r[key].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Bool returns the value for key if it is a boolean.
func (r Record) Bool(key string) (bool, bool) {
	b, ok := r[key].(bool)
	return b, ok
}

// Time returns the value for key normalized to a time.Time, accepting the
// timestamp forms the backend mixes freely (RFC3339, unix seconds, unix
// milliseconds, numeric strings).
func (r Record) Time(key string) (time.Time, bool) {
	v, ok := r[key]
	if !ok {
		return time.Time{}, false
	}
	return srql.NormalizeTimestamp(v)
}
