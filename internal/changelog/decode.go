package changelog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrNotArray is returned when the top-level changelog is not a JSON array.
// It is the only decoding failure; everything below the top level is skipped
// rather than rejected.
var ErrNotArray = errors.New("changelog is not an array")

// Operation type codes used by the host's changelog.
const (
	TyInsert      = "is"
	TyInsertStyle = "iss"
	TyDelete      = "ds"
	TyDeleteStyle = "dss"
	TyMulti       = "mlti"
	TyReplace     = "rplc"
	TyRevert      = "rvrt"
)

// Log is a decoded changelog.
type Log struct {
	Records []Record
	// Skipped counts entries and sub-operations that were dropped because
	// they were not objects, had no ty, or had an unknown ty.
	Skipped int
}

// Export is the object form of a changelog as saved from the host's load
// endpoint: {"changelog": [...], "userMap": {...}}.
type Export struct {
	Changelog json.RawMessage `json:"changelog"`
	UserMap   json.RawMessage `json:"userMap"`
}

// SplitExport accepts either a bare changelog array or an Export object and
// returns the changelog and user map parts.
func SplitExport(raw []byte) (json.RawMessage, json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return trimmed, nil, nil
	}
	var export Export
	if err := json.Unmarshal(trimmed, &export); err != nil {
		return nil, nil, fmt.Errorf("decode export: %w", ErrNotArray)
	}
	return export.Changelog, export.UserMap, nil
}

// Decode parses a raw changelog array of [op, timestampMillis, authorId, ...]
// entries.
func Decode(raw json.RawMessage) (Log, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return Log{}, ErrNotArray
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return Log{}, fmt.Errorf("%w: %v", ErrNotArray, err)
	}

	d := &decoder{}
	log := Log{Records: make([]Record, 0, len(entries))}
	for _, entry := range entries {
		record, ok := d.record(entry)
		if !ok {
			d.skipped++
			continue
		}
		log.Records = append(log.Records, record)
	}
	log.Skipped = d.skipped
	return log, nil
}

// DecodeUsers parses a userMap object. Anything that is not an object yields
// an empty map.
func DecodeUsers(raw json.RawMessage) UserMap {
	users := UserMap{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return users
	}
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return users
	}
	for id, value := range entries {
		var info UserInfo
		if err := json.Unmarshal(value, &info); err != nil {
			continue
		}
		users[id] = info
	}
	return users
}

type decoder struct {
	skipped int
}

func (d *decoder) record(entry json.RawMessage) (Record, bool) {
	var fields []json.RawMessage
	if err := json.Unmarshal(entry, &fields); err != nil || len(fields) == 0 {
		return Record{}, false
	}
	op, ok := d.op(fields[0])
	if !ok {
		return Record{}, false
	}
	record := Record{Op: op}
	if len(fields) > 1 {
		var millis float64
		if err := json.Unmarshal(fields[1], &millis); err == nil && !math.IsNaN(millis) && !math.IsInf(millis, 0) {
			record.Timestamp = time.UnixMilli(int64(millis)).UTC()
		}
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.UnixMilli(0).UTC()
	}
	if len(fields) > 2 {
		record.AuthorID = scalarString(fields[2])
	}
	return record, true
}

func (d *decoder) op(raw json.RawMessage) (Op, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, false
	}
	var ty string
	if err := json.Unmarshal(fields["ty"], &ty); err != nil {
		return nil, false
	}

	switch ty {
	case TyInsert, TyInsertStyle:
		return Insert{
			Before: intField(fields["ibi"], 1),
			Text:   textField(fields["s"]),
		}, true
	case TyDelete, TyDeleteStyle:
		start := intField(fields["si"], 1)
		return Delete{
			Start: start,
			End:   intField(fields["ei"], start),
		}, true
	case TyMulti:
		return Multi{Ops: d.ops(fields["mts"])}, true
	case TyReplace:
		return Replace{Ops: d.ops(fields["snapshot"])}, true
	case TyRevert:
		return Revert{Ops: d.ops(fields["snapshot"])}, true
	default:
		return nil, false
	}
}

func (d *decoder) ops(raw json.RawMessage) []Op {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	ops := make([]Op, 0, len(items))
	for _, item := range items {
		op, ok := d.op(item)
		if !ok {
			d.skipped++
			continue
		}
		ops = append(ops, op)
	}
	return ops
}

func intField(raw json.RawMessage, fallback int) int {
	if len(raw) == 0 {
		return fallback
	}
	var value float64
	if err := json.Unmarshal(raw, &value); err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return fallback
	}
	if value > math.MaxInt32 {
		return math.MaxInt32
	}
	if value < math.MinInt32 {
		return math.MinInt32
	}
	return int(value)
}

// textField accepts either a string or an array of strings.
func textField(raw json.RawMessage) []rune {
	if len(raw) == 0 {
		return nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return []rune(text)
	}
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil
	}
	runes := make([]rune, 0, len(parts))
	for _, part := range parts {
		runes = append(runes, []rune(scalarString(part))...)
	}
	return runes
}

func scalarString(raw json.RawMessage) string {
	var value string
	if err := json.Unmarshal(raw, &value); err == nil {
		return value
	}
	return string(bytes.TrimSpace(raw))
}
