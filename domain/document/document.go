// Package document holds the value types shared by every document store engine:
// documents, field transforms, queries and live snapshots.
// It has no knowledge of how documents are persisted.
package document

import (
	"strings"
	"time"
)

// Fields is the body of a document.
// Stored values are normalized to string, float64, bool, nil, []any and map[string]any.
// Timestamps are stored as epoch milliseconds.
type Fields map[string]any

// Document is a point-in-time copy of a stored document.
// Exists is false when a point read found nothing.
type Document struct {
	Collection string
	ID         string
	Fields     Fields
	CreateTime time.Time
	UpdateTime time.Time
	Exists     bool
}

// Lookup resolves a dotted field path ("unreadCount.alice").
func (f Fields) Lookup(path string) (any, bool) {
	var current any = map[string]any(f)
	for _, segment := range strings.Split(path, ".") {
		m, ok := asStringMap(current)
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func (f Fields) String(path string) string {
	v, _ := f.Lookup(path)
	s, _ := v.(string)
	return s
}

func (f Fields) Number(path string) (float64, bool) {
	v, ok := f.Lookup(path)
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

func (f Fields) Int(path string) int {
	n, _ := f.Number(path)
	return int(n)
}

// Bool returns the value and whether the field was present as a boolean.
func (f Fields) Bool(path string) (bool, bool) {
	v, _ := f.Lookup(path)
	b, ok := v.(bool)
	return b, ok
}

func (f Fields) Strings(path string) []string {
	v, _ := f.Lookup(path)
	items, ok := v.([]any)
	if !ok {
		if s, ok := v.([]string); ok {
			return append([]string(nil), s...)
		}
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (f Fields) Map(path string) map[string]any {
	v, _ := f.Lookup(path)
	m, _ := asStringMap(v)
	return m
}

// Time reads an epoch millisecond field. A missing or null field returns nil.
func (f Fields) Time(path string) *time.Time {
	n, ok := f.Number(path)
	if !ok {
		return nil
	}
	t := FromMillis(n)
	return &t
}

// Has reports whether the path is present, even with a null value.
func (f Fields) Has(path string) bool {
	_, ok := f.Lookup(path)
	return ok
}

func Millis(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func FromMillis(ms float64) time.Time {
	return time.UnixMilli(int64(ms)).UTC()
}

func asStringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Fields:
		return m, true
	default:
		return nil, false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
