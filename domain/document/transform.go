package document

import (
	"fmt"
	"strings"

	"messenger/errors"
)

// Transform is a field value resolved by the store at commit time
// against the current value of the field.
type Transform interface {
	// apply returns the new value and false when the field must be removed.
	apply(current any, exists bool, now float64) (any, bool)
}

type serverTimestamp struct{}

func (serverTimestamp) apply(_ any, _ bool, now float64) (any, bool) { return now, true }

// ServerTimestamp is replaced by the commit time of the write.
func ServerTimestamp() Transform { return serverTimestamp{} }

type increment struct{ by float64 }

func (i increment) apply(current any, _ bool, _ float64) (any, bool) {
	n, ok := toFloat(current)
	if !ok {
		return i.by, true
	}
	return n + i.by, true
}

// Increment adds n to a numeric field. A missing or non numeric field counts as 0.
func Increment(n int) Transform { return increment{by: float64(n)} }

type arrayUnion struct{ elems []any }

func (u arrayUnion) apply(current any, _ bool, _ float64) (any, bool) {
	items, _ := current.([]any)
	out := append([]any(nil), items...)
	for _, e := range u.elems {
		if !containsValue(out, e) {
			out = append(out, e)
		}
	}
	return out, true
}

// ArrayUnion appends the elements missing from an array field.
func ArrayUnion(elems ...any) Transform {
	return arrayUnion{elems: Normalize(elems).([]any)}
}

type arrayRemove struct{ elems []any }

func (r arrayRemove) apply(current any, _ bool, _ float64) (any, bool) {
	items, _ := current.([]any)
	out := make([]any, 0, len(items))
	for _, item := range items {
		if !containsValue(r.elems, item) {
			out = append(out, item)
		}
	}
	return out, true
}

// ArrayRemove removes every occurrence of the elements from an array field.
func ArrayRemove(elems ...any) Transform {
	return arrayRemove{elems: Normalize(elems).([]any)}
}

type deleteField struct{}

func (deleteField) apply(any, bool, float64) (any, bool) { return nil, false }

// DeleteField removes the field.
func DeleteField() Transform { return deleteField{} }

func containsValue(items []any, v any) bool {
	for _, item := range items {
		if Equal(item, v) {
			return true
		}
	}
	return false
}

// ApplySet computes the body written by a set.
// Without merge the document is replaced. With merge, maps are merged
// recursively and untouched fields are kept.
func ApplySet(existing, updates Fields, merge bool, now float64) Fields {
	base := map[string]any{}
	if merge {
		base = map[string]any(Clone(existing))
	}
	mergeInto(base, updates, now)
	return base
}

func mergeInto(dst map[string]any, src map[string]any, now float64) {
	for k, v := range src {
		if t, ok := v.(Transform); ok {
			current, exists := dst[k]
			if value, keep := t.apply(current, exists, now); keep {
				dst[k] = value
			} else {
				delete(dst, k)
			}
			continue
		}
		normalized := Normalize(v)
		if m, ok := normalized.(map[string]any); ok {
			sub, isMap := dst[k].(map[string]any)
			if !isMap {
				sub = map[string]any{}
			}
			mergeInto(sub, m, now)
			dst[k] = sub
			continue
		}
		dst[k] = normalized
	}
}

// ApplyUpdate computes the body written by an update.
// Keys are dotted field paths; intermediate maps are created when missing
// and the value at the path is replaced as a whole.
func ApplyUpdate(existing, updates Fields, now float64) (Fields, error) {
	out := map[string]any(Clone(existing))
	for path, v := range updates {
		segments := strings.Split(path, ".")
		for _, s := range segments {
			if s == "" {
				return nil, fmt.Errorf("%w: %q", errors.ErrInvalidFieldPath, path)
			}
		}
		parent := out
		for _, s := range segments[:len(segments)-1] {
			child, ok := parent[s].(map[string]any)
			if !ok {
				child = map[string]any{}
				parent[s] = child
			}
			parent = child
		}
		last := segments[len(segments)-1]
		if t, ok := v.(Transform); ok {
			current, exists := parent[last]
			if value, keep := t.apply(current, exists, now); keep {
				parent[last] = value
			} else {
				delete(parent, last)
			}
			continue
		}
		parent[last] = resolveNested(Normalize(v), now)
	}
	return out, nil
}

// resolveNested resolves transforms nested inside a map value.
func resolveNested(v any, now float64) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	out := map[string]any{}
	mergeInto(out, m, now)
	return out
}
