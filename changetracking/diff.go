package changetracking

import (
	"fmt"
	"strings"
)

// Row is one record keyed by column name. A nil value is null.
type Row map[string]any

// Diff is the row-level difference between two row sets.
type Diff struct {
	// Added rows are in new but not in old.
	Added []Row
	// Removed rows are in old but not in new.
	Removed []Row
	// Deprecated holds the old values of modified rows.
	Deprecated []Row
	// Updated holds the new values of modified rows, aligned with Deprecated.
	Updated []Row
}

// Empty reports whether the row sets were equal.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Updated) == 0
}

// DiffRows compares old and new rows matched by the keys columns. A matched
// row is modified when any of the values columns differs. Null equals null,
// and values are compared by their textual form so that a category and its
// plain string compare equal. With duplicate keys the last row wins.
func DiffRows(old, new []Row, keys, values []string) Diff {
	oldIdx := index(old, keys)
	newIdx := index(new, keys)

	var d Diff

	seen := make(map[string]bool, len(new))
	for _, r := range new {
		k := rowKey(r, keys)
		if seen[k] {
			continue
		}
		seen[k] = true

		cur := newIdx[k]
		prev, ok := oldIdx[k]
		if !ok {
			d.Added = append(d.Added, cur)
			continue
		}
		if !equalValues(prev, cur, values) {
			d.Deprecated = append(d.Deprecated, prev)
			d.Updated = append(d.Updated, cur)
		}
	}

	removed := make(map[string]bool, len(old))
	for _, r := range old {
		k := rowKey(r, keys)
		if _, ok := newIdx[k]; ok || removed[k] {
			continue
		}
		removed[k] = true
		d.Removed = append(d.Removed, oldIdx[k])
	}

	return d
}

func index(rows []Row, keys []string) map[string]Row {
	m := make(map[string]Row, len(rows))
	for _, r := range rows {
		m[rowKey(r, keys)] = r
	}
	return m
}

func rowKey(r Row, keys []string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = normalize(r[k])
	}
	return strings.Join(parts, "\x1f")
}

func equalValues(a, b Row, cols []string) bool {
	for _, c := range cols {
		va, vb := a[c], b[c]
		if isNull(va) && isNull(vb) {
			continue
		}
		if isNull(va) != isNull(vb) {
			return false
		}
		if normalize(va) != normalize(vb) {
			return false
		}
	}
	return true
}

func isNull(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case float64:
		return x != x
	case float32:
		return x != x
	}
	return false
}

func normalize(v any) string {
	if isNull(v) {
		return "\x00null"
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(v)
}
