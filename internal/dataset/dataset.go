// Package dataset holds a fully materialized query result.
package dataset

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Kind is the storage class of a column, derived from driver values.
type Kind string

const (
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
	KindString Kind = "string"
	KindTime   Kind = "time"
)

type Column struct {
	Name string `json:"name"`
	// DatabaseType is the driver's type name, for example BIGINT or TEXT.
	DatabaseType string `json:"database_type,omitempty"`
	Kind         Kind   `json:"kind"`
}

// Table is an in-memory result set. Rows hold one value per column: int64,
// float64, bool, string, time.Time, or nil.
type Table struct {
	Columns []Column
	Rows    [][]any
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

func (t *Table) Empty() bool {
	return t.Len() == 0
}

func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Records returns rows keyed by column name, the shape chart renderers consume.
func (t *Table) Records() []map[string]any {
	out := make([]map[string]any, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(map[string]any, len(t.Columns))
		for i, c := range t.Columns {
			if i < len(row) {
				v := row[i]
				if ts, ok := v.(time.Time); ok {
					v = ts.UTC().Format(time.RFC3339Nano)
				}
				rec[c.Name] = v
			}
		}
		out = append(out, rec)
	}
	return out
}

// Normalize converts a driver-scanned value into one of the Table value types.
func Normalize(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(val)
	case string, bool, float64, int64, time.Time:
		return val
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint64:
		if val > math.MaxInt64 {
			return strconv.FormatUint(val, 10)
		}
		return int64(val)
	case float32:
		return float64(val)
	default:
		return fmt.Sprint(val)
	}
}

// KindOf reports the Kind of a normalized value. nil has no kind.
func KindOf(v any) (Kind, bool) {
	switch v.(type) {
	case int64:
		return KindInt, true
	case float64:
		return KindFloat, true
	case bool:
		return KindBool, true
	case time.Time:
		return KindTime, true
	case string:
		return KindString, true
	default:
		return "", false
	}
}

// InferKinds sets each column's Kind from its values. Columns whose values
// disagree fall back to string, except int mixed with float, which widens to float.
func (t *Table) InferKinds() {
	for ci := range t.Columns {
		var kind Kind
		for _, row := range t.Rows {
			if ci >= len(row) {
				continue
			}
			k, ok := KindOf(row[ci])
			if !ok {
				continue
			}
			switch {
			case kind == "":
				kind = k
			case kind == k:
			case (kind == KindInt && k == KindFloat) || (kind == KindFloat && k == KindInt):
				kind = KindFloat
			default:
				kind = KindString
			}
		}
		if kind == "" {
			kind = KindString
		}
		t.Columns[ci].Kind = kind
	}
}
