package artifact

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/harunnryd/tabletalk/internal/dataset"

	"github.com/parquet-go/parquet-go"
)

// columnsKey stores the original column order and kinds; parquet groups sort
// their fields by name.
const columnsKey = "tabletalk.columns"

const readBatch = 128

func leafFor(kind dataset.Kind) parquet.Node {
	switch kind {
	case dataset.KindInt:
		return parquet.Leaf(parquet.Int64Type)
	case dataset.KindFloat:
		return parquet.Leaf(parquet.DoubleType)
	case dataset.KindBool:
		return parquet.Leaf(parquet.BooleanType)
	default:
		return parquet.String()
	}
}

func schemaFor(columns []dataset.Column) (*parquet.Schema, []int, error) {
	if len(columns) == 0 {
		return nil, nil, errors.New("table has no columns")
	}

	group := parquet.Group{}
	for _, c := range columns {
		if _, dup := group[c.Name]; dup {
			return nil, nil, fmt.Errorf("duplicate column name %q", c.Name)
		}
		group[c.Name] = parquet.Optional(leafFor(c.Kind))
	}
	schema := parquet.NewSchema("dataframe", group)

	return schema, leafIndexes(schema, columns), nil
}

// leafIndexes maps each table column position to its parquet leaf index.
func leafIndexes(schema *parquet.Schema, columns []dataset.Column) []int {
	byName := make(map[string]int, len(columns))
	for i, path := range schema.Columns() {
		if len(path) > 0 {
			byName[path[0]] = i
		}
	}
	out := make([]int, len(columns))
	for i, c := range columns {
		out[i] = byName[c.Name]
	}
	return out
}

func encode(table *dataset.Table) ([]byte, error) {
	schema, leaves, err := schemaFor(table.Columns)
	if err != nil {
		return nil, err
	}

	meta, err := json.Marshal(table.Columns)
	if err != nil {
		return nil, fmt.Errorf("encode column metadata: %w", err)
	}

	rows := make([]parquet.Row, 0, len(table.Rows))
	for _, src := range table.Rows {
		row := make(parquet.Row, len(table.Columns))
		for i, c := range table.Columns {
			var v any
			if i < len(src) {
				v = src[i]
			}
			row[leaves[i]] = encodeValue(v, c.Kind, leaves[i])
		}
		rows = append(rows, row)
	}

	var buf bytes.Buffer
	w := parquet.NewWriter(&buf, schema, parquet.KeyValueMetadata(columnsKey, string(meta)))
	if _, err := w.WriteRows(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeValue(v any, kind dataset.Kind, leaf int) parquet.Value {
	if v == nil {
		return parquet.NullValue().Level(0, 0, leaf)
	}

	var pv parquet.Value
	switch kind {
	case dataset.KindInt:
		if n, ok := v.(int64); ok {
			pv = parquet.Int64Value(n)
		}
	case dataset.KindFloat:
		switch n := v.(type) {
		case float64:
			pv = parquet.DoubleValue(n)
		case int64:
			pv = parquet.DoubleValue(float64(n))
		}
	case dataset.KindBool:
		if b, ok := v.(bool); ok {
			pv = parquet.BooleanValue(b)
		}
	case dataset.KindTime:
		if ts, ok := v.(time.Time); ok {
			pv = parquet.ByteArrayValue([]byte(ts.UTC().Format(time.RFC3339Nano)))
		}
	default:
		pv = parquet.ByteArrayValue([]byte(fmt.Sprint(v)))
	}

	if pv.IsNull() {
		return parquet.NullValue().Level(0, 0, leaf)
	}
	return pv.Level(0, 1, leaf)
}

func decode(data []byte) (*dataset.Table, error) {
	f, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open parquet file: %w", err)
	}

	raw, ok := f.Lookup(columnsKey)
	if !ok {
		return nil, fmt.Errorf("missing %s metadata", columnsKey)
	}
	var columns []dataset.Column
	if err := json.Unmarshal([]byte(raw), &columns); err != nil {
		return nil, fmt.Errorf("decode column metadata: %w", err)
	}

	leaves := leafIndexes(f.Schema(), columns)
	position := make(map[int]int, len(leaves))
	for i, leaf := range leaves {
		position[leaf] = i
	}

	table := &dataset.Table{Columns: columns}

	reader := parquet.NewReader(bytes.NewReader(data))
	defer reader.Close()

	buf := make([]parquet.Row, readBatch)
	for {
		n, err := reader.ReadRows(buf)
		for _, src := range buf[:n] {
			row := make([]any, len(columns))
			for _, v := range src {
				i, ok := position[v.Column()]
				if !ok {
					continue
				}
				cell, err := decodeValue(v, columns[i].Kind)
				if err != nil {
					return nil, fmt.Errorf("column %q: %w", columns[i].Name, err)
				}
				row[i] = cell
			}
			table.Rows = append(table.Rows, row)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read parquet rows: %w", err)
		}
		if n == 0 {
			break
		}
	}

	return table, nil
}

func decodeValue(v parquet.Value, kind dataset.Kind) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	switch kind {
	case dataset.KindInt:
		return v.Int64(), nil
	case dataset.KindFloat:
		return v.Double(), nil
	case dataset.KindBool:
		return v.Boolean(), nil
	case dataset.KindTime:
		ts, err := time.Parse(time.RFC3339Nano, string(v.ByteArray()))
		if err != nil {
			return nil, err
		}
		return ts, nil
	default:
		return string(v.ByteArray()), nil
	}
}
