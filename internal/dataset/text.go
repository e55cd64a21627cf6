package dataset

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
)

// Text renders the table as plain aligned columns without styling.
func (t *Table) Text() string {
	if t == nil || len(t.Columns) == 0 {
		return ""
	}

	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(t.ColumnNames(), "\t"))
	for _, row := range t.Rows {
		cells := make([]string, len(t.Columns))
		for i := range cells {
			if i < len(row) {
				cells[i] = textCell(row[i])
			}
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	w.Flush()
	return b.String()
}

func textCell(v any) string {
	switch val := v.(type) {
	case nil:
		return "None"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprint(val)
	}
}
