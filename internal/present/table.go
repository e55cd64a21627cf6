package present

import (
	"fmt"
	"strconv"
	"time"

	"github.com/harunnryd/tabletalk/internal/dataset"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
)

const (
	DefaultMaxRows = 50
	maxCellWidth   = 40
)

type TableRenderer struct {
	maxRows      int
	cellWidth    int
	headerStyle  lipgloss.Style
	oddRowStyle  lipgloss.Style
	evenRowStyle lipgloss.Style
	borderStyle  lipgloss.Style
	footerStyle  lipgloss.Style
}

func NewTableRenderer(maxRows int) *TableRenderer {
	purple := lipgloss.Color("99")
	gray := lipgloss.Color("245")
	lightGray := lipgloss.Color("241")

	return &TableRenderer{
		maxRows:   maxRows,
		cellWidth: maxCellWidth,
		headerStyle: lipgloss.NewStyle().
			Foreground(purple).
			Bold(true).
			Align(lipgloss.Center).
			Padding(0, 1),
		oddRowStyle: lipgloss.NewStyle().
			Foreground(gray).
			Padding(0, 1),
		evenRowStyle: lipgloss.NewStyle().
			Foreground(lightGray).
			Padding(0, 1),
		borderStyle: lipgloss.NewStyle().
			Foreground(purple),
		footerStyle: lipgloss.NewStyle().
			Foreground(gray).
			Italic(true),
	}
}

// WithoutTruncation prints cells in full, for listings whose values are
// typed back in by the user.
func (r *TableRenderer) WithoutTruncation() *TableRenderer {
	r.cellWidth = 0
	return r
}

func (r *TableRenderer) Render(data *dataset.Table) string {
	if data == nil || len(data.Columns) == 0 {
		return "No data"
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(r.borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return r.headerStyle
			case row%2 == 0:
				return r.evenRowStyle
			default:
				return r.oddRowStyle
			}
		}).
		Headers(data.ColumnNames()...)

	shown := data.Len()
	if r.maxRows > 0 && shown > r.maxRows {
		shown = r.maxRows
	}
	for _, row := range data.Rows[:shown] {
		cells := make([]string, len(data.Columns))
		for i := range cells {
			if i < len(row) {
				cells[i] = truncateString(formatCell(row[i]), r.cellWidth)
			}
		}
		t.Row(cells...)
	}

	footer := fmt.Sprintf("%d rows x %d columns", data.Len(), len(data.Columns))
	if shown < data.Len() {
		footer = fmt.Sprintf("showing %d of %d rows x %d columns", shown, data.Len(), len(data.Columns))
	}
	return t.String() + "\n" + r.footerStyle.Render(footer)
}

func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprint(val)
	}
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if maxLen <= 3 || len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
