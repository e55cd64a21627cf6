// Package present renders conversation output for the operator: plain text,
// tables and charts.
package present

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/harunnryd/tabletalk/internal/chart"
	"github.com/harunnryd/tabletalk/internal/dataset"

	"charm.land/lipgloss/v2"
	"github.com/natefinch/atomic"
	"github.com/oklog/ulid/v2"
)

// Presenter shows output to whoever drives the session.
type Presenter interface {
	ShowText(ctx context.Context, text string) error
	ShowTable(ctx context.Context, t *dataset.Table) error
	ShowChart(ctx context.Context, spec *chart.Spec, t *dataset.Table) error
	ShowError(ctx context.Context, text string) error
}

// Terminal writes to a stream and saves charts as HTML pages in chartsDir.
type Terminal struct {
	mu         sync.Mutex
	out        io.Writer
	chartsDir  string
	tables     *TableRenderer
	textStyle  lipgloss.Style
	errorStyle lipgloss.Style
	noteStyle  lipgloss.Style
	now        func() time.Time
}

func NewTerminal(out io.Writer, chartsDir string, maxRows int) *Terminal {
	return &Terminal{
		out:        out,
		chartsDir:  chartsDir,
		tables:     NewTableRenderer(maxRows),
		textStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		errorStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		noteStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("99")),
		now:        time.Now,
	}
}

func (p *Terminal) println(s string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintln(p.out, s)
	return err
}

func (p *Terminal) ShowText(_ context.Context, text string) error {
	return p.println(p.textStyle.Render(text))
}

func (p *Terminal) ShowTable(_ context.Context, t *dataset.Table) error {
	return p.println(p.tables.Render(t))
}

func (p *Terminal) ShowError(_ context.Context, text string) error {
	return p.println(p.errorStyle.Render("Error: " + text))
}

// ShowChart writes chart_<stamp>_<ulid>.html and prints its location.
func (p *Terminal) ShowChart(_ context.Context, spec *chart.Spec, t *dataset.Table) error {
	if spec == nil {
		return fmt.Errorf("no chart specification")
	}
	if t == nil {
		return fmt.Errorf("no chart data")
	}

	var page bytes.Buffer
	title := fmt.Sprintf("%s chart", spec.Mark.Type)
	if err := chart.RenderHTML(&page, title, spec, t.Records()); err != nil {
		return err
	}

	if err := os.MkdirAll(p.chartsDir, 0o755); err != nil {
		return fmt.Errorf("create charts dir: %w", err)
	}
	name := fmt.Sprintf("chart_%s_%s.html", p.now().Format("20060102150405"), ulid.Make().String())
	path := filepath.Join(p.chartsDir, name)
	if err := atomic.WriteFile(path, &page); err != nil {
		return fmt.Errorf("write chart page: %w", err)
	}

	return p.println(p.noteStyle.Render(fmt.Sprintf("%s chart of %d rows saved to %s", spec.Mark.Type, t.Len(), path)))
}
