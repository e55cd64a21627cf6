package sqlconn

import (
	"fmt"
	"strings"

	talkErrors "github.com/harunnryd/tabletalk/internal/errors"
)

// Dialect knows how a driver names and describes a table.
type Dialect interface {
	Name() string
	Required() []string
	QualifiedName(t Target) string
	DescribeStatement(t Target) string
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return "sqlite" }

// SQLite has no catalog level; the database is the file itself, so only the
// table is required and the schema defaults to main.
func (sqliteDialect) Required() []string { return []string{"table"} }

func (sqliteDialect) QualifiedName(t Target) string {
	schema := t.Schema
	if schema == "" {
		schema = "main"
	}
	return quote(schema, '"') + "." + quote(t.Table, '"')
}

func (d sqliteDialect) DescribeStatement(t Target) string {
	schema := t.Schema
	if schema == "" {
		schema = "main"
	}
	return fmt.Sprintf("PRAGMA %s.table_info(%s)", quote(schema, '"'), quote(t.Table, '"'))
}

type databricksDialect struct{}

func (databricksDialect) Name() string { return "databricks" }

func (databricksDialect) Required() []string { return []string{"db", "schema", "table"} }

func (databricksDialect) QualifiedName(t Target) string {
	return quote(t.DB, '`') + "." + quote(t.Schema, '`') + "." + quote(t.Table, '`')
}

func (d databricksDialect) DescribeStatement(t Target) string {
	return "DESCRIBE TABLE " + d.QualifiedName(t)
}

func quote(ident string, q byte) string {
	s := string(q)
	return s + strings.ReplaceAll(ident, s, s+s) + s
}

// checkTarget reports which identifying strings the operator still has to supply.
func checkTarget(d Dialect, t Target) error {
	if missing := t.Missing(d.Required()...); len(missing) > 0 {
		return talkErrors.InvalidInput(fmt.Sprintf(
			"table target is incomplete: missing %s (set it with /use db.schema.table or the table.* config)",
			strings.Join(missing, ", "),
		))
	}
	return nil
}
