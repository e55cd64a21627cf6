// Package sqlconn runs statements against the configured table. Every call
// opens its own connection and closes it before returning.
package sqlconn

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/tabletalk/internal/config"
	"github.com/harunnryd/tabletalk/internal/dataset"
	talkErrors "github.com/harunnryd/tabletalk/internal/errors"
	"github.com/harunnryd/tabletalk/internal/logger"

	dbsql "github.com/databricks/databricks-sql-go"
	_ "modernc.org/sqlite"
)

// Connector is what database-touching tools depend on.
type Connector interface {
	Dialect() Dialect
	Describe(ctx context.Context, t Target) (*dataset.Table, error)
	Select(ctx context.Context, t Target, selectPart, additionalQuery string) (*dataset.Table, string, error)
}

type opener func() (*sql.DB, error)

type SQLConnector struct {
	open     opener
	dialect  Dialect
	timeout  time.Duration
	readOnly bool
}

// New builds a connector for cfg.Driver. readOnly enables CheckReadOnly on
// every generated SELECT.
func New(cfg config.ConnectorConfig, readOnly bool) (*SQLConnector, error) {
	timeout, err := cfg.QueryTimeoutDuration()
	if err != nil {
		return nil, talkErrors.InvalidInput(fmt.Sprintf("invalid connector.query_timeout: %v", err))
	}

	c := &SQLConnector{timeout: timeout, readOnly: readOnly}

	switch cfg.Driver {
	case config.ConnectorDriverSQLite:
		if strings.TrimSpace(cfg.Path) == "" {
			return nil, talkErrors.InvalidInput("connector.path is required for the sqlite driver")
		}
		path := cfg.Path
		c.dialect = sqliteDialect{}
		c.open = func() (*sql.DB, error) {
			return sql.Open("sqlite", path)
		}

	case config.ConnectorDriverDatabricks:
		if cfg.Host == "" || cfg.HTTPPath == "" || cfg.AccessToken == "" {
			return nil, talkErrors.InvalidInput("connector.host, connector.http_path and connector.access_token are required for the databricks driver")
		}
		port := cfg.Port
		if port <= 0 {
			port = config.DefaultConnectorPort
		}
		c.dialect = databricksDialect{}
		c.open = func() (*sql.DB, error) {
			conn, err := dbsql.NewConnector(
				dbsql.WithServerHostname(cfg.Host),
				dbsql.WithPort(port),
				dbsql.WithHTTPPath(cfg.HTTPPath),
				dbsql.WithAccessToken(cfg.AccessToken),
			)
			if err != nil {
				return nil, err
			}
			return sql.OpenDB(conn), nil
		}

	default:
		return nil, talkErrors.InvalidInput(fmt.Sprintf("unknown connector driver %q", cfg.Driver))
	}

	return c, nil
}

func (c *SQLConnector) Dialect() Dialect {
	return c.dialect
}

// Describe returns the table's column listing as the driver reports it.
func (c *SQLConnector) Describe(ctx context.Context, t Target) (*dataset.Table, error) {
	if err := checkTarget(c.dialect, t); err != nil {
		return nil, err
	}
	return c.run(ctx, c.dialect.DescribeStatement(t))
}

// Select runs "SELECT selectPart FROM <table> additionalQuery". Both fragments
// are model-generated and are concatenated verbatim. The statement text is
// returned alongside the result for logging and display.
func (c *SQLConnector) Select(ctx context.Context, t Target, selectPart, additionalQuery string) (*dataset.Table, string, error) {
	if err := checkTarget(c.dialect, t); err != nil {
		return nil, "", err
	}

	statement := BuildSelect(c.dialect, t, selectPart, additionalQuery)
	if c.readOnly {
		if err := CheckReadOnly(statement); err != nil {
			return nil, statement, err
		}
	}

	table, err := c.run(ctx, statement)
	return table, statement, err
}

// BuildSelect concatenates the fragments into one statement.
func BuildSelect(d Dialect, t Target, selectPart, additionalQuery string) string {
	statement := fmt.Sprintf("SELECT %s FROM %s", selectPart, d.QualifiedName(t))
	if strings.TrimSpace(additionalQuery) != "" {
		statement += " " + additionalQuery
	}
	return statement
}

func (c *SQLConnector) run(ctx context.Context, statement string) (*dataset.Table, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	db, err := c.open()
	if err != nil {
		return nil, fmt.Errorf("open %s connection: %w", c.dialect.Name(), err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			slog.Warn("Failed to close database connection", "driver", c.dialect.Name(), "error", cerr)
		}
	}()

	rows, err := db.QueryContext(ctx, statement)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	table, err := scanTable(rows)
	if err != nil {
		return nil, err
	}

	slog.Info("Query executed",
		"driver", c.dialect.Name(),
		"rows", table.Len(),
		"columns", len(table.Columns),
		"duration", time.Since(start),
		"trace_id", logger.GetTraceID(ctx),
	)
	return table, nil
}

func scanTable(rows *sql.Rows) (*dataset.Table, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("read column types: %w", err)
	}

	table := &dataset.Table{Columns: make([]dataset.Column, len(types))}
	for i, ct := range types {
		table.Columns[i] = dataset.Column{Name: ct.Name(), DatabaseType: ct.DatabaseTypeName()}
	}

	for rows.Next() {
		values := make([]any, len(types))
		ptrs := make([]any, len(types))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		row := make([]any, len(values))
		for i, v := range values {
			row[i] = dataset.Normalize(v)
		}
		table.Rows = append(table.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	table.InferKinds()
	return table, nil
}
