package sqlconn

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/harunnryd/tabletalk/internal/config"
	"github.com/harunnryd/tabletalk/internal/dataset"
	talkErrors "github.com/harunnryd/tabletalk/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shop.db")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`
CREATE TABLE orders (id INTEGER PRIMARY KEY, region TEXT NOT NULL, amount REAL, paid BOOLEAN);
INSERT INTO orders (region, amount, paid) VALUES
  ('EU', 10.5, 1), ('US', 20, 0), ('EU', 7.25, 1), ('APAC', NULL, 0),
  ('US', 3, 1), ('EU', 11, 1), ('US', 9.5, 0);
`)
	require.NoError(t, err)
	return path
}

func newSQLite(t *testing.T, readOnly bool) *SQLConnector {
	t.Helper()
	c, err := New(config.ConnectorConfig{Driver: config.ConnectorDriverSQLite, Path: seedDB(t)}, readOnly)
	require.NoError(t, err)
	return c
}

func TestSelect_ConcatenatesFragments(t *testing.T) {
	c := newSQLite(t, false)

	table, statement, err := c.Select(context.Background(), Target{Table: "orders"}, "*", "LIMIT 5")
	require.NoError(t, err)

	assert.Equal(t, `SELECT * FROM "main"."orders" LIMIT 5`, statement)
	assert.Equal(t, 5, table.Len())
	assert.Equal(t, []string{"id", "region", "amount", "paid"}, table.ColumnNames())
	assert.Equal(t, dataset.KindInt, table.Columns[0].Kind)
	assert.Equal(t, dataset.KindString, table.Columns[1].Kind)
}

func TestSelect_Aggregates(t *testing.T) {
	c := newSQLite(t, false)

	table, _, err := c.Select(context.Background(), Target{Schema: "main", Table: "orders"},
		`region, CAST(SUM(amount) AS FLOAT) AS total`, "GROUP BY region ORDER BY region")
	require.NoError(t, err)

	require.Equal(t, 3, table.Len())
	assert.Equal(t, "APAC", table.Rows[0][0])
	assert.Nil(t, table.Rows[0][1])
	assert.InDelta(t, 28.75, table.Rows[1][1], 0.001)
}

func TestSelect_PropagatesSQLErrors(t *testing.T) {
	c := newSQLite(t, false)

	_, _, err := c.Select(context.Background(), Target{Table: "orders"}, "no_such_column", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execute query")
}

func TestSelect_ReadOnlyGuard(t *testing.T) {
	c := newSQLite(t, true)

	_, _, err := c.Select(context.Background(), Target{Table: "orders"}, "*", "; DELETE FROM orders")
	require.Error(t, err)
	assert.ErrorIs(t, err, talkErrors.ErrQueryRejected)

	table, _, err := c.Select(context.Background(), Target{Table: "orders"}, "COUNT(*) AS n", "")
	require.NoError(t, err)
	assert.Equal(t, int64(7), table.Rows[0][0])
}

func TestSelect_WithoutGuardRunsAnything(t *testing.T) {
	c := newSQLite(t, false)

	_, _, err := c.Select(context.Background(), Target{Table: "orders"}, "*", "WHERE region = 'EU'")
	require.NoError(t, err)
}

func TestDescribe_ListsColumns(t *testing.T) {
	c := newSQLite(t, false)

	table, err := c.Describe(context.Background(), Target{Table: "orders"})
	require.NoError(t, err)

	require.Equal(t, 4, table.Len())
	assert.Contains(t, table.ColumnNames(), "name")
	assert.Contains(t, table.ColumnNames(), "type")
	assert.Equal(t, "region", table.Rows[1][1])
}

func TestIncompleteTarget(t *testing.T) {
	c := newSQLite(t, false)

	_, err := c.Describe(context.Background(), Target{})
	require.Error(t, err)
	assert.ErrorIs(t, err, talkErrors.ErrInvalidInput)
	assert.Contains(t, err.Error(), "missing table")

	err = checkTarget(databricksDialect{}, Target{Table: "orders"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing db, schema")
}

func TestNew_ValidatesDriverSettings(t *testing.T) {
	_, err := New(config.ConnectorConfig{Driver: config.ConnectorDriverSQLite}, false)
	assert.ErrorIs(t, err, talkErrors.ErrInvalidInput)

	_, err = New(config.ConnectorConfig{Driver: config.ConnectorDriverDatabricks, Host: "h"}, false)
	assert.ErrorIs(t, err, talkErrors.ErrInvalidInput)

	_, err = New(config.ConnectorConfig{Driver: "oracle"}, false)
	assert.ErrorIs(t, err, talkErrors.ErrInvalidInput)

	c, err := New(config.ConnectorConfig{
		Driver:      config.ConnectorDriverDatabricks,
		Host:        "adb-1.azuredatabricks.net",
		HTTPPath:    "/sql/1.0/warehouses/abc",
		AccessToken: "dapi",
	}, false)
	require.NoError(t, err)
	assert.Equal(t, "databricks", c.Dialect().Name())
}

func TestDialects(t *testing.T) {
	target := Target{DB: "hive", Schema: "sales", Table: "or`ders"}

	assert.Equal(t, "DESCRIBE TABLE `hive`.`sales`.`or``ders`", databricksDialect{}.DescribeStatement(target))
	assert.Equal(t, `PRAGMA "sales".table_info("or`+"`"+`ders")`, sqliteDialect{}.DescribeStatement(target))
	assert.Equal(t, "SELECT a, b FROM `hive`.`sales`.`or``ders`", BuildSelect(databricksDialect{}, target, "a, b", "  "))
}

func TestParseTarget(t *testing.T) {
	target, err := ParseTarget("hive.sales.orders")
	require.NoError(t, err)
	assert.Equal(t, Target{DB: "hive", Schema: "sales", Table: "orders"}, target)
	assert.Equal(t, "hive.sales.orders", target.String())

	target, err = ParseTarget("orders")
	require.NoError(t, err)
	assert.Equal(t, Target{Table: "orders"}, target)

	for _, bad := range []string{"", "a..b", "a.b.c.d"} {
		_, err := ParseTarget(bad)
		assert.Error(t, err, bad)
	}
}

func TestCheckReadOnly(t *testing.T) {
	assert.NoError(t, CheckReadOnly(`SELECT * FROM t WHERE updated_at > '2024-01-01';`))
	assert.Error(t, CheckReadOnly(`SELECT * FROM t; DROP TABLE t`))
	assert.Error(t, CheckReadOnly(`SELECT * FROM t WHERE x IN (DELETE FROM t)`))
}
