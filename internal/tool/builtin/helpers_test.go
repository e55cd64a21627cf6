package builtin

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/harunnryd/tabletalk/internal/artifact"
	"github.com/harunnryd/tabletalk/internal/chart"
	"github.com/harunnryd/tabletalk/internal/config"
	"github.com/harunnryd/tabletalk/internal/dataset"
	"github.com/harunnryd/tabletalk/internal/session"
	"github.com/harunnryd/tabletalk/internal/sqlconn"
	toolcore "github.com/harunnryd/tabletalk/internal/tool"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

type recordingPresenter struct {
	texts    []string
	tables   []*dataset.Table
	charts   []*chart.Spec
	errors   []string
	chartErr error
}

func (p *recordingPresenter) ShowText(_ context.Context, text string) error {
	p.texts = append(p.texts, text)
	return nil
}

func (p *recordingPresenter) ShowTable(_ context.Context, t *dataset.Table) error {
	p.tables = append(p.tables, t)
	return nil
}

func (p *recordingPresenter) ShowChart(_ context.Context, spec *chart.Spec, _ *dataset.Table) error {
	if p.chartErr != nil {
		return p.chartErr
	}
	p.charts = append(p.charts, spec)
	return nil
}

func (p *recordingPresenter) ShowError(_ context.Context, text string) error {
	p.errors = append(p.errors, text)
	return nil
}

type fixture struct {
	connector *sqlconn.SQLConnector
	store     *artifact.Store
	presenter *recordingPresenter
	session   *session.Session
	dispatch  *toolcore.Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "shop.db")

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`
CREATE TABLE orders (id INTEGER PRIMARY KEY, region TEXT, amount REAL);
INSERT INTO orders (region, amount) VALUES
  ('EU', 10.5), ('US', 20), ('EU', 7.25), ('APAC', 3), ('US', 9.5), ('EU', 11), ('APAC', 4);
`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	connector, err := sqlconn.New(config.ConnectorConfig{Driver: config.ConnectorDriverSQLite, Path: dbPath}, false)
	require.NoError(t, err)

	store := artifact.NewStoreWithLock(filepath.Join(dir, "artifacts"), artifact.LockConfig{
		Timeout: time.Second, Retry: 10 * time.Millisecond, MaxRetry: 100,
	})

	tools, err := toolcore.InstantiateBuiltins(toolcore.BuiltinOptions{
		Connector: connector,
		Artifacts: store,
	}, config.DefaultTools...)
	require.NoError(t, err)
	registry, err := toolcore.NewRegistry(tools...)
	require.NoError(t, err)

	presenter := &recordingPresenter{}
	return &fixture{
		connector: connector,
		store:     store,
		presenter: presenter,
		session:   session.New(sqlconn.Target{Table: "orders"}, presenter),
		dispatch:  toolcore.NewDispatcher(registry),
	}
}

func (f *fixture) invoke(t *testing.T, name, args string) string {
	t.Helper()
	reply, err := f.dispatch.Invoke(context.Background(), f.session, name, args)
	require.NoError(t, err)
	return reply
}

type failingStore struct{}

func (failingStore) Write(context.Context, *dataset.Table) (string, error) {
	return "", errors.New("disk full")
}

func (failingStore) Read(string) (*dataset.Table, error) {
	return nil, errors.New("disk full")
}
