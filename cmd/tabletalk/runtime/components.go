package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/harunnryd/tabletalk/internal/artifact"
	"github.com/harunnryd/tabletalk/internal/config"
	"github.com/harunnryd/tabletalk/internal/model"
	"github.com/harunnryd/tabletalk/internal/orchestrator"
	"github.com/harunnryd/tabletalk/internal/orchestrator/command"
	"github.com/harunnryd/tabletalk/internal/present"
	"github.com/harunnryd/tabletalk/internal/session"
	"github.com/harunnryd/tabletalk/internal/sqlconn"
	"github.com/harunnryd/tabletalk/internal/tool"
	_ "github.com/harunnryd/tabletalk/internal/tool/builtin"
)

const chartsDirName = "charts"

// Options tune what NewRuntimeComponents wires.
type Options struct {
	Presenter present.Presenter
	Gateway   model.Gateway
	SkipLoop  bool
}

type RuntimeComponents struct {
	Ctx    context.Context
	Cancel context.CancelFunc

	Config *config.Config

	Connector  *sqlconn.SQLConnector
	Artifacts  *artifact.Store
	Registry   *tool.Registry
	Dispatcher *tool.Dispatcher
	Presenter  present.Presenter
	Session    *session.Session

	Gateway  model.Gateway
	Loop     *orchestrator.Loop
	Commands command.Handler
}

func NewRuntimeComponents(ctx context.Context, cfg *config.Config, opts Options) (*RuntimeComponents, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)

	components := &RuntimeComponents{
		Ctx:    ctx,
		Cancel: cancel,
		Config: cfg,
	}

	connector, err := sqlconn.New(cfg.Connector, cfg.Tools.Query.ReadOnlyGuard)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("init connector: %w", err)
	}
	components.Connector = connector
	if !cfg.Tools.Query.ReadOnlyGuard {
		slog.Warn("Query tool runs model-written SQL fragments unchecked; set tools.query.read_only_guard to reject writes")
	}

	store, err := artifact.NewStore(cfg.Artifacts)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("init artifact store: %w", err)
	}
	components.Artifacts = store

	weatherTimeout, err := cfg.Tools.Weather.TimeoutDuration()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("parse tools.weather.timeout: %w", err)
	}
	tools, err := tool.InstantiateBuiltins(tool.BuiltinOptions{
		Connector:      connector,
		Artifacts:      store,
		WeatherMode:    cfg.Tools.Weather.Mode,
		WeatherBaseURL: cfg.Tools.Weather.BaseURL,
		WeatherTimeout: weatherTimeout,
	}, cfg.Tools.Enabled...)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("init tools: %w", err)
	}
	registry, err := tool.NewRegistry(tools...)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("init tool registry: %w", err)
	}
	components.Registry = registry
	components.Dispatcher = tool.NewDispatcher(registry)
	slog.Info("Tool registry initialized", "tools", registry.Names())

	presenter := opts.Presenter
	if presenter == nil {
		presenter = present.NewTerminal(os.Stdout, filepath.Join(cfg.Artifacts.Dir, chartsDirName), present.DefaultMaxRows)
	}
	components.Presenter = presenter

	target := sqlconn.Target{DB: cfg.Table.DB, Schema: cfg.Table.Schema, Table: cfg.Table.Table}
	if missing := target.Missing(connector.Dialect().Required()...); len(missing) > 0 {
		slog.Warn("Table target is incomplete; set it with /use or the table.* options", "missing", missing)
	}
	components.Session = session.New(target, presenter)

	if opts.SkipLoop {
		slog.Info("Runtime components initialized", "driver", cfg.Connector.Driver, "session", components.Session.ID)
		return components, nil
	}

	gateway := opts.Gateway
	if gateway == nil {
		router, err := model.NewModelRouter(cfg.Models)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("init model router: %w", err)
		}
		gateway = router
	}
	components.Gateway = gateway

	loop, err := orchestrator.NewLoop(gateway, components.Dispatcher, cfg.Orchestrator, cfg.Models.Default)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("init orchestrator: %w", err)
	}
	components.Loop = loop
	components.Commands = command.NewHandler(loop, connector.Dialect().Required()...)

	slog.Info("Runtime components initialized", "driver", cfg.Connector.Driver, "model", cfg.Models.Default, "session", components.Session.ID)
	return components, nil
}

func (r *RuntimeComponents) Stop() {
	slog.Info("Stopping runtime components...")
	r.Cancel()
}
