package cli

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/openvital/vitalstore/internal/config"
	"github.com/openvital/vitalstore/internal/engine"
	"github.com/openvital/vitalstore/internal/record"
	"github.com/openvital/vitalstore/internal/store"
)

// env bundles the opened collaborators of one command invocation.
type env struct {
	cfg    config.Config
	store  *store.Store
	engine *engine.Engine
	log    *slog.Logger
}

// openEnv resolves configuration, configures logging, opens the
// database and applies every registered record type's tables.
func openEnv(ctx context.Context, opts *RootOptions) (*env, error) {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg := config.Default()
	if opts.Config != "" {
		var err error
		if cfg, err = config.Load(opts.Config); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load config", err)
		}
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}

	reg := record.NewRegistry()
	if cfg.Descriptors != "" {
		var err error
		if reg, err = record.NewRegistryFromFile(cfg.Descriptors); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load record descriptors", err)
		}
	}

	st, err := store.Open(cfg.Database, logger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	for _, d := range reg.All() {
		if err := st.ApplyTables(ctx, d.CreatePlans()); err != nil {
			st.Close()
			return nil, WrapExitError(ExitCommandError, "failed to apply record tables", err)
		}
	}

	eng := engine.New(st, reg,
		engine.WithLogger(logger),
		engine.WithPageSize(cfg.PageSize),
	)
	return &env{cfg: cfg, store: st, engine: eng, log: logger}, nil
}

func (e *env) close() {
	if err := e.store.Close(); err != nil {
		e.log.Error("error closing database", "error", err)
	}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// historicCutoff translates the configured cutoff window into the
// absolute boundary the engine expects. Zero days disables the cutoff.
func (e *env) historicCutoff(nowMillis int64) int64 {
	if e.cfg.HistoricCutoffDays <= 0 {
		return -1
	}
	return nowMillis - int64(e.cfg.HistoricCutoffDays)*24*60*60*1000
}
