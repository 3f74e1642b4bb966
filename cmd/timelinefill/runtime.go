package main

import (
	"context"
	"fmt"

	"github.com/hydrogen-go/timelinefill/internal/config"
	"github.com/hydrogen-go/timelinefill/internal/ops"
	"github.com/hydrogen-go/timelinefill/internal/store/sqlite"
	"github.com/hydrogen-go/timelinefill/internal/timeline"
)

// runtimeFlags is embedded by every subcommand that opens a store and
// runs the gap-filling engine against it.
type runtimeFlags struct {
	Config string    `long:"config" description:"Path to a timelinefill config file (yaml/json/toml); store/log settings fall back to its values"`
	Store  string    `long:"store" description:"Path to the sqlite timeline store (overrides config store.dsn)"`
	Log    logConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`
}

// resolved is what runtimeFlags produces after reconciling CLI flags
// against an optional config file.
type resolved struct {
	storeDSN        string
	storeOpts       sqlite.Options
	memberCacheSize int
	metricsEnabled  bool
	metricsListen   string
	metricsPath     string
}

// startMetricsServer starts a background Prometheus endpoint if a
// listen address was configured, returning nil otherwise. Callers
// should Stop the non-nil result before exiting.
func (r resolved) startMetricsServer() *ops.MetricsServer {
	if !r.metricsEnabled || r.metricsListen == "" {
		return nil
	}
	var srv = ops.NewMetricsServer(r.metricsListen, r.metricsPath)
	srv.Start()
	return srv
}

func (f runtimeFlags) resolve() (resolved, error) {
	var r = resolved{storeDSN: "timelinefill.db", metricsEnabled: true, storeOpts: sqlite.Options{ForeignKeys: true}}
	var log logConfig

	if f.Config != "" {
		var cfg, err = config.Load(f.Config)
		if err != nil {
			return resolved{}, fmt.Errorf("loading config %q: %w", f.Config, err)
		}
		r.storeDSN = cfg.Store.DSN
		r.storeOpts = sqlite.Options{BusyTimeoutMS: cfg.Store.BusyTimeoutMS, ForeignKeys: cfg.Store.ForeignKeys}
		r.memberCacheSize = cfg.Cache.MemberCacheSize
		r.metricsEnabled = cfg.Metrics.Enabled
		r.metricsListen = cfg.Metrics.Listen
		r.metricsPath = cfg.Metrics.Path
		log = logConfig{Level: cfg.Log.Level, Format: cfg.Log.Format}
	}

	if f.Store != "" {
		r.storeDSN = f.Store
	}
	if f.Log.Level != "" {
		log.Level = f.Log.Level
	}
	if f.Log.Format != "" {
		log.Format = f.Log.Format
	}
	initLog(log)

	return r, nil
}

// openEngine opens the sqlite store at the resolved DSN, begins a
// transaction against it, and builds a GapWriter wired to that
// transaction. Callers must Commit or Rollback the returned *sqlite.Txn,
// then Close the returned *sqlite.Store.
func openEngine(ctx context.Context, r resolved) (*sqlite.Store, *sqlite.Txn, *timeline.GapWriter, error) {
	var store, err = sqlite.OpenWithOptions(ctx, r.storeDSN, r.storeOpts)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening store: %w", err)
	}

	var txn, txErr = store.BeginTxn(ctx, sqlite.DefaultRelationWriter{})
	if txErr != nil {
		store.Close()
		return nil, nil, nil, txErr
	}

	var metrics timeline.Metrics
	if r.metricsEnabled {
		metrics = ops.PrometheusMetrics{}
	}

	var writer = &timeline.GapWriter{
		Txn:             txn.Transaction(),
		Log:             ops.NewLogrusLogger(nil),
		Metrics:         metrics,
		MemberCacheSize: r.memberCacheSize,
	}
	return store, txn, writer, nil
}
