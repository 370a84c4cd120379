package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"market-sync/internal/config"
	"market-sync/internal/notify/dingtalk"
	"market-sync/internal/observe"
	"market-sync/internal/schema"
	"market-sync/internal/source"
	"market-sync/internal/store"
	"market-sync/internal/syncer"
	"market-sync/internal/upsert"
)

// App is the wired engine shared by every command.
type App struct {
	Cfg     *config.Config
	Log     *zap.Logger
	Store   *store.Store
	Runner  *syncer.Runner
	Metrics *prometheus.Registry
}

func loadConfig(opts *RootOptions) (*config.Config, error) {
	if opts.ConfigPath == "" {
		return config.FromEnv()
	}
	return config.Load(opts.ConfigPath)
}

func NewApp(ctx context.Context, opts *RootOptions) (*App, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	return newAppFromConfig(ctx, cfg, opts)
}

func newAppFromConfig(ctx context.Context, cfg *config.Config, opts *RootOptions) (*App, error) {
	level := cfg.Log.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	file := cfg.Log.File
	if opts.LogFile != "" {
		file = opts.LogFile
	}
	log, err := observe.NewLogger(level, file)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, store.Options{
		Driver: cfg.Store.Driver,
		Path:   cfg.Store.Sqlite.Path,
		DSN:    cfg.Store.Postgres.DSN,
	})
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	policy, err := upsert.ParsePolicy(cfg.Sync.UpsertPolicy)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	sinks := []observe.Sink{observe.NewZapSink(log)}
	storeSink := observe.NewStoreSink(st, log)
	storeSink.Verbose = cfg.Sync.VerboseEvents
	sinks = append(sinks, storeSink)
	if cfg.Metrics.Enabled {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		prom, err := observe.NewPromSink(reg)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		sinks = append(sinks, prom)
	}

	driver := syncer.NewDriver(
		schema.NewManager(st, log),
		upsert.NewEngine(st, policy),
		st,
		observe.Multi(sinks...),
		log,
	)

	ropts := buildSources(cfg, log)
	ropts.MaxWalk = cfg.Sync.MaxWalk
	if dt := cfg.Notify.Dingtalk; dt.Webhook != "" {
		ropts.Notifier = dingtalk.NewClient(dingtalk.Options{
			Webhook:      dt.Webhook,
			Secret:       dt.Secret,
			Timeout:      time.Duration(dt.TimeoutMs) * time.Millisecond,
			OnlyProblems: dt.OnlyProblems,
		})
	}

	return &App{
		Cfg:     cfg,
		Log:     log,
		Store:   st,
		Runner:  syncer.NewRunner(driver, st, ropts, log),
		Metrics: reg,
	}, nil
}

func buildSources(cfg *config.Config, log *zap.Logger) syncer.RunnerOptions {
	h := cfg.Sources.HTTP
	client := source.NewClient(source.ClientOptions{
		Timeout:    time.Duration(h.TimeoutMs) * time.Millisecond,
		MaxRetries: uint64(max(h.MaxRetries, 0)),
		UserAgent:  h.UserAgent,
		Throttle:   source.NewThrottle(h.PerMinute, h.Burst),
	}, log)

	mirrors := func(name string, urls []string) source.Fetcher {
		fs := make([]source.Fetcher, 0, len(urls))
		for _, u := range urls {
			fs = append(fs, &source.URLFetcher{Name: name, Template: u, Client: client})
		}
		if len(fs) == 1 {
			return fs[0]
		}
		return source.Fallback(fs...)
	}

	var out syncer.RunnerOptions
	if t := cfg.Sources.TWSE; t.Enabled {
		if len(t.PriceURLs) > 0 {
			out.Price = &source.Adapter{Name: "twse_price", Fetcher: mirrors("twse_price", t.PriceURLs), Parser: source.PriceTable()}
		}
		if len(t.FlowURLs) > 0 {
			out.Flow = &source.Adapter{Name: "twse_flow", Fetcher: mirrors("twse_flow", t.FlowURLs), Parser: source.FlowTable()}
		}
	}
	if t := cfg.Sources.Treasury; t.Enabled {
		out.Sources = append(out.Sources, source.Adapter{
			Name:    "treasury",
			Fetcher: mirrors("treasury", t.URLs),
			Parser:  &source.YieldCurve{Series: t.Series},
		})
	}
	for _, hs := range cfg.Sources.HTML {
		name := "html_" + hs.Series
		out.Sources = append(out.Sources, source.Adapter{
			Name:    name,
			Fetcher: mirrors(name, hs.URLs),
			Parser: &source.HTMLTable{
				Series:     hs.Series,
				Class:      hs.Class,
				Columns:    hs.Columns,
				DateLayout: hs.DateLayout,
			},
		})
	}
	return out
}

func (a *App) Close() {
	if err := a.Store.Close(); err != nil {
		a.Log.Warn("store close", zap.Error(err))
	}
	_ = a.Log.Sync()
}
