// Package app wires the relay daemon together: config, logging, the
// Telegram ingest adapter, the dispatch engine and the outcome log.
package app

import (
	"context"
	"sync"
	"time"

	"teleforward/internal/config"
	"teleforward/internal/destination"
	"teleforward/internal/dispatch"
	"teleforward/internal/logstore"
	"teleforward/internal/relay"
	"teleforward/internal/sender"
	"teleforward/internal/transport/telegram"
	"teleforward/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager

	log  logx.Logger
	logs *logx.Service

	adapter   *telegram.Adapter
	dests     *destination.StaticStore
	outcomes  logstore.Store
	retention *logstore.Retention
	engine    *dispatch.Engine
	router    *relay.Router
	relay     *relay.Relay

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(logCfg(cfg))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
		Buffer:      cfg.Telegram.Buffer,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	storeCfg, err := cfg.Storage.Build()
	if err != nil {
		return nil, err
	}
	outcomes, err := logstore.Open(storeCfg, log.With(logx.String("comp", "logstore")))
	if err != nil {
		return nil, err
	}

	retCfg, err := cfg.Retention.Build()
	if err != nil {
		return nil, err
	}
	retention := logstore.NewRetention(outcomes, retCfg, log.With(logx.String("comp", "retention")))

	dispCfg, err := cfg.Dispatch.Build()
	if err != nil {
		return nil, err
	}
	dests := destination.NewStaticStore(cfg.BuildDestinations())
	senders := map[destination.Kind]sender.Sender{
		destination.KindWebhook: sender.NewWebhook(dispCfg.AttemptTimeout),
		destination.KindChat:    sender.NewChat(adapter.Bot()),
	}
	engine := dispatch.New(dispCfg, senders, dests, outcomes, log.With(logx.String("comp", "dispatch")))

	router := relay.NewRouter(cfg.BuildRoutes(), dests)
	rl := relay.New(router, engine, log.With(logx.String("comp", "relay")))

	return &App{
		cfgPath:   cfgPath,
		cfgm:      cfgm,
		log:       log,
		logs:      logs,
		adapter:   adapter,
		dests:     dests,
		outcomes:  outcomes,
		retention: retention,
		engine:    engine,
		router:    router,
		relay:     rl,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.engine.Start()
	a.relay.Start(runCtx, a.adapter.Events())
	if err := a.adapter.Start(runCtx); err != nil {
		cancel()
		return err
	}
	if err := a.retention.Start(); err != nil {
		a.log.Warn("retention disabled", logx.Err(err))
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(runCtx)
	}()

	sub := a.cfgm.Subscribe(4)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-runCtx.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyReload(cfg)
			}
		}
	}()

	// Delivery event stream, surfaced at debug level for operators tailing
	// the log.
	events, unsub := a.engine.Subscribe(64)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer unsub()
		for {
			select {
			case <-runCtx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("delivery event",
					logx.String("type", string(ev.Type)),
					logx.String("event", ev.SourceEventID),
					logx.String("destination", ev.DestinationID))
			}
		}
	}()

	// One-shot reachability sweep so obvious misconfigurations surface at
	// startup instead of on the first delivery.
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.probeDestinations(runCtx)
	}()

	a.log.Info("relay started", logx.String("config", a.cfgPath))
	return nil
}

func (a *App) probeDestinations(ctx context.Context) {
	cfg := a.cfgm.Get()
	if cfg == nil {
		return
	}
	for _, d := range cfg.BuildDestinations() {
		if ctx.Err() != nil {
			return
		}
		if !d.Active {
			continue
		}
		pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		res := a.engine.Probe(pctx, d)
		cancel()
		if res.Status == sender.StatusDelivered {
			a.log.Debug("destination reachable", logx.String("destination", d.ID))
			continue
		}
		a.log.Warn("destination probe failed",
			logx.String("destination", d.ID),
			logx.String("class", string(res.Class)),
			logx.Err(res.Err))
	}
}

// applyReload pushes a validated config into the running services. Telegram
// credentials and storage settings are wired at construction and need a
// restart; everything routable is hot.
func (a *App) applyReload(cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.logs.Apply(logCfg(cfg))
	a.dests.Apply(cfg.BuildDestinations())
	a.router.Apply(cfg.BuildRoutes())
	a.log.Info("config applied",
		logx.Int("destinations", len(cfg.Destinations)),
		logx.Int("routes", len(cfg.Routes)))
}

// Stop shuts down in dependency order: ingestion first so no new events
// arrive, then the engine with a drain window, then storage.
func (a *App) Stop(ctx context.Context) error {
	if err := a.adapter.Stop(ctx); err != nil {
		a.log.Warn("adapter stop", logx.Err(err))
	}
	a.relay.Stop()
	a.engine.Stop(ctx)
	a.retention.Stop()

	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()

	if err := a.outcomes.Close(); err != nil {
		a.log.Warn("outcome log close", logx.Err(err))
	}
	a.log.Info("relay stopped")
	_ = a.logs.Close()
	return nil
}

func logCfg(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}
