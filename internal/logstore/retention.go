package logstore

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"teleforward/pkg/logx"
)

// RetentionConfig controls periodic pruning of old outcome rows.
type RetentionConfig struct {
	Enabled  bool
	Schedule string        // cron expression; default "0 3 * * *"
	MaxAge   time.Duration // rows older than this are removed; default 30 days
}

// Retention prunes the outcome log on a cron schedule.
type Retention struct {
	store Store
	cfg   RetentionConfig
	log   logx.Logger
	cron  *cron.Cron
}

func NewRetention(store Store, cfg RetentionConfig, log logx.Logger) *Retention {
	if cfg.Schedule == "" {
		cfg.Schedule = "0 3 * * *"
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 30 * 24 * time.Hour
	}
	return &Retention{store: store, cfg: cfg, log: log}
}

func (r *Retention) Start() error {
	if !r.cfg.Enabled || r.store == nil {
		return nil
	}
	c := cron.New()
	_, err := c.AddFunc(r.cfg.Schedule, r.runOnce)
	if err != nil {
		return err
	}
	r.cron = c
	c.Start()
	r.log.Info("outcome log retention started",
		logx.String("schedule", r.cfg.Schedule),
		logx.Duration("max_age", r.cfg.MaxAge))
	return nil
}

func (r *Retention) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
	r.cron = nil
}

func (r *Retention) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-r.cfg.MaxAge)
	n, err := r.store.Prune(ctx, cutoff)
	if err != nil {
		r.log.Warn("outcome log prune failed", logx.Err(err))
		return
	}
	if n > 0 {
		r.log.Info("outcome log pruned", logx.Int64("rows", n), logx.Time("cutoff", cutoff))
	}
}
