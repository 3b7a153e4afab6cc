package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"teleforward/internal/destination"
	"teleforward/internal/dispatch"
	"teleforward/internal/logstore"
	"teleforward/internal/relay"
)

// Config is the full on-disk configuration. Accepted as JSON or YAML;
// unknown keys are rejected so typos surface at load time instead of
// silently doing nothing.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Telegram     TelegramConfig      `json:"telegram"`
	Logging      LoggingConfig       `json:"logging"`
	Dispatch     DispatchConfig      `json:"dispatch,omitempty"`
	Storage      StorageConfig       `json:"storage,omitempty"`
	Retention    RetentionConfig     `json:"retention,omitempty"`
	Destinations []DestinationConfig `json:"destinations"`
	Routes       []RouteConfig       `json:"routes"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is the long-poll window (default "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// Buffer is the ingest channel capacity (default 256).
	Buffer int `json:"buffer,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// DispatchConfig tunes the delivery engine. Zero values fall back to the
// engine defaults.
type DispatchConfig struct {
	MaxInFlight     int    `json:"max_in_flight,omitempty"`
	QueueSize       int    `json:"queue_size,omitempty"`
	WebhookRetryMax int    `json:"webhook_retry_max,omitempty"`
	ChatRetryMax    int    `json:"chat_retry_max,omitempty"`
	AttemptTimeout  string `json:"attempt_timeout,omitempty"`
	BackoffBase     string `json:"backoff_base,omitempty"`
	BackoffMax      string `json:"backoff_max,omitempty"`
	RatePerSec      int    `json:"rate_per_sec,omitempty"`
}

// StorageConfig controls the outcome log.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./teleforward.db" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// RetentionConfig controls scheduled pruning of old outcome rows.
type RetentionConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"` // cron expression, default "0 3 * * *"
	MaxAge   string `json:"max_age,omitempty"`  // default "720h"
}

type DestinationConfig struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	Kind       string `json:"kind"`
	WebhookURL string `json:"webhook_url,omitempty"`
	ChatID     int64  `json:"chat_id,omitempty"`
	ThreadID   int    `json:"thread_id,omitempty"`
	// Active is a pointer so an omitted field means enabled.
	Active *bool `json:"active,omitempty"`
}

type RouteConfig struct {
	Name         string               `json:"name,omitempty"`
	Sources      []int64              `json:"sources"`
	Destinations []string             `json:"destinations"`
	Transform    relay.TransformRules `json:"transform,omitempty"`
}

// Validate checks the whole document; it is run before a reload is committed
// so a bad edit never replaces a working config.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := c.Dispatch.Build(); err != nil {
		return err
	}
	if _, err := c.Storage.Build(); err != nil {
		return err
	}
	if _, err := c.Retention.Build(); err != nil {
		return err
	}

	ids := map[string]bool{}
	for i, dc := range c.Destinations {
		d, err := dc.Destination()
		if err != nil {
			return fmt.Errorf("destinations[%d]: %w", i, err)
		}
		if ids[d.ID] {
			return fmt.Errorf("destinations[%d]: duplicate id %q", i, d.ID)
		}
		ids[d.ID] = true
	}
	for i, rc := range c.Routes {
		if len(rc.Sources) == 0 {
			return fmt.Errorf("routes[%d]: at least one source chat is required", i)
		}
		if len(rc.Destinations) == 0 {
			return fmt.Errorf("routes[%d]: at least one destination is required", i)
		}
		for _, id := range rc.Destinations {
			if !ids[id] {
				return fmt.Errorf("routes[%d]: unknown destination %q", i, id)
			}
		}
	}
	return nil
}

func (dc DestinationConfig) Destination() (destination.Destination, error) {
	d := destination.Destination{
		ID:         strings.TrimSpace(dc.ID),
		Name:       dc.Name,
		Kind:       destination.Kind(dc.Kind),
		WebhookURL: dc.WebhookURL,
		ChatID:     dc.ChatID,
		ThreadID:   dc.ThreadID,
		Active:     dc.Active == nil || *dc.Active,
	}
	if d.ID == "" {
		return d, errors.New("id is required")
	}
	if d.Name == "" {
		d.Name = d.ID
	}
	if err := d.Validate(); err != nil {
		return d, err
	}
	return d, nil
}

// BuildDestinations converts the configured set; call Validate first.
func (c *Config) BuildDestinations() []destination.Destination {
	out := make([]destination.Destination, 0, len(c.Destinations))
	for _, dc := range c.Destinations {
		d, err := dc.Destination()
		if err != nil {
			continue
		}
		out = append(out, d)
	}
	return out
}

func (c *Config) BuildRoutes() []relay.Route {
	out := make([]relay.Route, 0, len(c.Routes))
	for _, rc := range c.Routes {
		out = append(out, relay.Route{
			Name:         rc.Name,
			Sources:      rc.Sources,
			Destinations: rc.Destinations,
			Transform:    rc.Transform,
		})
	}
	return out
}

func (dc DispatchConfig) Build() (dispatch.Config, error) {
	attemptTimeout, err := ParseDurationField("dispatch.attempt_timeout", dc.AttemptTimeout)
	if err != nil {
		return dispatch.Config{}, err
	}
	backoffBase, err := ParseDurationField("dispatch.backoff_base", dc.BackoffBase)
	if err != nil {
		return dispatch.Config{}, err
	}
	backoffMax, err := ParseDurationField("dispatch.backoff_max", dc.BackoffMax)
	if err != nil {
		return dispatch.Config{}, err
	}
	cfg := dispatch.Config{
		MaxInFlight:    dc.MaxInFlight,
		QueueSize:      dc.QueueSize,
		MaxAttempts:    dc.WebhookRetryMax,
		AttemptTimeout: attemptTimeout,
		BackoffBase:    backoffBase,
		BackoffMax:     backoffMax,
		RatePerSec:     dc.RatePerSec,
	}
	chatRetryMax := dc.ChatRetryMax
	if chatRetryMax <= 0 {
		chatRetryMax = 4
	}
	cfg.KindMaxAttempts = map[destination.Kind]int{destination.KindChat: chatRetryMax}
	return cfg, nil
}

func (sc StorageConfig) Build() (logstore.Config, error) {
	busy, err := ParseDurationField("storage.busy_timeout", sc.BusyTimeout)
	if err != nil {
		return logstore.Config{}, err
	}
	path := sc.Path
	if path == "" && (sc.Driver == "" || sc.Driver == "sqlite" || sc.Driver == "sqlite3") {
		path = "./teleforward.db"
	}
	return logstore.Config{Driver: sc.Driver, Path: path, BusyTimeout: busy}, nil
}

func (rc RetentionConfig) Build() (logstore.RetentionConfig, error) {
	maxAge, err := ParseDurationOrDefault("retention.max_age", rc.MaxAge, 30*24*time.Hour)
	if err != nil {
		return logstore.RetentionConfig{}, err
	}
	return logstore.RetentionConfig{
		Enabled:  rc.Enabled,
		Schedule: rc.Schedule,
		MaxAge:   maxAge,
	}, nil
}
