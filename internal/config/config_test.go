package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"teleforward/internal/destination"
)

const sampleYAML = `
telegram:
  token: "123:abc"
  poll_timeout: "15s"
logging:
  level: debug
  console: true
dispatch:
  max_in_flight: 3
  queue_size: 100
  webhook_retry_max: 5
  chat_retry_max: 2
  backoff_base: "250ms"
storage:
  driver: sqlite
  path: ./test.db
retention:
  enabled: true
  max_age: "168h"
destinations:
  - id: hook
    kind: webhook
    webhook_url: "https://discord.com/api/webhooks/1/secret"
  - id: mirror
    name: Mirror Chat
    kind: chat
    chat_id: -1001234567890
routes:
  - name: news
    sources: [-1009]
    destinations: [hook, mirror]
    transform:
      blacklist: ["spam"]
      prefix: "[fwd]"
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	m := NewManager(writeConfig(t, "config.yaml", sampleYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get did not return the committed config")
	}

	dests := cfg.BuildDestinations()
	if len(dests) != 2 {
		t.Fatalf("destinations = %d, want 2", len(dests))
	}
	if dests[0].Name != "hook" {
		t.Fatalf("name fallback = %q, want id", dests[0].Name)
	}
	if !dests[1].Active {
		t.Fatal("omitted active should default to true")
	}

	routes := cfg.BuildRoutes()
	if len(routes) != 1 || routes[0].Transform.Prefix != "[fwd]" {
		t.Fatalf("routes = %+v", routes)
	}

	dc, err := cfg.Dispatch.Build()
	if err != nil {
		t.Fatalf("dispatch build: %v", err)
	}
	if dc.MaxInFlight != 3 || dc.QueueSize != 100 || dc.MaxAttempts != 5 {
		t.Fatalf("dispatch config = %+v", dc)
	}
	if dc.BackoffBase != 250*time.Millisecond {
		t.Fatalf("backoff base = %v", dc.BackoffBase)
	}
	if dc.KindMaxAttempts[destination.KindChat] != 2 {
		t.Fatalf("chat attempts = %d", dc.KindMaxAttempts[destination.KindChat])
	}

	rc, err := cfg.Retention.Build()
	if err != nil {
		t.Fatalf("retention build: %v", err)
	}
	if !rc.Enabled || rc.MaxAge != 168*time.Hour {
		t.Fatalf("retention = %+v", rc)
	}
}

func TestLoadJSON(t *testing.T) {
	raw := `{
		"telegram": {"token": "123:abc"},
		"logging": {"level": "info", "console": true, "file": {"enabled": false, "path": ""}},
		"destinations": [{"id": "hook", "kind": "webhook", "webhook_url": "https://discord.com/api/webhooks/1/s"}],
		"routes": [{"sources": [-1], "destinations": ["hook"]}]
	}`
	m := NewManager(writeConfig(t, "config.json", raw))
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
}

func TestLoadRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			"unknown field",
			"telegram:\n  token: x\n  bogus: 1\ndestinations: []\nroutes: []\nlogging: {level: info, console: true, file: {enabled: false, path: \"\"}}",
			"bogus",
		},
		{
			"missing token",
			"telegram: {token: \"\"}\ndestinations: []\nroutes: []\nlogging: {level: info, console: true, file: {enabled: false, path: \"\"}}",
			"token",
		},
		{
			"bad duration",
			"telegram: {token: x, poll_timeout: soon}\ndestinations: []\nroutes: []\nlogging: {level: info, console: true, file: {enabled: false, path: \"\"}}",
			"poll_timeout",
		},
		{
			"duplicate destination",
			"telegram: {token: x}\nlogging: {level: info, console: true, file: {enabled: false, path: \"\"}}\ndestinations:\n  - {id: a, kind: chat, chat_id: 1}\n  - {id: a, kind: chat, chat_id: 2}\nroutes: []",
			"duplicate",
		},
		{
			"unknown route destination",
			"telegram: {token: x}\nlogging: {level: info, console: true, file: {enabled: false, path: \"\"}}\ndestinations: []\nroutes:\n  - {sources: [-1], destinations: [ghost]}",
			"ghost",
		},
		{
			"webhook off allowlist",
			"telegram: {token: x}\nlogging: {level: info, console: true, file: {enabled: false, path: \"\"}}\ndestinations:\n  - {id: a, kind: webhook, webhook_url: \"https://evil.example.com/api/webhooks/1/s\"}\nroutes: []",
			"webhook",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(writeConfig(t, "config.yaml", tt.yaml))
			_, err := m.Load()
			if err == nil {
				t.Fatal("load accepted a bad config")
			}
			if !strings.Contains(strings.ToLower(err.Error()), tt.want) {
				t.Fatalf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestReloadPublishesToSubscribers(t *testing.T) {
	path := writeConfig(t, "config.yaml", sampleYAML)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	// Same content: no publish.
	m.reload()
	select {
	case <-sub:
		t.Fatal("unchanged config was republished")
	default:
	}

	updated := strings.Replace(sampleYAML, "level: debug", "level: warn", 1)
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	m.reload()

	select {
	case cfg := <-sub:
		if cfg.Logging.Level != "warn" {
			t.Fatalf("published level = %q, want warn", cfg.Logging.Level)
		}
	case <-time.After(time.Second):
		t.Fatal("no config published after change")
	}
	if m.Get().Logging.Level != "warn" {
		t.Fatal("Get still returns the old config")
	}
}

func TestReloadKeepsOldConfigOnError(t *testing.T) {
	path := writeConfig(t, "config.yaml", sampleYAML)
	m := NewManager(path)
	old, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if err := os.WriteFile(path, []byte("telegram: {token: \"\"}"), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	m.reload()

	if m.Get() != old {
		t.Fatal("broken edit replaced the working config")
	}
}
