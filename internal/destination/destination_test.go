package destination

import "testing"

func TestValidWebhookURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		url  string
		ok   bool
	}{
		{name: "discord.com", url: "https://discord.com/api/webhooks/123/tok-en", ok: true},
		{name: "discordapp.com", url: "https://discordapp.com/api/webhooks/123/tok", ok: true},
		{name: "canary", url: "https://canary.discord.com/api/webhooks/1/t", ok: true},
		{name: "ptb", url: "https://ptb.discord.com/api/webhooks/1/t", ok: true},
		{name: "http rejected", url: "http://discord.com/api/webhooks/123/tok", ok: false},
		{name: "foreign host", url: "https://example.com/api/webhooks/123/tok", ok: false},
		{name: "internal host", url: "https://169.254.169.254/api/webhooks/1/t", ok: false},
		{name: "wrong path", url: "https://discord.com/api/channels/123", ok: false},
		{name: "host casing", url: "https://DISCORD.com/api/webhooks/1/t", ok: true},
		{name: "empty", url: "", ok: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidWebhookURL(tt.url); got != tt.ok {
				t.Fatalf("ValidWebhookURL(%q) = %v, want %v", tt.url, got, tt.ok)
			}
		})
	}
}

func TestDestinationValidate(t *testing.T) {
	t.Parallel()

	ok := Destination{ID: "d1", Kind: KindWebhook, WebhookURL: "https://discord.com/api/webhooks/1/t", Active: true}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid webhook destination rejected: %v", err)
	}

	chat := Destination{ID: "d2", Kind: KindChat, ChatID: -100123, ThreadID: 7}
	if err := chat.Validate(); err != nil {
		t.Fatalf("valid chat destination rejected: %v", err)
	}

	if err := (Destination{Kind: KindChat, ChatID: 1}).Validate(); err == nil {
		t.Fatal("expected error for empty id")
	}
	if err := (Destination{ID: "x", Kind: KindChat}).Validate(); err == nil {
		t.Fatal("expected error for missing chat id")
	}
	if err := (Destination{ID: "x", Kind: Kind("smtp")}).Validate(); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestStaticStore(t *testing.T) {
	t.Parallel()
	s := NewStaticStore([]Destination{
		{ID: "a", Kind: KindChat, ChatID: 1, Active: true},
		{ID: "b", Kind: KindChat, ChatID: 2, Active: false},
	})

	if !s.Active("a") {
		t.Fatal("a should be active")
	}
	if s.Active("b") {
		t.Fatal("b should be inactive")
	}
	if s.Active("missing") {
		t.Fatal("missing should not be active")
	}

	// Apply replaces the whole set.
	s.Apply([]Destination{{ID: "b", Kind: KindChat, ChatID: 2, Active: true}})
	if s.Active("a") {
		t.Fatal("a should be gone after Apply")
	}
	if !s.Active("b") {
		t.Fatal("b should be active after Apply")
	}
}
