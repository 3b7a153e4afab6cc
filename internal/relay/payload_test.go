package relay

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"teleforward/internal/transport"
)

func sampleEvent() transport.SourceEvent {
	return transport.SourceEvent{
		ID:        "-1009:10",
		ChatID:    -1009,
		ChatTitle: "News",
		Sender:    "Ada",
		Text:      "original",
		Link:      "https://t.me/news/10",
		At:        time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRenderWebhookBody(t *testing.T) {
	p := RenderPayload(sampleEvent(), "breaking story")

	var body struct {
		Username string `json:"username"`
		Embeds   []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			URL         string `json:"url"`
			Color       int    `json:"color"`
			Timestamp   string `json:"timestamp"`
			Author      *struct {
				Name string `json:"name"`
			} `json:"author"`
		} `json:"embeds"`
		AllowedMentions struct {
			Parse []string `json:"parse"`
		} `json:"allowed_mentions"`
	}
	if err := json.Unmarshal(p.WebhookBody, &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if len(body.Embeds) != 1 {
		t.Fatalf("embeds = %d, want 1", len(body.Embeds))
	}
	e := body.Embeds[0]
	if e.Title != "News" || e.Description != "breaking story" || e.URL != "https://t.me/news/10" {
		t.Fatalf("unexpected embed: %+v", e)
	}
	if e.Author == nil || e.Author.Name != "Ada" {
		t.Fatalf("author = %+v, want Ada", e.Author)
	}
	if e.Timestamp != "2026-08-01T12:00:00Z" {
		t.Fatalf("timestamp = %q", e.Timestamp)
	}
	if body.AllowedMentions.Parse == nil || len(body.AllowedMentions.Parse) != 0 {
		t.Fatalf("allowed_mentions.parse = %v, want empty list", body.AllowedMentions.Parse)
	}
}

func TestRenderWebhookNeutralizesMassMentions(t *testing.T) {
	p := RenderPayload(sampleEvent(), "hey @everyone and @here")
	if strings.Contains(string(p.WebhookBody), "@everyone") || strings.Contains(string(p.WebhookBody), "@here") {
		t.Fatalf("mass mention survived: %s", p.WebhookBody)
	}
}

func TestRenderWebhookSuppressesUnfurls(t *testing.T) {
	p := RenderPayload(sampleEvent(), "see https://example.com/story for more")

	var body struct {
		Embeds []struct {
			Description string `json:"description"`
		} `json:"embeds"`
	}
	if err := json.Unmarshal(p.WebhookBody, &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if got := body.Embeds[0].Description; got != "see <https://example.com/story> for more" {
		t.Fatalf("description = %q", got)
	}
}

func TestRenderWebhookTruncates(t *testing.T) {
	long := strings.Repeat("x", webhookDescLimit+100)
	p := RenderPayload(sampleEvent(), long)

	var body struct {
		Embeds []struct {
			Description string `json:"description"`
		} `json:"embeds"`
	}
	if err := json.Unmarshal(p.WebhookBody, &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	desc := body.Embeds[0].Description
	if len([]rune(desc)) != webhookDescLimit {
		t.Fatalf("description length = %d, want %d", len([]rune(desc)), webhookDescLimit)
	}
	if !strings.HasSuffix(desc, "...") {
		t.Fatal("truncated description lacks ellipsis")
	}
}

func TestRenderChatText(t *testing.T) {
	p := RenderPayload(sampleEvent(), "breaking story")
	want := "[News] Ada\nbreaking story\nhttps://t.me/news/10"
	if p.ChatText != want {
		t.Fatalf("chat text = %q, want %q", p.ChatText, want)
	}

	bare := transport.SourceEvent{ID: "1:1", Text: "x"}
	if got := RenderPayload(bare, "just text").ChatText; got != "just text" {
		t.Fatalf("bare chat text = %q", got)
	}
}

func TestColorForIsStable(t *testing.T) {
	a, b := colorFor(-1009), colorFor(-1009)
	if a != b {
		t.Fatalf("color not stable: %d vs %d", a, b)
	}
	if a < 0 || a > 0xFFFFFF {
		t.Fatalf("color %d out of 24-bit range", a)
	}
	if colorFor(-1009) == colorFor(-1010) {
		t.Fatal("adjacent chats collided; hash looks degenerate")
	}
}
