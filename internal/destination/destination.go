package destination

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Kind is a closed set. New destination kinds are added here as new
// constants, never registered at runtime.
type Kind string

const (
	// KindWebhook posts payloads to a Discord-compatible webhook URL.
	KindWebhook Kind = "webhook"
	// KindChat sends payloads to a Telegram chat (optionally a forum topic).
	KindChat Kind = "chat"
)

var (
	ErrUnknownKind    = errors.New("unknown destination kind")
	ErrInvalidAddress = errors.New("invalid destination address")
)

// webhookHosts is the allow-list of webhook hosts. Anything else is rejected
// up front so a misconfigured (or hostile) URL never reaches the HTTP client.
var webhookHosts = map[string]bool{
	"discord.com":        true,
	"discordapp.com":     true,
	"canary.discord.com": true,
	"ptb.discord.com":    true,
}

// Destination is a configured delivery target. The dispatch engine treats it
// as read-only; lifecycle (create/edit/deactivate) belongs to the
// configuration layer.
type Destination struct {
	// ID is unique and immutable once created.
	ID   string
	Name string
	Kind Kind

	// WebhookURL is set for KindWebhook. It embeds a credential token and
	// must never be logged; see sender.RedactWebhookURL.
	WebhookURL string

	// ChatID/ThreadID are set for KindChat. ThreadID 0 means no forum topic.
	ChatID   int64
	ThreadID int

	Active bool
}

// Validate checks identity and the kind-specific address shape.
func (d Destination) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return errors.New("destination id is empty")
	}
	switch d.Kind {
	case KindWebhook:
		if !ValidWebhookURL(d.WebhookURL) {
			return fmt.Errorf("%w: webhook url rejected for %q", ErrInvalidAddress, d.ID)
		}
		return nil
	case KindChat:
		if d.ChatID == 0 {
			return fmt.Errorf("%w: chat id missing for %q", ErrInvalidAddress, d.ID)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, d.Kind)
	}
}

// ValidWebhookURL reports whether u is an https URL on an allow-listed
// webhook host with the expected path prefix.
func ValidWebhookURL(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	if parsed.Scheme != "https" {
		return false
	}
	if !webhookHosts[strings.ToLower(parsed.Hostname())] {
		return false
	}
	return strings.HasPrefix(parsed.Path, "/api/webhooks/")
}
