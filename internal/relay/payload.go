package relay

import (
	"encoding/json"
	"hash/fnv"
	"strconv"
	"strings"
	"time"

	"teleforward/internal/sender"
	"teleforward/internal/transport"
)

// Discord caps embed descriptions well above this, but plain message content
// at 2000; staying under the lower bound keeps both forms valid.
const webhookDescLimit = 2000

type webhookEmbed struct {
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description"`
	URL         string         `json:"url,omitempty"`
	Color       int            `json:"color"`
	Timestamp   string         `json:"timestamp,omitempty"`
	Author      *webhookAuthor `json:"author,omitempty"`
}

type webhookAuthor struct {
	Name string `json:"name"`
}

type webhookBody struct {
	Username        string          `json:"username,omitempty"`
	Embeds          []webhookEmbed  `json:"embeds"`
	AllowedMentions allowedMentions `json:"allowed_mentions"`
}

// allowedMentions with an empty parse list tells the receiver to ping nobody
// regardless of what the relayed text contains.
type allowedMentions struct {
	Parse []string `json:"parse"`
}

// RenderPayload builds both wire forms for one routed message. The engine
// picks the one matching the destination kind.
func RenderPayload(ev transport.SourceEvent, text string) sender.Payload {
	return sender.Payload{
		WebhookBody: renderWebhookBody(ev, text),
		ChatText:    renderChatText(ev, text),
	}
}

func renderWebhookBody(ev transport.SourceEvent, text string) []byte {
	embed := webhookEmbed{
		Title:       ev.ChatTitle,
		Description: truncate(suppressUnfurls(neutralizeMentions(text)), webhookDescLimit),
		URL:         ev.Link,
		Color:       colorFor(ev.ChatID),
	}
	if !ev.At.IsZero() {
		embed.Timestamp = ev.At.UTC().Format(time.RFC3339)
	}
	if ev.Sender != "" {
		embed.Author = &webhookAuthor{Name: ev.Sender}
	}
	body := webhookBody{
		Username:        ev.ChatTitle,
		Embeds:          []webhookEmbed{embed},
		AllowedMentions: allowedMentions{Parse: []string{}},
	}
	b, err := json.Marshal(body)
	if err != nil {
		// Only unmarshalable types reach this; the body holds none.
		return []byte(`{"embeds":[]}`)
	}
	return b
}

func renderChatText(ev transport.SourceEvent, text string) string {
	var b strings.Builder
	if ev.ChatTitle != "" {
		b.WriteString("[")
		b.WriteString(ev.ChatTitle)
		b.WriteString("]")
	}
	if ev.Sender != "" {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(ev.Sender)
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString(text)
	if ev.Link != "" {
		b.WriteString("\n")
		b.WriteString(ev.Link)
	}
	return b.String()
}

// colorFor derives a stable embed color from the source chat so readers can
// tell feeds apart at a glance.
func colorFor(chatID int64) int {
	h := fnv.New32a()
	h.Write([]byte(strconv.FormatInt(chatID, 10)))
	return int(h.Sum32() & 0xFFFFFF)
}

// suppressUnfurls wraps bare URLs in angle brackets so relayed links don't
// expand into preview cards at the destination.
func suppressUnfurls(s string) string {
	return linkRE.ReplaceAllStringFunc(s, func(m string) string {
		return "<" + m + ">"
	})
}

// neutralizeMentions defangs mass pings with a zero-width space. Individual
// mentions are already suppressed via allowed_mentions.
func neutralizeMentions(s string) string {
	s = strings.ReplaceAll(s, "@everyone", "@​everyone")
	s = strings.ReplaceAll(s, "@here", "@​here")
	return s
}

func truncate(s string, limit int) string {
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit-3]) + "..."
}
