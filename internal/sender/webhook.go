package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"teleforward/internal/destination"
)

// webhookTokenRE matches the credential part of a webhook URL so it can be
// stripped from anything surfaced upward.
var webhookTokenRE = regexp.MustCompile(`(?i)(https?://(?:ptb\.|canary\.)?discord(?:app)?\.com/api/webhooks/\d+/)\S+`)

// RedactWebhookURL replaces webhook tokens embedded in s.
func RedactWebhookURL(s string) string {
	return webhookTokenRE.ReplaceAllString(s, "$1[REDACTED]")
}

const defaultRateLimitWait = 1500 * time.Millisecond

// Webhook delivers payloads to Discord-compatible webhook URLs.
type Webhook struct {
	http *http.Client
}

func NewWebhook(timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Webhook{
		http: &http.Client{
			Timeout: timeout,
			// Redirects could smuggle the request off the allow-listed host.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (w *Webhook) Send(ctx context.Context, dest destination.Destination, payload Payload) Result {
	if !destination.ValidWebhookURL(dest.WebhookURL) {
		return Result{Status: StatusPermanent, Class: ClassRejected, Err: destination.ErrInvalidAddress}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, dest.WebhookURL, bytes.NewReader(payload.WebhookBody))
	if err != nil {
		return Result{Status: StatusPermanent, Class: ClassRejected, Err: redactErr(err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.http.Do(req)
	if err != nil {
		return Result{Status: StatusTransient, Class: ClassTransientNetwork, Err: redactErr(err)}
	}
	defer resp.Body.Close()

	return classifyResponse(resp)
}

// Probe fetches the webhook metadata without posting anything.
func (w *Webhook) Probe(ctx context.Context, dest destination.Destination) Result {
	if !destination.ValidWebhookURL(dest.WebhookURL) {
		return Result{Status: StatusPermanent, Class: ClassRejected, Err: destination.ErrInvalidAddress}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dest.WebhookURL, nil)
	if err != nil {
		return Result{Status: StatusPermanent, Class: ClassRejected, Err: redactErr(err)}
	}
	resp, err := w.http.Do(req)
	if err != nil {
		return Result{Status: StatusTransient, Class: ClassTransientNetwork, Err: redactErr(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return delivered()
	}
	return classifyResponse(resp)
}

func classifyResponse(resp *http.Response) Result {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return delivered()
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return Result{
			Status:     StatusTransient,
			Class:      ClassRateLimited,
			RetryAfter: retryAfterHint(resp, body),
			Err:        errors.New("rate limited by provider (429)"),
		}
	case resp.StatusCode >= 500:
		return Result{
			Status: StatusTransient,
			Class:  ClassTransientNetwork,
			Err:    fmt.Errorf("provider server error %d", resp.StatusCode),
		}
	default:
		return Result{
			Status: StatusPermanent,
			Class:  ClassRejected,
			Err:    fmt.Errorf("provider returned status %d: %s", resp.StatusCode, snippet(body)),
		}
	}
}

// retryAfterHint extracts the provider's suggested wait. Discord puts
// fractional seconds in the JSON body; the Retry-After header is the
// fallback. When neither parses, a small default keeps us polite.
func retryAfterHint(resp *http.Response, body []byte) time.Duration {
	var parsed struct {
		RetryAfter float64 `json:"retry_after"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.RetryAfter > 0 {
		return time.Duration(parsed.RetryAfter * float64(time.Second))
	}

	if hdr := resp.Header.Get("Retry-After"); hdr != "" {
		if secs, err := strconv.ParseFloat(strings.TrimSpace(hdr), 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return defaultRateLimitWait
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 500 {
		s = s[:497] + "..."
	}
	return RedactWebhookURL(s)
}

func redactErr(err error) error {
	if err == nil {
		return nil
	}
	return errors.New(RedactWebhookURL(err.Error()))
}
