package config

import (
	"fmt"
	"strings"
	"time"
)

// Duration-typed fields (poll_timeout, attempt_timeout, backoff_base,
// backoff_max, busy_timeout, max_age) arrive as Go duration strings so the
// YAML and JSON forms of the config read identically. An empty string means
// unset.

// ParseDurationField parses one such field, rejecting negatives. path is the
// dotted config location, used only in error messages.
func ParseDurationField(path, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault substitutes def when the field is unset or zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}
