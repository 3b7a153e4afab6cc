package relay

import (
	"regexp"
	"strings"
)

var (
	linkRE    = regexp.MustCompile(`https?://\S+`)
	mentionRE = regexp.MustCompile(`@\w+`)
	blankRE   = regexp.MustCompile(`\n{3,}`)
)

// Replacement rewrites one substring wherever it occurs.
type Replacement struct {
	Old string `json:"old" yaml:"old"`
	New string `json:"new" yaml:"new"`
}

// TransformRules shape the text of a routed message. Filters run before
// rewrites: a message dropped by the whitelist or blacklist is never sent to
// the route's destinations at all.
type TransformRules struct {
	// Whitelist keeps only messages containing at least one keyword
	// (case-insensitive). Empty means keep everything.
	Whitelist []string `json:"whitelist" yaml:"whitelist"`
	// Blacklist drops messages containing any keyword (case-insensitive).
	Blacklist []string `json:"blacklist" yaml:"blacklist"`

	Replace       []Replacement `json:"replace" yaml:"replace"`
	StripLinks    bool          `json:"strip_links" yaml:"strip_links"`
	StripMentions bool          `json:"strip_mentions" yaml:"strip_mentions"`
	Prefix        string        `json:"prefix" yaml:"prefix"`
	Suffix        string        `json:"suffix" yaml:"suffix"`
}

// Apply returns the rewritten text and whether the message passed the
// filters. A message that becomes empty after rewriting is dropped too.
func (r TransformRules) Apply(text string) (string, bool) {
	if !r.passes(text) {
		return "", false
	}

	for _, rep := range r.Replace {
		if rep.Old == "" {
			continue
		}
		text = strings.ReplaceAll(text, rep.Old, rep.New)
	}
	if r.StripLinks {
		text = linkRE.ReplaceAllString(text, "")
	}
	if r.StripMentions {
		text = mentionRE.ReplaceAllString(text, "")
	}
	text = blankRE.ReplaceAllString(text, "\n\n")
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}

	if r.Prefix != "" {
		text = r.Prefix + " " + text
	}
	if r.Suffix != "" {
		text = text + " " + r.Suffix
	}
	return text, true
}

func (r TransformRules) passes(text string) bool {
	lower := strings.ToLower(text)
	if len(r.Whitelist) > 0 {
		hit := false
		for _, kw := range r.Whitelist {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	for _, kw := range r.Blacklist {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return false
		}
	}
	return true
}
