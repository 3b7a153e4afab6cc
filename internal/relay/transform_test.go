package relay

import "testing"

func TestTransformFilters(t *testing.T) {
	tests := []struct {
		name  string
		rules TransformRules
		in    string
		want  string
		keep  bool
	}{
		{"no rules passes through", TransformRules{}, "hello world", "hello world", true},
		{"whitelist hit", TransformRules{Whitelist: []string{"alert"}}, "ALERT: disk full", "ALERT: disk full", true},
		{"whitelist miss", TransformRules{Whitelist: []string{"alert"}}, "all quiet", "", false},
		{"blacklist hit", TransformRules{Blacklist: []string{"spam"}}, "buy SPAM now", "", false},
		{"blacklist miss", TransformRules{Blacklist: []string{"spam"}}, "real news", "real news", true},
		{"whitelist then blacklist", TransformRules{Whitelist: []string{"news"}, Blacklist: []string{"ads"}}, "news with ads", "", false},
		{"replace", TransformRules{Replace: []Replacement{{Old: "inc", New: "corp"}}}, "acme inc report", "acme corp report", true},
		{"strip links", TransformRules{StripLinks: true}, "see https://example.com/x now", "see  now", true},
		{"strip mentions", TransformRules{StripMentions: true}, "ping @admin please", "ping  please", true},
		{"only a link", TransformRules{StripLinks: true}, "https://example.com", "", false},
		{"prefix suffix", TransformRules{Prefix: "[fwd]", Suffix: "(mirrored)"}, "body", "[fwd] body (mirrored)", true},
		{"empty input dropped", TransformRules{}, "   ", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, keep := tt.rules.Apply(tt.in)
			if keep != tt.keep {
				t.Fatalf("keep = %v, want %v", keep, tt.keep)
			}
			if got != tt.want {
				t.Fatalf("text = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTransformCollapsesBlankRuns(t *testing.T) {
	rules := TransformRules{StripLinks: true}
	got, keep := rules.Apply("first\n\n\nhttps://example.com\n\n\n\nsecond")
	if !keep {
		t.Fatal("message dropped")
	}
	if got != "first\n\nsecond" {
		t.Fatalf("text = %q", got)
	}
}
