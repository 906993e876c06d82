package policy

import (
	"os"
	"path/filepath"
	"testing"
)

func writePolicy(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	return path
}

const minimalPolicy = `{
	"allowedTopics": {"ko": ["이력"], "en": ["resume"]},
	"refusal": {"ko": "거절", "en": "refused"},
	"fallback": {"ko": "실패", "en": "failed"}
}`

func TestLoadAppliesDefaults(t *testing.T) {
	p, err := Load(writePolicy(t, minimalPolicy))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Retrieval.TopK != 4 {
		t.Fatalf("default topK: got %d", p.Retrieval.TopK)
	}
	if p.Retrieval.ScoreThreshold != 0.3 {
		t.Fatalf("default scoreThreshold: got %v", p.Retrieval.ScoreThreshold)
	}
	if p.Style.MaxSentences != 5 {
		t.Fatalf("default maxSentences: got %d", p.Style.MaxSentences)
	}
}

func TestLoadRejectsIncomplete(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"no topics", `{"refusal": {"ko": "a", "en": "b"}, "fallback": {"ko": "a", "en": "b"}}`},
		{"missing refusal", `{"allowedTopics": {"ko": ["이력"]}, "refusal": {"ko": "a"}, "fallback": {"ko": "a", "en": "b"}}`},
		{"missing fallback", `{"allowedTopics": {"ko": ["이력"]}, "refusal": {"ko": "a", "en": "b"}, "fallback": {"en": "b"}}`},
		{"bad json", `{`},
	}
	for _, tc := range cases {
		if _, err := Load(writePolicy(t, tc.body)); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestDetectLanguage(t *testing.T) {
	cases := []struct {
		text string
		want Lang
	}{
		{"어떤 프로젝트를 했나요?", Korean},
		{"What projects have you built?", English},
		{"", Korean},
		{"123 !?", Korean},
		{"go 이력", Korean},             // tie goes to Korean
		{"tell me about 이력", English}, // latin outnumbers hangul
	}
	for _, tc := range cases {
		if got := DetectLanguage(tc.text); got != tc.want {
			t.Fatalf("DetectLanguage(%q) = %s, want %s", tc.text, got, tc.want)
		}
	}
}

func TestInDomain(t *testing.T) {
	p := &Policy{AllowedTopics: Topics{
		Ko: []string{"이력", "프로젝트"},
		En: []string{"Resume", " project "},
	}}
	cases := []struct {
		query string
		want  bool
	}{
		{"이력에 대해 알려줘", true},
		{"Show me your RESUME please", true},
		{"any cool PROJECTs?", true},
		{"오늘 날씨 어때?", false},
		{"what is the weather today", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := p.InDomain(tc.query); got != tc.want {
			t.Fatalf("InDomain(%q) = %v, want %v", tc.query, got, tc.want)
		}
	}
}

func TestTemplateSelection(t *testing.T) {
	p := &Policy{
		Refusal:  Messages{Ko: "거절", En: "refused"},
		Fallback: Messages{Ko: "실패", En: "failed"},
	}
	if p.RefusalMessage(Korean) != "거절" || p.RefusalMessage(English) != "refused" {
		t.Fatalf("refusal selection wrong")
	}
	if p.FallbackMessage(Korean) != "실패" || p.FallbackMessage(English) != "failed" {
		t.Fatalf("fallback selection wrong")
	}
}
