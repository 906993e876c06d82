package policy

import (
	"encoding/json"
	"fmt"
	"os"
)

// Lang is a detected utterance language.
type Lang string

const (
	Korean  Lang = "ko"
	English Lang = "en"
)

// Topics lists the allowed-topic keywords per language.
type Topics struct {
	Ko []string `json:"ko"`
	En []string `json:"en"`
}

// Messages holds one user-facing template per language.
type Messages struct {
	Ko string `json:"ko"`
	En string `json:"en"`
}

// Style constrains the generated answer.
type Style struct {
	MaxSentences int      `json:"maxSentences"`
	Tone         string   `json:"tone"`
	Forbidden    []string `json:"forbidden"`
}

// Retrieval holds the similarity-search tuning knobs.
type Retrieval struct {
	ScoreThreshold float64 `json:"scoreThreshold"`
	TopK           int     `json:"topK"`
}

// Policy is loaded once at process start and treated as immutable.
// Refusal and fallback are semantically distinct: refusal means "out of
// scope", fallback means "in scope but the pipeline failed".
type Policy struct {
	AllowedTopics Topics    `json:"allowedTopics"`
	Refusal       Messages  `json:"refusal"`
	Fallback      Messages  `json:"fallback"`
	Style         Style     `json:"style"`
	Retrieval     Retrieval `json:"retrieval"`
}

// Load reads and validates the policy file.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	var p Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	p.normalize()
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Policy) normalize() {
	if p.Retrieval.TopK <= 0 {
		p.Retrieval.TopK = 4
	}
	if p.Retrieval.ScoreThreshold == 0 {
		p.Retrieval.ScoreThreshold = 0.3
	}
	if p.Style.MaxSentences <= 0 {
		p.Style.MaxSentences = 5
	}
}

func (p *Policy) validate() error {
	if len(p.AllowedTopics.Ko) == 0 && len(p.AllowedTopics.En) == 0 {
		return fmt.Errorf("policy: allowedTopics must list at least one keyword")
	}
	if p.Refusal.Ko == "" || p.Refusal.En == "" {
		return fmt.Errorf("policy: refusal templates required for both languages")
	}
	if p.Fallback.Ko == "" || p.Fallback.En == "" {
		return fmt.Errorf("policy: fallback templates required for both languages")
	}
	return nil
}

// RefusalMessage is the out-of-scope template for the detected language.
func (p *Policy) RefusalMessage(lang Lang) string {
	if lang == English {
		return p.Refusal.En
	}
	return p.Refusal.Ko
}

// FallbackMessage is the pipeline-failure template for the detected
// language.
func (p *Policy) FallbackMessage(lang Lang) string {
	if lang == English {
		return p.Fallback.En
	}
	return p.Fallback.Ko
}
