package tops

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// DecisionRule maps a set of phrases to the verdict they announce.
type DecisionRule struct {
	Verdict Verdict  `yaml:"verdict"`
	Phrases []string `yaml:"phrases"`
}

// Rules is the keyword configuration of the classifier. Order of DecisionRules is significant.
type Rules struct {
	DecisionRules      []DecisionRule `yaml:"decision_rules"`
	ResolutionKeywords []string       `yaml:"resolution_keywords"`
	QuorumMarkers      []string       `yaml:"quorum_markers"`
	TitleStopMarkers   []string       `yaml:"title_stop_markers"`
}

// DefaultRules returns the built-in rule table.
func DefaultRules() *Rules {
	r, err := ParseRules(defaultRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded rules.yaml: %v", err))
	}
	return r
}

// LoadRules reads a rule table from path. An empty path yields the defaults.
func LoadRules(path string) (*Rules, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	r, err := ParseRules(data)
	if err != nil {
		return nil, fmt.Errorf("parse rules %s: %w", path, err)
	}
	return r, nil
}

func ParseRules(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	r.lower()
	return &r, nil
}

func (r *Rules) validate() error {
	if len(r.DecisionRules) == 0 {
		return fmt.Errorf("no decision_rules")
	}
	for i, rule := range r.DecisionRules {
		switch rule.Verdict {
		case VerdictApproved, VerdictRejected:
		default:
			return fmt.Errorf("decision_rules[%d]: unsupported verdict %q", i, rule.Verdict)
		}
		if len(rule.Phrases) == 0 {
			return fmt.Errorf("decision_rules[%d]: no phrases", i)
		}
	}
	return nil
}

func (r *Rules) lower() {
	for i := range r.DecisionRules {
		r.DecisionRules[i].Phrases = lowerAll(r.DecisionRules[i].Phrases)
	}
	r.ResolutionKeywords = lowerAll(r.ResolutionKeywords)
	r.QuorumMarkers = lowerAll(r.QuorumMarkers)
	r.TitleStopMarkers = lowerAll(r.TitleStopMarkers)
}

// ExplicitDecision returns the verdict of the first rule with a phrase contained in text.
func (r *Rules) ExplicitDecision(text string) (Verdict, string, bool) {
	lower := strings.ToLower(text)
	for _, rule := range r.DecisionRules {
		for _, p := range rule.Phrases {
			if p != "" && strings.Contains(lower, p) {
				return rule.Verdict, p, true
			}
		}
	}
	return VerdictUndetermined, "", false
}

func (r *Rules) HasResolutionLanguage(text string) bool {
	return containsAny(strings.ToLower(text), r.ResolutionKeywords)
}

func (r *Rules) MentionsSpecialQuorum(text string) bool {
	return containsAny(strings.ToLower(text), r.QuorumMarkers)
}

func (r *Rules) isTitleStop(line string) bool {
	lower := strings.ToLower(strings.TrimSpace(line))
	for _, m := range r.TitleStopMarkers {
		if strings.HasPrefix(lower, m) {
			return true
		}
	}
	return false
}

func containsAny(lower string, phrases []string) bool {
	for _, p := range phrases {
		if p != "" && strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
