package scoring

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var gameIDPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// ValidGameID reports whether id is lowercase letters, digits and hyphens.
func ValidGameID(id string) bool {
	return gameIDPattern.MatchString(id)
}

// RuleSet bounds the accepted values of one game. Granularity is the step
// every stored value must be a multiple of.
type RuleSet struct {
	Min         int64 `yaml:"min"`
	Max         int64 `yaml:"max"`
	Granularity int64 `yaml:"granularity"`
}

// DefaultRuleSet applies to any game without an override.
var DefaultRuleSet = RuleSet{Min: 0, Max: 999999, Granularity: 1}

type Rules struct {
	Default RuleSet            `yaml:"default"`
	Games   map[string]RuleSet `yaml:"games"`
}

func DefaultRules() Rules {
	return Rules{Default: DefaultRuleSet, Games: map[string]RuleSet{}}
}

// For returns the override for gameID, or the default rule set.
func (r Rules) For(gameID string) RuleSet {
	if rs, ok := r.Games[gameID]; ok {
		return rs
	}
	return r.Default
}

// GameLabel names gameID in metrics: the id when the rules file configures
// it, "other" for everything else.
func (r Rules) GameLabel(gameID string) string {
	id := strings.ToLower(strings.TrimSpace(gameID))
	if _, ok := r.Games[id]; ok {
		return id
	}
	return "other"
}

func (rs RuleSet) validate() error {
	if rs.Min > rs.Max {
		return fmt.Errorf("min %d exceeds max %d", rs.Min, rs.Max)
	}
	if rs.Granularity < 1 {
		return fmt.Errorf("granularity %d must be at least 1", rs.Granularity)
	}
	return nil
}

func (r Rules) Validate() error {
	if err := r.Default.validate(); err != nil {
		return fmt.Errorf("default rules: %w", err)
	}
	for id, rs := range r.Games {
		if !gameIDPattern.MatchString(id) {
			return fmt.Errorf("game %q: invalid game id", id)
		}
		if err := rs.validate(); err != nil {
			return fmt.Errorf("game %q: %w", id, err)
		}
	}
	return nil
}

// ParseRules decodes a YAML rules document. Missing default fields fall back
// to DefaultRuleSet, and a game override with no granularity gets 1.
//
//	default: {min: 0, max: 999999, granularity: 1}
//	games:
//	  snake: {min: 0, max: 5000, granularity: 10}
func ParseRules(data []byte) (Rules, error) {
	var doc struct {
		Default *RuleSet           `yaml:"default"`
		Games   map[string]RuleSet `yaml:"games"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Rules{}, fmt.Errorf("parse rules: %w", err)
	}
	rules := DefaultRules()
	if doc.Default != nil {
		rules.Default = *doc.Default
		if rules.Default.Granularity == 0 {
			rules.Default.Granularity = 1
		}
	}
	for id, rs := range doc.Games {
		if rs.Granularity == 0 {
			rs.Granularity = 1
		}
		rules.Games[id] = rs
	}
	if err := rules.Validate(); err != nil {
		return Rules{}, err
	}
	return rules, nil
}

// LoadRules reads a rules file; an empty path yields the defaults.
func LoadRules(path string) (Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read rules: %w", err)
	}
	return ParseRules(data)
}
