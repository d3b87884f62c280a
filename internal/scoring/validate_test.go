package scoring

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/DHenson1337/mini-game-playground-server/internal/apperr"
)

func raw(username, gameID, score string) RawSubmission {
	r := RawSubmission{Username: username, GameID: gameID}
	if score != "" {
		r.Score = json.RawMessage(score)
	}
	return r
}

func TestValidate(t *testing.T) {
	rules := DefaultRules()
	rules.Games["snake"] = RuleSet{Min: 0, Max: 5000, Granularity: 10}

	tests := []struct {
		name    string
		in      RawSubmission
		wantErr error
		want    Submission
	}{
		{"default rules accept", raw("Alice", "tetris", "500000"), nil, Submission{"alice", "tetris", 500000}},
		{"negative out of range", raw("alice", "tetris", "-1"), apperr.ErrOutOfRange, Submission{}},
		{"above max", raw("alice", "tetris", "1000000"), apperr.ErrOutOfRange, Submission{}},
		{"bounds inclusive", raw("alice", "tetris", "999999"), nil, Submission{"alice", "tetris", 999999}},
		{"fraction floored", raw(" Alice ", " tetris ", "12.9"), nil, Submission{"alice", "tetris", 12}},
		{"missing username", raw("", "tetris", "1"), apperr.ErrMissingFields, Submission{}},
		{"blank username", raw("   ", "tetris", "1"), apperr.ErrMissingFields, Submission{}},
		{"missing game", raw("alice", "", "1"), apperr.ErrMissingFields, Submission{}},
		{"missing score", raw("alice", "tetris", ""), apperr.ErrMissingFields, Submission{}},
		{"zero score present", raw("alice", "tetris", "0"), nil, Submission{"alice", "tetris", 0}},
		{"string score", raw("alice", "tetris", `"100"`), apperr.ErrInvalidFormat, Submission{}},
		{"null score", raw("alice", "tetris", "null"), apperr.ErrInvalidFormat, Submission{}},
		{"bool score", raw("alice", "tetris", "true"), apperr.ErrInvalidFormat, Submission{}},
		{"overflowing score", raw("alice", "tetris", "1e400"), apperr.ErrInvalidFormat, Submission{}},
		{"game id with spaces and caps", raw("alice", "Tetris Classic", "-1"), apperr.ErrInvalidGameID, Submission{}},
		{"game id underscore", raw("alice", "tetris_2", "5"), apperr.ErrInvalidGameID, Submission{}},
		{"format before range", raw("alice", "tetris", `"-1"`), apperr.ErrInvalidFormat, Submission{}},
		{"override granularity ok", raw("alice", "snake", "120"), nil, Submission{"alice", "snake", 120}},
		{"override granularity violated", raw("alice", "snake", "125"), apperr.ErrOutOfRange, Submission{}},
		{"override max", raw("alice", "snake", "5010"), apperr.ErrOutOfRange, Submission{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Validate(tt.in, rules)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Validate() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Validate() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestValidate_OutOfRangeDetail(t *testing.T) {
	_, err := Validate(raw("alice", "tetris", "-1"), DefaultRules())
	if got := apperr.Detail(err, apperr.ErrOutOfRange); got != "score must be between 0 and 999999" {
		t.Errorf("Detail() = %q", got)
	}
}

func TestParseRules(t *testing.T) {
	doc := []byte(`
default:
  min: 0
  max: 100000
games:
  snake:
    min: 0
    max: 5000
    granularity: 10
  pong:
    max: 21
`)
	rules, err := ParseRules(doc)
	if err != nil {
		t.Fatalf("ParseRules() error = %v", err)
	}
	if got := rules.For("tetris"); got != (RuleSet{Min: 0, Max: 100000, Granularity: 1}) {
		t.Errorf("For(tetris) = %+v", got)
	}
	if got := rules.For("snake"); got.Granularity != 10 || got.Max != 5000 {
		t.Errorf("For(snake) = %+v", got)
	}
	if got := rules.For("pong"); got.Granularity != 1 || got.Max != 21 {
		t.Errorf("For(pong) = %+v", got)
	}
}

func TestParseRules_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"min above max", "default: {min: 10, max: 1}"},
		{"negative granularity", "games: {snake: {min: 0, max: 10, granularity: -2}}"},
		{"bad game id", "games: {Snake Game: {min: 0, max: 10}}"},
		{"not yaml", "games: ["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseRules([]byte(tt.doc)); err == nil {
				t.Error("ParseRules() error = nil, want error")
			}
		})
	}
}

func TestLoadRules_EmptyPath(t *testing.T) {
	rules, err := LoadRules("")
	if err != nil {
		t.Fatalf("LoadRules() error = %v", err)
	}
	if rules.For("anything") != DefaultRuleSet {
		t.Errorf("LoadRules(\"\") default = %+v", rules.For("anything"))
	}
}

func TestLoadRules_ShippedFile(t *testing.T) {
	rules, err := LoadRules("../../configs/score_rules.yaml")
	if err != nil {
		t.Fatalf("LoadRules() error = %v", err)
	}
	if got := rules.For("tetris-classic").Granularity; got != 10 {
		t.Errorf("tetris-classic granularity = %d, want 10", got)
	}
	if got := rules.For("unknown-game"); got != rules.Default {
		t.Errorf("unknown game rules = %+v, want default", got)
	}
}

func TestRules_GameLabel(t *testing.T) {
	rules := Rules{Default: DefaultRuleSet, Games: map[string]RuleSet{"snake": {Min: 0, Max: 10, Granularity: 1}}}
	for in, want := range map[string]string{
		"snake":   "snake",
		" Snake ": "snake",
		"pong":    "other",
		"":        "other",
	} {
		if got := rules.GameLabel(in); got != want {
			t.Errorf("GameLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidGameID(t *testing.T) {
	for id, want := range map[string]bool{
		"snake":          true,
		"tetris-classic": true,
		"2048":           true,
		"Tetris":         false,
		"tetris classic": false,
		"":               false,
	} {
		if got := ValidGameID(id); got != want {
			t.Errorf("ValidGameID(%q) = %v, want %v", id, got, want)
		}
	}
}
