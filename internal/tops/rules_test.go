package tops

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultRulesOrder(t *testing.T) {
	r := DefaultRules()
	if len(r.DecisionRules) < 2 || r.DecisionRules[0].Verdict != VerdictRejected || r.DecisionRules[1].Verdict != VerdictApproved {
		t.Fatalf("unexpected rule order: %+v", r.DecisionRules)
	}
}

func TestParseRulesValidation(t *testing.T) {
	bad := []string{
		"decision_rules: []",
		"decision_rules:\n  - verdict: maybe\n    phrases: [x]",
		"decision_rules:\n  - verdict: approved\n    phrases: []",
		"decision_rules: [",
	}
	for _, b := range bad {
		if _, err := ParseRules([]byte(b)); err == nil {
			t.Fatalf("expected error for %q", b)
		}
	}
}

func TestLoadRulesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	data := "decision_rules:\n  - verdict: approved\n    phrases: [\"Durchgewunken\"]\nquorum_markers: [\"Allstimmigkeit\"]\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := LoadRules(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	v, phrase, ok := r.ExplicitDecision("Der Antrag wurde DURCHGEWUNKEN.")
	if !ok || v != VerdictApproved || phrase != "durchgewunken" {
		t.Fatalf("got %s %q %v", v, phrase, ok)
	}
	if !r.MentionsSpecialQuorum("allstimmigkeit erforderlich") {
		t.Fatalf("quorum marker not lowered")
	}
	if _, _, ok := r.ExplicitDecision("wurde abgelehnt"); ok {
		t.Fatalf("custom rules should replace defaults")
	}
	if _, err := LoadRules(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestMeetingDate(t *testing.T) {
	cases := []struct {
		text, file, want string
	}{
		{"Protokoll vom 12.12.2024", "foo.pdf", "2024-12-12"},
		{"Versammlung am 3.4.2023 im Saal", "foo.pdf", "2023-04-03"},
		{"no date", "12022024.pdf", "2024-02-12"},
		{"Protokoll vom 31.02.2024", "foo.pdf", ""},
		{"", "Protokoll vom 26.10.2021.pdf", "2021-10-26"},
	}
	for _, c := range cases {
		if got := MeetingDate(c.text, c.file); got != c.want {
			t.Fatalf("MeetingDate(%q, %q)=%q want %q", c.text, c.file, got, c.want)
		}
	}
	if MeetingYear("2024-02-12") != "2024" || MeetingYear("") != "unknown" {
		t.Fatalf("MeetingYear")
	}
}
