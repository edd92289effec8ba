package util

import (
	"slices"
	"testing"
)

func TestCleanTitleRemovesNoiseAndRepeats(t *testing.T) {
	got := CleanTitle("<<<PAGE:2>>> SEEEEEDEE Beschlussfassung")
	if got != "Beschlussfassung" {
		t.Fatalf("got %q", got)
	}
}

func TestCleanTitleKeepsUmlauts(t *testing.T) {
	got := CleanTitle("-- Änderung der Hausordnung: ")
	if got != "Änderung der Hausordnung" {
		t.Fatalf("got %q", got)
	}
}

func TestIsGarbageTitle(t *testing.T) {
	if !IsGarbageTitle("gez. Unterschrift") {
		t.Fatal("signature line should be garbage")
	}
	if !IsGarbageTitle("   ") {
		t.Fatal("blank should be garbage")
	}
	if IsGarbageTitle("Wirtschaftsplan 2025") {
		t.Fatal("regular title flagged")
	}
}

func TestTitleIssues(t *testing.T) {
	issues := TitleIssues("WIRTSCHAAAFTSPLAN!!! 2025")
	for _, want := range []string{"repeated_characters", "repeated_punctuation", "all_caps_long"} {
		if !slices.Contains(issues, want) {
			t.Fatalf("missing %s in %v", want, issues)
		}
	}
	if got := TitleIssues("Genehmigung der Jahresabrechnung"); len(got) != 0 {
		t.Fatalf("unexpected issues %v", got)
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := TruncateRunes("Änderung", 3); got != "Änd" {
		t.Fatalf("got %q", got)
	}
	if got := TruncateRunes("kurz", 10); got != "kurz" {
		t.Fatalf("got %q", got)
	}
}
