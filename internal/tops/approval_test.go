package tops

import "testing"

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func TestDecide(t *testing.T) {
	rules := DefaultRules()
	cases := []struct {
		text       string
		verdict    Verdict
		confidence Confidence
	}{
		{"Die Versammlung hat mehrheitlich beschlossen, die Abrechnung zu genehmigen.", VerdictApproved, ConfidenceHigh},
		{"Der Antrag wurde mehrheitlich abgelehnt.", VerdictRejected, ConfidenceHigh},
		{"Der Antrag wurde nicht angenommen.", VerdictRejected, ConfidenceHigh},
		{"Der Beschluss wurde einstimmig beschlossen. Ja: 0, Nein: 30", VerdictApproved, ConfidenceHigh},
		{"Ja: 10, Nein: 15", VerdictRejected, ConfidenceLow},
		{"Ja: 12, Nein: 12", VerdictUndetermined, ConfidenceLow},
		{"Ja: 20, Nein: 3, Enthaltungen: 40", VerdictApproved, ConfidenceLow},
		{"Erforderlich ist eine qualifizierte Mehrheit. Ja: 20, Nein: 3", VerdictUndetermined, ConfidenceLow},
		{"Ja: 5", VerdictUndetermined, ConfidenceLow},
		{"Abstimmung: Ja-Stimmen 10 Nein-Stimmen 15 Enthaltungen 2", VerdictRejected, ConfidenceLow},
		{"Die Gemeinschaft beschließt die Erhöhung des Hausgeldes.", VerdictApproved, ConfidenceHigh},
		{"Die Gemeinschaft beschliesst die Sanierung der Tiefgarage.", VerdictApproved, ConfidenceHigh},
		{"Die Gemeinschaft beschließt nicht über den Antrag.", VerdictRejected, ConfidenceHigh},
		{"Der Verwalter berichtet über die Heizung.", VerdictUndetermined, ConfidenceLow},
		{"", VerdictUndetermined, ConfidenceLow},
	}
	for _, c := range cases {
		d := Decide(c.text, rules)
		if d.Verdict != c.verdict || d.Confidence != c.confidence {
			t.Fatalf("Decide(%q)=%+v want %s/%s", c.text, d, c.verdict, c.confidence)
		}
	}
}

func TestDecideRejectionBeforeApproval(t *testing.T) {
	d := Decide("Der erste Antrag wurde angenommen, der Gegenantrag abgelehnt.", DefaultRules())
	if d.Verdict != VerdictRejected || d.Reason != "phrase: abgelehnt" {
		t.Fatalf("unexpected: %+v", d)
	}
}

func TestParseVotes(t *testing.T) {
	cases := []struct {
		text             string
		yes, no, abstain int
	}{
		{"Ja: 10, Nein: 15", 10, 15, -1},
		{"mit 10 Ja-Stimmen, 2 Nein-Stimmen und 1 Enthaltung", 10, 2, 1},
		{"Ja-Stimmen: 1.234\nNein-Stimmen: 56\nEnthaltungen: 7", 1234, 56, 7},
		{"Abstimmungsergebnis (Ja/Nein/Enthaltung): 25/3/2", 25, 3, 2},
		{"Gegenstimmen: 4, Jastimmen: 9", 9, 4, -1},
		{"Die Rechnung vom 12/03/2024 liegt vor.", -1, -1, -1},
		{"Ja-Stimmen: 10 Nein-Stimmen: 15 Enthaltungen: 2", 10, 15, 2},
		{"Ja-Stimmen 10 Nein-Stimmen 1 Enthaltungen 2", 10, 1, 2},
		{"10 Ja-Stimmen 2 Nein-Stimmen 1 Enthaltung", 10, 2, 1},
		{"Ja: 20, 1 Gegenstimme, 2 Enthaltungen", 20, 1, 2},
		{"Ja: 20, Nein: 2\nVorjahr 5/3/1 Stimmen", 20, 2, -1},
	}
	for _, c := range cases {
		v := ParseVotes(c.text)
		if intOr(v.Yes, -1) != c.yes || intOr(v.No, -1) != c.no || intOr(v.Abstain, -1) != c.abstain {
			t.Fatalf("ParseVotes(%q)=%d/%d/%d", c.text, intOr(v.Yes, -1), intOr(v.No, -1), intOr(v.Abstain, -1))
		}
	}
}

func TestAnnotateOnlyInfersDetailed(t *testing.T) {
	records := []ResolvedTop{
		{Number: 1, Body: "wurde beschlossen", Region: RegionAgenda},
		{Number: 2, Body: "wurde beschlossen", Region: RegionDetailed},
		{Number: 3, Body: "Ja: 3, Nein: 1", Region: RegionUnknown},
	}
	out := Annotate(records, DefaultRules())
	if out[0].Verdict != VerdictUndetermined || out[1].Verdict != VerdictApproved || out[2].Verdict != VerdictUndetermined {
		t.Fatalf("unexpected: %+v", out)
	}
	if intOr(out[2].Votes.Yes, -1) != 3 {
		t.Fatalf("votes not carried: %+v", out[2].Votes)
	}
	if records[1].Verdict != "" {
		t.Fatalf("input mutated")
	}
}
