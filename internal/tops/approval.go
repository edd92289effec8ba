package tops

import "fmt"

// Decision is the outcome of the approval rules for a single text block.
type Decision struct {
	Verdict    Verdict
	Confidence Confidence
	Reason     string
	Votes      Votes
}

// Decide applies the approval rules to the body of a detailed block:
// an explicit decision phrase is authoritative, a complete tally gives a
// low-confidence inference unless a special quorum is mentioned, anything
// else stays undetermined.
func Decide(text string, rules *Rules) Decision {
	votes := ParseVotes(text)
	if v, phrase, ok := rules.ExplicitDecision(text); ok {
		return Decision{Verdict: v, Confidence: ConfidenceHigh, Reason: "phrase: " + phrase, Votes: votes}
	}
	if votes.Complete() {
		if rules.MentionsSpecialQuorum(text) {
			return Decision{Verdict: VerdictUndetermined, Confidence: ConfidenceLow, Reason: "tally under special quorum", Votes: votes}
		}
		yes, no := *votes.Yes, *votes.No
		reason := fmt.Sprintf("tally %d:%d", yes, no)
		switch {
		case yes > no:
			return Decision{Verdict: VerdictApproved, Confidence: ConfidenceLow, Reason: reason, Votes: votes}
		case no > yes:
			return Decision{Verdict: VerdictRejected, Confidence: ConfidenceLow, Reason: reason, Votes: votes}
		default:
			return Decision{Verdict: VerdictUndetermined, Confidence: ConfidenceLow, Reason: reason + " tie", Votes: votes}
		}
	}
	if votes.Yes != nil || votes.No != nil {
		return Decision{Verdict: VerdictUndetermined, Confidence: ConfidenceLow, Reason: "incomplete tally", Votes: votes}
	}
	return Decision{Verdict: VerdictUndetermined, Confidence: ConfidenceLow, Reason: "no decision language", Votes: votes}
}

// Annotate sets verdict, confidence and votes on every record. Only records
// sourced from detailed minutes are inferred; agenda-list and unknown records
// stay undetermined.
func Annotate(records []ResolvedTop, rules *Rules) []ResolvedTop {
	out := make([]ResolvedTop, len(records))
	for i, r := range records {
		if r.Region == RegionDetailed {
			d := Decide(r.Body, rules)
			r.Verdict, r.Confidence, r.Reason, r.Votes = d.Verdict, d.Confidence, d.Reason, d.Votes
		} else {
			r.Verdict, r.Confidence = VerdictUndetermined, ConfidenceLow
			r.Reason = "no detailed minutes"
			r.Votes = ParseVotes(r.Body)
		}
		out[i] = r
	}
	return out
}
