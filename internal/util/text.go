package util

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	reSpaces     = regexp.MustCompile(`\s+`)
	reTitleNoise = regexp.MustCompile(`(?i)<<<page:\d+>>>|\bdsz_[a-z0-9_]+\b|\baltmp_[a-z0-9_]+\b|\bp\d{2,}\|\||\bclwti\b|\bbmp\b`)
	rePunctRun   = regexp.MustCompile(`[!?.,;:]{3,}|[!?]{2,}`)
)

var garbageTitleTokens = []string{
	"gez.", "seite ", "dsz_", "versammlungsleiter", "wohnungseigentümer",
	"verwaltungsbeiratsvorsitzender", "p60||", "clwti", "bmp", "altmp",
	"<<<page", "protokollabschrift der",
}

func NormalizeSpaces(input string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(input, " "))
}

// IsGarbageTitle reports titles that are signatures, page furniture or scan artifacts.
func IsGarbageTitle(title string) bool {
	t := strings.ToLower(strings.TrimSpace(title))
	if t == "" {
		return true
	}
	for _, tok := range garbageTitleTokens {
		if strings.Contains(t, tok) {
			return true
		}
	}
	return false
}

// CleanTitle strips OCR and transport artifacts from a TOP title.
func CleanTitle(input string) string {
	if strings.TrimSpace(input) == "" {
		return ""
	}
	t := reTitleNoise.ReplaceAllString(input, " ")

	words := strings.Fields(t)
	kept := words[:0]
	for _, w := range words {
		if longestLetterRun(w) >= 4 {
			continue
		}
		kept = append(kept, w)
	}
	t = strings.Join(kept, " ")

	notWord := func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) }
	t = strings.TrimLeftFunc(t, notWord)
	t = strings.TrimRightFunc(t, func(r rune) bool { return notWord(r) && r != ')' && r != '"' })
	return NormalizeSpaces(t)
}

// TruncateRunes cuts s to at most n runes.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}

// TitleIssues flags orthography problems a reviewer should look at.
func TitleIssues(title string) []string {
	issues := []string{}
	if strings.TrimSpace(title) == "" {
		return issues
	}
	if longestLetterRun(title) >= 3 {
		issues = append(issues, "repeated_characters")
	}
	if rePunctRun.MatchString(title) {
		issues = append(issues, "repeated_punctuation")
	}
	letters, upper := 0, 0
	for _, r := range title {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters >= 12 && upper == letters {
		issues = append(issues, "all_caps_long")
	}
	return issues
}

func longestLetterRun(s string) int {
	best, cur := 0, 0
	var prev rune
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) && r == prev {
			cur++
		} else {
			cur = 1
		}
		if unicode.IsLetter(r) && cur > best {
			best = cur
		}
		prev = r
	}
	return best
}
