package tops

import (
	"regexp"
	"strconv"
	"time"
)

var (
	reDateInText     = regexp.MustCompile(`(?i)\b(?:vom|am)\s+(\d{1,2})\.\s?(\d{1,2})\.\s?(\d{4})\b`)
	reDateInFilename = regexp.MustCompile(`(?:^|\D)([0-3]\d)(0[1-9]|1[0-2])(20\d{2})(?:\D|$)`)
)

// MeetingDate returns the meeting date as YYYY-MM-DD, taken from the first
// "vom|am DD.MM.YYYY" in the text or file name, or a DDMMYYYY run in the file name.
func MeetingDate(text, filename string) string {
	for _, s := range []string{text, filename} {
		if m := reDateInText.FindStringSubmatch(s); m != nil {
			if d, ok := isoDate(m[3], m[2], m[1]); ok {
				return d
			}
		}
	}
	if m := reDateInFilename.FindStringSubmatch(filename); m != nil {
		if d, ok := isoDate(m[3], m[2], m[1]); ok {
			return d
		}
	}
	return ""
}

func isoDate(y, m, d string) (string, bool) {
	yy, _ := strconv.Atoi(y)
	mm, _ := strconv.Atoi(m)
	dd, _ := strconv.Atoi(d)
	t := time.Date(yy, time.Month(mm), dd, 0, 0, 0, 0, time.UTC)
	if t.Year() != yy || int(t.Month()) != mm || t.Day() != dd {
		return "", false
	}
	return t.Format("2006-01-02"), true
}

// MeetingYear returns the year part of an ISO meeting date, "unknown" when absent.
func MeetingYear(date string) string {
	if len(date) >= 4 {
		if _, err := strconv.Atoi(date[:4]); err == nil {
			return date[:4]
		}
	}
	return "unknown"
}
