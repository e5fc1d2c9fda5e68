package extract

import (
	"fmt"
	"regexp"
	"strings"
)

// Time preference extraction runs on every utterance while a booking intent
// is active, not just when the caller was asked for a time. Callers volunteer
// times mid-sentence ("can I come in tomorrow morning?") and asking again
// after they already said one reads as not listening.

var (
	clockTimeRE = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(a\.m\.|p\.m\.|am\b|pm\b)`)
	weekdayRE   = regexp.MustCompile(`\b(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
	relativeRE  = regexp.MustCompile(`\b(today|tomorrow)\b`)
	weekRefRE   = regexp.MustCompile(`\b(this|next)\s+week\b`)
	timeOfDayRE = regexp.MustCompile(`\b(morning|afternoon|evening)s?\b`)
)

// ExtractTimePreference pulls a single canonical scheduling preference out of
// an utterance, or "" when none is present. Output forms:
//
//	"3:30 pm" / "tomorrow 3:30 pm"
//	"tomorrow morning" / "wednesday afternoon" / "morning"
//	"wednesday" / "today" / "next week"
func ExtractTimePreference(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return ""
	}

	day := ""
	if m := relativeRE.FindString(text); m != "" {
		day = m
	} else if m := weekdayRE.FindString(text); m != "" {
		day = m
	}

	// Explicit clock time wins over a vaguer time-of-day in the same utterance.
	if m := clockTimeRE.FindStringSubmatch(text); m != nil {
		clock := canonicalClock(m[1], m[2], m[3])
		if clock != "" {
			if day != "" {
				return day + " " + clock
			}
			return clock
		}
	}

	if m := timeOfDayRE.FindStringSubmatch(text); m != nil {
		// Singular form regardless of "mornings work best" phrasing.
		if day != "" {
			return day + " " + m[1]
		}
		return m[1]
	}

	if day != "" {
		return day
	}

	if m := weekRefRE.FindStringSubmatch(text); m != nil {
		return m[1] + " week"
	}

	return ""
}

func canonicalClock(hourStr, minStr, meridiem string) string {
	hour := 0
	for _, c := range hourStr {
		hour = hour*10 + int(c-'0')
	}
	if hour < 1 || hour > 12 {
		return ""
	}
	min := 0
	if minStr != "" {
		for _, c := range minStr {
			min = min*10 + int(c-'0')
		}
	}
	if min > 59 {
		return ""
	}
	ampm := "am"
	if strings.HasPrefix(strings.ReplaceAll(meridiem, ".", ""), "p") {
		ampm = "pm"
	}
	return fmt.Sprintf("%d:%02d %s", hour, min, ampm)
}
