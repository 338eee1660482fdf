package ingestion

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxTextLength bounds stored extracted text, keeping row size and
// downstream index cost predictable.
const MaxTextLength = 50_000

var (
	spaceRuns   = regexp.MustCompile(`[ \t]+`)
	newlineRuns = regexp.MustCompile(`\n{3,}`)
)

// CleanText normalizes raw extracted text for storage and display: control
// characters and NULs are stripped, whitespace runs collapsed, pathological
// character repetition (10+ of the same rune) reduced to a single instance,
// and the result truncated to MaxTextLength. Total function, never fails.
func CleanText(raw string) string {
	if raw == "" {
		return ""
	}

	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = stripControl(s)
	s = collapseRepeats(s, 10)
	s = spaceRuns.ReplaceAllString(s, " ")
	s = newlineRuns.ReplaceAllString(s, "\n\n")
	s = strings.TrimSpace(s)

	return truncate(s, MaxTextLength)
}

// stripControl drops NUL bytes and control characters, keeping tab and
// newline so document structure survives.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f || r == utf8.RuneError {
			return -1
		}
		return r
	}, s)
}

// collapseRepeats reduces any run of limit or more identical runes to a
// single instance. Long repeats are a common artifact of broken OCR and PDF
// extraction.
func collapseRepeats(s string, limit int) string {
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	runLen := 0

	flush := func() {
		n := runLen
		if n >= limit {
			n = 1
		}
		for i := 0; i < n; i++ {
			b.WriteRune(prev)
		}
	}

	for i, r := range s {
		if i > 0 && r == prev {
			runLen++
			continue
		}
		if i > 0 {
			flush()
		}
		prev = r
		runLen = 1
	}
	if runLen > 0 {
		flush()
	}
	return b.String()
}

// truncate cuts at maxLen bytes without splitting a UTF-8 sequence.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := s[:maxLen]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
