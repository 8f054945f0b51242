package xstrings

import "strings"

// Truncate cuts s to at most n runes, appending suffix when it cut anything.
func Truncate(s string, n int, suffix string) string {
	r := []rune(s)
	if n < 0 || len(r) <= n {
		return s
	}
	return string(r[:n]) + suffix
}

// Snippet returns the text around the first occurrence of needle, with up to
// radius runes on each side. It returns "" when needle does not occur.
func Snippet(s, needle string, radius int) string {
	if needle == "" {
		return ""
	}
	idx := strings.Index(s, needle)
	if idx < 0 {
		return ""
	}
	r := []rune(s)
	start := len([]rune(s[:idx]))
	end := start + len([]rune(needle))

	from := start - radius
	if from < 0 {
		from = 0
	}
	to := end + radius
	if to > len(r) {
		to = len(r)
	}

	out := string(r[from:to])
	if from > 0 {
		out = "..." + out
	}
	if to < len(r) {
		out += "..."
	}
	return out
}
