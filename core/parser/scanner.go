package parser

import (
	"regexp"
	"strings"
)

// balancedSpan returns the JSON value starting at s[start] by tracking
// nesting depth. Delimiters inside string literals are ignored and escape
// sequences are honoured. Scanning bytes is safe for the ASCII delimiters
// because UTF-8 continuation bytes never collide with them.
func balancedSpan(s string, start int) (string, bool) {
	var (
		stack    []byte
		inString bool
		escape   bool
	)

	for i := start; i < len(s); i++ {
		b := s[i]

		if escape {
			escape = false
			continue
		}
		if inString {
			switch b {
			case '\\':
				escape = true
			case '"':
				inString = false
			}
			continue
		}

		switch b {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != b {
				return "", false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// lastMatchSpan takes everything up to the last occurrence of the closing
// character that complements s[start]. It is only used when the depth scan
// cannot close the value, typically because the model used quote characters
// the scanner does not recognise.
func lastMatchSpan(s string, start int) (string, bool) {
	closing := byte('}')
	if s[start] == '[' {
		closing = ']'
	}
	end := strings.LastIndexByte(s, closing)
	if end < start {
		return "", false
	}
	return s[start : end+1], true
}

var (
	bareKey        = regexp.MustCompile(`([{,]\s*)'?([A-Za-z0-9_]+)'?\s*:`)
	singleQuoted   = regexp.MustCompile(`:\s*'([^']*)'`)
	plusNumber     = regexp.MustCompile(`:\s*\+([0-9.]+)`)
	trailingCommas = regexp.MustCompile(`,\s*([}\]])`)
)

// repair fixes the syntax slips models make most often: unquoted or
// single-quoted keys, single-quoted values, explicit plus signs and
// trailing commas.
func repair(s string) string {
	s = bareKey.ReplaceAllString(s, `$1"$2":`)
	s = singleQuoted.ReplaceAllStringFunc(s, func(m string) string {
		inner := singleQuoted.FindStringSubmatch(m)[1]
		return `:"` + strings.ReplaceAll(inner, `"`, `\"`) + `"`
	})
	s = plusNumber.ReplaceAllString(s, `:$1`)
	s = trailingCommas.ReplaceAllString(s, `$1`)
	return s
}
