// Package parser recovers a JSON document from free-form model output.
package parser

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// ParseFailure is returned when no usable JSON document could be recovered.
// Raw holds the text exactly as received.
type ParseFailure struct {
	Raw    string
	Reason string
	Err    error
}

func (p *ParseFailure) Error() string {
	if p.Err != nil {
		return fmt.Sprintf("parse failure: %s: %v", p.Reason, p.Err)
	}
	return "parse failure: " + p.Reason
}

func (p *ParseFailure) Unwrap() error {
	return p.Err
}

var fence = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)\\s*```")

var whitespace = strings.NewReplacer(
	"\u00a0", " ",
	"\ufeff", "",
)

var quotes = strings.NewReplacer(
	"\u201c", `"`,
	"\u201d", `"`,
	"\u2018", "'",
	"\u2019", "'",
)

// Extract returns the bytes of the first JSON object or array found in raw.
// The result is always valid JSON.
func Extract(raw string) ([]byte, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, &ParseFailure{Raw: raw, Reason: "empty input"}
	}

	s := raw
	if m := fence.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	s = whitespace.Replace(s)

	start := strings.IndexAny(s, "{[")
	if start == -1 {
		return nil, &ParseFailure{Raw: raw, Reason: "no JSON start character"}
	}

	span, ok := balancedSpan(s, start)
	if !ok {
		span, ok = lastMatchSpan(s, start)
		if !ok {
			return nil, &ParseFailure{Raw: raw, Reason: "no matching JSON end character"}
		}
	}
	span = stripControl(span)

	if json.Valid([]byte(span)) {
		return []byte(span), nil
	}

	repaired := repair(quotes.Replace(span))
	var doc any
	if err := json.Unmarshal([]byte(repaired), &doc); err != nil {
		return nil, &ParseFailure{Raw: raw, Reason: "invalid JSON after repair", Err: err}
	}
	return []byte(repaired), nil
}

// Parse returns the recovered document as a map[string]any or []any.
func Parse(raw string) (any, error) {
	data, err := Extract(raw)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &ParseFailure{Raw: raw, Reason: "decode", Err: err}
	}
	return out, nil
}

// Decode recovers the document in raw and unmarshals it into dst.
func Decode(raw string, dst any) error {
	data, err := Extract(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return &ParseFailure{Raw: raw, Reason: "decode", Err: err}
	}
	return nil
}

// stripControl removes BOM, C0 and C1 control characters.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\ufeff' || unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
