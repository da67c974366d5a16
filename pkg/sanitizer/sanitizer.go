package sanitizer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

const maxSourceLength = 128

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// baseName keeps the last path element of a client supplied file name,
// whichever separator the client used.
func baseName(s string) string {
	if i := strings.LastIndexAny(s, `/\`); i >= 0 {
		return s[i+1:]
	}
	return s
}

func truncate(limit int) Strategy {
	return func(s string) string {
		if utf8.RuneCountInString(s) <= limit {
			return s
		}
		return string([]rune(s)[:limit])
	}
}

// SanitizeSource cleans the label recorded with an ingested batch, usually an
// uploaded file name.
func SanitizeSource(input string) string {
	p := Pipeline{
		stripControl,
		strings.TrimSpace,
		baseName,
		TrimAndNormalize,
		truncate(maxSourceLength),
		strings.TrimSpace,
	}
	return p.Apply(input)
}

// NormalizePlate collapses whitespace in a vehicle number. Case is kept so the
// result still matches stored plates exactly.
func NormalizePlate(plate string) string {
	p := Pipeline{
		stripControl,
		TrimAndNormalize,
	}
	return p.Apply(plate)
}

// NormalizeChoice canonicalizes a filter choice such as "female" or " TRUE "
// to its capitalized form ("Female", "True").
func NormalizeChoice(choice string) string {
	s := strings.ToLower(TrimAndNormalize(choice))
	if s == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

func SanitizeSlice(values []string, strategy Strategy) []string {
	seen := make(map[string]struct{})
	out := []string{}

	for _, v := range values {
		s := strategy(v)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	return out
}
