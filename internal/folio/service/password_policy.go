package service

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/nbutton23/zxcvbn-go"
)

// PasswordPolicy enforces composition rules and a minimum guessability score.
type PasswordPolicy struct {
	MinLength int
	MaxLength int
	// MinScore is the lowest acceptable zxcvbn score (0-4).
	MinScore int
}

// DefaultPasswordPolicy requires 12-128 characters, all four character
// classes and a score of at least 3.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{MinLength: 12, MaxLength: 128, MinScore: 3}
}

// PolicyResult is the outcome of Evaluate. Suggestions are advisory and never
// affect Valid.
type PolicyResult struct {
	Valid       bool     `json:"valid"`
	Score       int      `json:"score"`
	Errors      []string `json:"errors"`
	Suggestions []string `json:"suggestions"`
}

// Base words that make a password guessable no matter how they are decorated
// with capitals, digits and symbols.
var commonBases = []string{
	"password", "passw0rd", "welcome", "letmein", "admin", "administrator",
	"qwerty", "qwertyuiop", "iloveyou", "monkey", "dragon", "sunshine",
	"football", "baseball", "princess", "changeme", "secret", "master",
	"abc", "abcdef", "login", "trustno", "default", "folio",
}

var leet = strings.NewReplacer(
	"0", "o", "1", "l", "3", "e", "4", "a", "5", "s", "7", "t", "@", "a", "$", "s", "!", "i",
)

// Evaluate scores candidate. userInputs (email, name, ...) are treated as
// dictionary words by the estimator.
func (p PasswordPolicy) Evaluate(candidate string, userInputs ...string) PolicyResult {
	res := PolicyResult{Errors: []string{}, Suggestions: []string{}}

	n := utf8.RuneCountInString(candidate)
	if n < p.MinLength {
		res.Errors = append(res.Errors, fmt.Sprintf("must be at least %d characters", p.MinLength))
	}
	if n > p.MaxLength {
		res.Errors = append(res.Errors, fmt.Sprintf("must be at most %d characters", p.MaxLength))
		// The estimator is quadratic in length; refuse to score huge inputs.
		return res
	}

	var upper, lower, digit, symbol bool
	for _, r := range candidate {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case !unicode.IsLetter(r):
			symbol = true
		}
	}
	if !upper {
		res.Errors = append(res.Errors, "must contain an uppercase letter")
	}
	if !lower {
		res.Errors = append(res.Errors, "must contain a lowercase letter")
	}
	if !digit {
		res.Errors = append(res.Errors, "must contain a digit")
	}
	if !symbol {
		res.Errors = append(res.Errors, "must contain a symbol")
	}

	inputs := expandUserInputs(userInputs)
	strength := zxcvbn.PasswordStrength(candidate, inputs)
	res.Score = strength.Score

	if base, ok := commonBase(candidate, inputs); ok {
		res.Score = min(res.Score, 1)
		res.Errors = append(res.Errors, fmt.Sprintf("is based on a common word (%q)", base))
	}
	if res.Score < p.MinScore {
		res.Errors = append(res.Errors, "is too easy to guess")
	}

	seen := make(map[string]bool)
	for _, m := range strength.MatchSequence {
		if s := suggestionFor(m.Pattern); s != "" && !seen[s] {
			seen[s] = true
			res.Suggestions = append(res.Suggestions, s)
		}
	}
	if res.Score < 4 && !seen[suggestLonger] {
		res.Suggestions = append(res.Suggestions, suggestLonger)
	}

	res.Valid = len(res.Errors) == 0
	return res
}

const suggestLonger = "Add another word or two. Uncommon words are better."

func suggestionFor(pattern string) string {
	switch pattern {
	case "dictionary":
		return "Avoid common words and names, even with substitutions like @ for a."
	case "spatial":
		return "Avoid keyboard patterns such as qwerty or asdf."
	case "repeat":
		return "Avoid repeated characters and words."
	case "sequence":
		return "Avoid sequences such as abc or 123."
	case "date", "year":
		return "Avoid dates and years that are associated with you."
	}
	return ""
}

// commonBase strips decoration from candidate and reports whether what is
// left is a well-known base word or one of the user inputs.
func commonBase(candidate string, userInputs []string) (string, bool) {
	core := strings.ToLower(candidate)
	core = strings.TrimRightFunc(core, func(r rune) bool { return !unicode.IsLetter(r) })
	core = strings.TrimLeftFunc(core, func(r rune) bool { return !unicode.IsLetter(r) })
	if core == "" {
		return "", false
	}
	plain := leet.Replace(core)

	for _, base := range commonBases {
		if core == base || plain == base || plain == leet.Replace(base) {
			return base, true
		}
	}
	for _, in := range userInputs {
		if len(in) >= 4 && (plain == in || core == in) {
			return in, true
		}
	}
	return "", false
}

// expandUserInputs lower-cases inputs and splits emails into their parts.
func expandUserInputs(inputs []string) []string {
	out := make([]string, 0, len(inputs)*2)
	for _, in := range inputs {
		in = strings.ToLower(strings.TrimSpace(in))
		if in == "" {
			continue
		}
		out = append(out, in)
		if local, _, ok := strings.Cut(in, "@"); ok && local != "" {
			out = append(out, local)
		}
		for _, f := range strings.FieldsFunc(in, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) }) {
			if len(f) >= 3 && f != in {
				out = append(out, f)
			}
		}
	}
	return out
}
