package password

import (
	_ "embed"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

//go:embed common.txt
var commonList string

var commonPasswords = func() map[string]struct{} {
	set := make(map[string]struct{})
	for _, line := range strings.Split(commonList, "\n") {
		line = strings.ToLower(strings.TrimSpace(line))
		if line != "" {
			set[line] = struct{}{}
		}
	}
	return set
}()

const (
	maxScore        = 8
	minValidScore   = 4
	minFragmentSize = 3
	specialChars    = `!@#$%^&*(),.?":{}|<>-_+=~;'/\[]` + "`"
)

// Strength is a coarse bucket over [Result.Score].
type Strength string

const (
	StrengthWeak   Strength = "weak"
	StrengthFair   Strength = "fair"
	StrengthStrong Strength = "strong"
)

// Violation identifies one failed policy rule.
type Violation string

const (
	ViolationTooShort       Violation = "too_short"
	ViolationTooLong        Violation = "too_long"
	ViolationNoUpper        Violation = "missing_uppercase"
	ViolationNoLower        Violation = "missing_lowercase"
	ViolationNoDigit        Violation = "missing_digit"
	ViolationNoSpecial      Violation = "missing_special"
	ViolationCommon         Violation = "common_password"
	ViolationContainsUser   Violation = "contains_username"
	ViolationContainsEmail  Violation = "contains_email"
	ViolationContainsName   Violation = "contains_name"
	ViolationTooWeak        Violation = "too_weak"
)

// Policy configures [Policy.Validate]. Lengths count runes.
type Policy struct {
	MinLength      int
	MaxLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireDigit   bool
	RequireSpecial bool
	RejectCommon   bool
	RejectUserData bool
}

// DefaultPolicy requires 8 to 128 characters with every character class.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:      8,
		MaxLength:      128,
		RequireUpper:   true,
		RequireLower:   true,
		RequireDigit:   true,
		RequireSpecial: true,
		RejectCommon:   true,
		RejectUserData: true,
	}
}

// UserData is the account data a password must not contain.
type UserData struct {
	Username string
	Email    string
	Name     string
}

// Result is the outcome of a policy check.
type Result struct {
	Valid      bool
	Score      int
	Strength   Strength
	Violations []Violation
	Feedback   []string
}

// Validate scores pw and collects every violated rule. The password is valid
// only when nothing is violated and the score reaches 4 of 8.
func (p Policy) Validate(pw string, user UserData) Result {
	var (
		res    Result
		counts charCounts
	)
	counts.scan(pw)
	length := utf8.RuneCountInString(pw)

	fail := func(v Violation, msg string) {
		res.Violations = append(res.Violations, v)
		res.Feedback = append(res.Feedback, msg)
	}

	if length < p.MinLength {
		fail(ViolationTooShort, fmt.Sprintf("password must be at least %d characters", p.MinLength))
	} else {
		res.Score++
	}
	if p.MaxLength > 0 && length > p.MaxLength {
		fail(ViolationTooLong, fmt.Sprintf("password must be at most %d characters", p.MaxLength))
	}

	classes := []struct {
		n        int
		required bool
		v        Violation
		msg      string
	}{
		{counts.upper, p.RequireUpper, ViolationNoUpper, "password must contain an uppercase letter"},
		{counts.lower, p.RequireLower, ViolationNoLower, "password must contain a lowercase letter"},
		{counts.digit, p.RequireDigit, ViolationNoDigit, "password must contain a digit"},
		{counts.special, p.RequireSpecial, ViolationNoSpecial, "password must contain a special character"},
	}
	for _, c := range classes {
		switch {
		case c.n > 0:
			res.Score++
		case c.required:
			fail(c.v, c.msg)
		}
	}

	lower := strings.ToLower(pw)
	if p.RejectCommon && IsCommon(pw) {
		fail(ViolationCommon, "password is too common")
	}
	if p.RejectUserData {
		if containsFragment(lower, user.Username) {
			fail(ViolationContainsUser, "password must not contain the username")
		}
		local, _, _ := strings.Cut(user.Email, "@")
		if containsFragment(lower, local) {
			fail(ViolationContainsEmail, "password must not contain the email address")
		}
		for _, part := range strings.Fields(user.Name) {
			if containsFragment(lower, part) {
				fail(ViolationContainsName, "password must not contain parts of the name")
				break
			}
		}
	}

	if length >= 12 {
		res.Score++
	}
	if counts.upper >= 2 {
		res.Score++
	}
	if counts.digit >= 2 {
		res.Score++
	}
	if counts.special >= 2 {
		res.Score++
	}
	if res.Score > maxScore {
		res.Score = maxScore
	}

	if len(res.Violations) == 0 && res.Score < minValidScore {
		fail(ViolationTooWeak, "password is too weak")
	}

	res.Valid = len(res.Violations) == 0
	res.Strength = strengthOf(res.Score)
	return res
}

// IsCommon reports whether pw appears in the embedded common-password list,
// ignoring case.
func IsCommon(pw string) bool {
	_, ok := commonPasswords[strings.ToLower(pw)]
	return ok
}

func containsFragment(lowerPw, fragment string) bool {
	fragment = strings.ToLower(strings.TrimSpace(fragment))
	if utf8.RuneCountInString(fragment) < minFragmentSize {
		return false
	}
	return strings.Contains(lowerPw, fragment)
}

func strengthOf(score int) Strength {
	switch {
	case score >= 7:
		return StrengthStrong
	case score >= minValidScore:
		return StrengthFair
	default:
		return StrengthWeak
	}
}

type charCounts struct {
	upper, lower, digit, special int
}

func (c *charCounts) scan(pw string) {
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			c.upper++
		case unicode.IsLower(r):
			c.lower++
		case unicode.IsDigit(r):
			c.digit++
		case strings.ContainsRune(specialChars, r):
			c.special++
		}
	}
}
