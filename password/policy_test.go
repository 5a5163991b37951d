package password

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPolicyRejectsCommonPassword(t *testing.T) {
	res := DefaultPolicy().Validate("password", UserData{})
	require.False(t, res.Valid)
	require.Contains(t, res.Violations, ViolationCommon)
}

func TestPolicyAcceptsStrongPassword(t *testing.T) {
	res := DefaultPolicy().Validate("Str0ng&Secure!", UserData{Username: "alice", Email: "alice@example.com", Name: "Alice Liddell"})
	require.True(t, res.Valid, "violations: %v", res.Violations)
	require.Empty(t, res.Violations)
	require.GreaterOrEqual(t, res.Score, 4)
	require.Equal(t, StrengthStrong, res.Strength)
}

func TestPolicyRejectsUsername(t *testing.T) {
	res := DefaultPolicy().Validate("Xalice9&Secure!", UserData{Username: "Alice"})
	require.False(t, res.Valid)
	require.Equal(t, []Violation{ViolationContainsUser}, res.Violations)
}

func TestPolicyUserDataFragments(t *testing.T) {
	p := DefaultPolicy()

	res := p.Validate("Bob.Smith#2024x", UserData{Email: "bob.smith@corp.example"})
	require.Contains(t, res.Violations, ViolationContainsEmail)

	res = p.Validate("Liddell#2024xyz", UserData{Name: "Al Liddell"})
	require.Contains(t, res.Violations, ViolationContainsName)

	// two-letter fragments are ignored
	res = p.Validate("Str0ng&Secure!", UserData{Username: "st", Name: "Al"})
	require.True(t, res.Valid)
}

func TestPolicyClassesAndLength(t *testing.T) {
	p := DefaultPolicy()

	res := p.Validate("abc", UserData{})
	require.False(t, res.Valid)
	require.Contains(t, res.Violations, ViolationTooShort)
	require.Contains(t, res.Violations, ViolationNoUpper)
	require.Contains(t, res.Violations, ViolationNoDigit)
	require.Contains(t, res.Violations, ViolationNoSpecial)
	require.Equal(t, StrengthWeak, res.Strength)

	p.MaxLength = 10
	res = p.Validate("Aa1!Aa1!Aa1!", UserData{})
	require.Contains(t, res.Violations, ViolationTooLong)
}

func TestPolicyScoreCap(t *testing.T) {
	res := DefaultPolicy().Validate("AB12!!cdEFgh34??", UserData{})
	require.True(t, res.Valid)
	require.Equal(t, 8, res.Score)
}

func TestIsCommonIgnoresCase(t *testing.T) {
	require.True(t, IsCommon("QWERTY"))
	require.False(t, IsCommon("Str0ng&Secure!"))
}
