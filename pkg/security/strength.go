// Package security provides password strength analysis for lockbox.
package security

import "unicode"

// Strength represents the estimated strength of a master or export password.
type Strength int

const (
	// StrengthWeak indicates a password below the minimum acceptable bar.
	StrengthWeak Strength = iota
	// StrengthFair indicates a minimally acceptable password.
	StrengthFair
	// StrengthGood indicates a good password.
	StrengthGood
	// StrengthStrong indicates a strong password.
	StrengthStrong
	// StrengthVeryStrong indicates a long password with full class variety.
	StrengthVeryStrong
)

// String returns a human-readable representation of the strength level.
func (s Strength) String() string {
	switch s {
	case StrengthWeak:
		return "weak"
	case StrengthFair:
		return "fair"
	case StrengthGood:
		return "good"
	case StrengthStrong:
		return "strong"
	case StrengthVeryStrong:
		return "very strong"
	default:
		return "unknown"
	}
}

// Evaluate scores a password from length tiers and character-class variety.
// Pure function, no side effects; suitable for live feedback while typing.
func Evaluate(password string) Strength {
	length := len(password)
	if length < 8 {
		return StrengthWeak
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSpecial = true
		}
	}

	variety := 0
	for _, has := range []bool{hasUpper, hasLower, hasDigit, hasSpecial} {
		if has {
			variety++
		}
	}

	switch {
	case variety >= 4 && length >= 20:
		return StrengthVeryStrong
	case variety >= 3 && length >= 16:
		return StrengthStrong
	case variety >= 2 && length >= 12:
		return StrengthGood
	case variety >= 2 || length >= 12:
		return StrengthFair
	default:
		return StrengthWeak
	}
}
