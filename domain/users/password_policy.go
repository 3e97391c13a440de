package users

import (
	"fmt"
	"unicode"
)

// DefaultMinLength is used when a Policy leaves MinLength unset.
const DefaultMinLength = 8

// Policy is the password rule set: a minimum length plus at least one letter
// and one digit.
type Policy struct {
	MinLength int
}

// PolicyError explains why a password was rejected.
type PolicyError struct {
	Reason string
}

func (e *PolicyError) Error() string {
	return "weak password: " + e.Reason
}

func (p Policy) Validate(password string) error {
	min := p.MinLength
	if min <= 0 {
		min = DefaultMinLength
	}
	if len([]rune(password)) < min {
		return &PolicyError{Reason: fmt.Sprintf("must be at least %d characters", min)}
	}

	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return &PolicyError{Reason: "must include a letter and a digit"}
	}
	return nil
}
