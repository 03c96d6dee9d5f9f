package security

import (
	"fmt"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"

	"github.com/arklim/authflow/internal/core/port"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 100
)

// PasswordValidationError represents a single password policy violation.
type PasswordValidationError struct {
	Code    string
	Message string
}

func (e *PasswordValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// PasswordRule validates a password according to a specific policy rule.
type PasswordRule interface {
	Validate(password string) error
}

// PasswordRuleFunc adapts a function to be used as a PasswordRule.
type PasswordRuleFunc func(password string) error

func (f PasswordRuleFunc) Validate(password string) error {
	return f(password)
}

// PasswordValidator applies a sequence of password rules and reports the
// first violation.
type PasswordValidator struct {
	rules []PasswordRule
}

var _ port.PasswordValidator = (*PasswordValidator)(nil)

// NewPasswordValidator constructs a validator with the provided rules.
func NewPasswordValidator(rules ...PasswordRule) *PasswordValidator {
	copied := make([]PasswordRule, len(rules))
	copy(copied, rules)
	return &PasswordValidator{rules: copied}
}

// DefaultPasswordValidator enforces 8..100 characters with at least one
// lowercase letter, one uppercase letter and one digit. A positive
// minStrength additionally requires that zxcvbn score.
func DefaultPasswordValidator(minStrength int) *PasswordValidator {
	return NewPasswordValidator(
		LengthRule(minPasswordLength, maxPasswordLength),
		RequireLowerRule(),
		RequireUpperRule(),
		RequireDigitRule(),
		RequirePasswordStrengthRule(minStrength),
	)
}

func (v *PasswordValidator) Validate(password string) error {
	if v == nil {
		return fmt.Errorf("password validator not configured")
	}
	for _, rule := range v.rules {
		if err := rule.Validate(password); err != nil {
			return err
		}
	}
	return nil
}

// LengthRule bounds the password length in runes.
func LengthRule(min, max int) PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		n := len([]rune(password))
		if n < min {
			return &PasswordValidationError{
				Code:    "min_length",
				Message: fmt.Sprintf("password must be at least %d characters long", min),
			}
		}
		if max > 0 && n > max {
			return &PasswordValidationError{
				Code:    "max_length",
				Message: fmt.Sprintf("password must be at most %d characters long", max),
			}
		}
		return nil
	})
}

func requireClass(code, message string, match func(rune) bool) PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		for _, r := range password {
			if match(r) {
				return nil
			}
		}
		return &PasswordValidationError{Code: code, Message: message}
	})
}

// RequireLowerRule ensures the password contains a lowercase letter.
func RequireLowerRule() PasswordRule {
	return requireClass("lowercase", "password must include at least one lowercase letter", unicode.IsLower)
}

// RequireUpperRule ensures the password contains an uppercase letter.
func RequireUpperRule() PasswordRule {
	return requireClass("uppercase", "password must include at least one uppercase letter", unicode.IsUpper)
}

// RequireDigitRule ensures the password contains at least one digit.
func RequireDigitRule() PasswordRule {
	return requireClass("digit", "password must include at least one digit", unicode.IsDigit)
}

// RequirePasswordStrengthRule enforces a minimum zxcvbn score. A score of
// zero or below disables the rule.
func RequirePasswordStrengthRule(minScore int, userInputs ...string) PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		if minScore <= 0 {
			return nil
		}
		if minScore > 4 {
			minScore = 4
		}

		result := zxcvbn.PasswordStrength(password, userInputs)
		if result.Score >= minScore {
			return nil
		}

		return &PasswordValidationError{
			Code:    "weak_password",
			Message: "password is too weak; choose a more complex value",
		}
	})
}
