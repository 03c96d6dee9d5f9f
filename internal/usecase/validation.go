package usecase

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

func passwordPolicyError(err error) error {
	return fmt.Errorf("%w: %w", ErrValidation, err)
}

func wrapValidation(err error) error {
	if err == nil {
		return nil
	}
	var internal validation.InternalError
	if errors.As(err, &internal) {
		return fmt.Errorf("validate input: %w", err)
	}
	return fmt.Errorf("%w: %s", ErrValidation, err.Error())
}

// normalizeEmail trims and lowercases an address so that store keys and
// user lookups agree regardless of caller casing.
func normalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func validateEmail(email string) error {
	return wrapValidation(validation.Validate(email,
		validation.Required,
		validation.Length(3, 254),
		is.Email,
	))
}

type signupInput struct {
	Email    string
	Name     string
	Username string
}

func (in *signupInput) normalize() {
	in.Email = normalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	in.Username = strings.ToLower(strings.TrimSpace(in.Username))
}

func (in *signupInput) validate() error {
	return wrapValidation(validation.ValidateStruct(in,
		validation.Field(&in.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&in.Name, validation.Required, validation.Length(2, 50)),
		validation.Field(&in.Username, validation.Length(3, 30), validation.Match(usernamePattern)),
	))
}

type otpInput struct {
	Email string
	Code  string
}

func (in *otpInput) validate() error {
	return wrapValidation(validation.ValidateStruct(in,
		validation.Field(&in.Email, validation.Required, is.Email),
		validation.Field(&in.Code, validation.Required),
	))
}

type credentialInput struct {
	Email             string
	Password          string
	VerificationToken string
}

func (in *credentialInput) validate() error {
	return wrapValidation(validation.ValidateStruct(in,
		validation.Field(&in.Email, validation.Required, is.Email),
		validation.Field(&in.Password, validation.Required),
		validation.Field(&in.VerificationToken, validation.Required),
	))
}
