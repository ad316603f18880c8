package auth

import (
	stderrors "errors"
	"messenger/errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

const MinPasswordLength = 6

var validate = validator.New()

type Credentials struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6,max=72"`
}

// NormalizeEmail trims and lower-cases an address before it is used as a key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateRegistration maps validation failures to identity provider codes.
func ValidateRegistration(c Credentials) error {
	return toAuthError(validate.Struct(c), errors.AuthWeakPassword)
}

// ValidateLogin only requires a well formed e-mail and a password.
func ValidateLogin(c Credentials) error {
	if err := validate.Var(c.Email, "required,email"); err != nil {
		return errors.NewAuthError(errors.AuthInvalidEmail)
	}
	if c.Password == "" {
		return errors.NewAuthError(errors.AuthInvalidCredential)
	}
	return nil
}

func toAuthError(err error, passwordCode errors.AuthCode) error {
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !stderrors.As(err, &validationErrors) || len(validationErrors) == 0 {
		return err
	}
	if validationErrors[0].Field() == "Email" {
		return errors.NewAuthError(errors.AuthInvalidEmail)
	}
	return errors.NewAuthError(passwordCode)
}
