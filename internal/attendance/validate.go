package attendance

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// emailSeparator splits the bulk-add field
const emailSeparator = ", "

var emailPattern = regexp.MustCompile("^[a-zA-Z0-9.!#$%&'*+/=?^_`{|}~-]+@[a-zA-Z0-9-]+(?:\\.[a-zA-Z0-9-]+)*$")

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func emailValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		if err := validate.RegisterValidation("clubemail", func(fl validator.FieldLevel) bool {
			return emailPattern.MatchString(fl.Field().String())
		}); err != nil {
			panic(err)
		}
	})
	return validate
}

// InvalidEmailError names the first address that failed validation
type InvalidEmailError struct {
	Email string
}

func (e *InvalidEmailError) Error() string {
	return fmt.Sprintf("invalid email address: %q", e.Email)
}

// SplitEmails splits the raw bulk-add input
func SplitEmails(raw string) []string {
	return strings.Split(raw, emailSeparator)
}

// ValidateEmails splits raw on ", " and checks every address. It stops at the
// first invalid one.
func ValidateEmails(raw string) ([]string, error) {
	emails := SplitEmails(raw)
	v := emailValidator()
	for _, email := range emails {
		if err := v.Var(email, "required,clubemail"); err != nil {
			return nil, &InvalidEmailError{Email: email}
		}
	}
	return emails, nil
}
