package request

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/ssh"
)

// maxFormMemory bounds the in-memory part of a multipart body.
const maxFormMemory = 1 << 20

var validate = validator.New()

func init() {
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("form"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	validate.RegisterValidation("authorized_key", func(fl validator.FieldLevel) bool {
		_, _, _, _, err := ssh.ParseAuthorizedKey([]byte(fl.Field().String()))
		return err == nil
	})
}

// ParseForm parses an urlencoded or multipart body into r.PostForm.
func ParseForm(r *http.Request) error {
	err := r.ParseMultipartForm(maxFormMemory)
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return fmt.Errorf("invalid form: %w", err)
	}
	return nil
}

// Validate runs struct validation and flattens failures into one readable error.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validation error: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s needs at least %s entries", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "authorized_key":
		return field + " is not a valid public key"
	case "hostname_rfc1123|ip":
		return field + " must be an IP address or a DNS name made of letters, digits, hyphens and dots, without a trailing dot"
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
