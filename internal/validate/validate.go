// Package validate wraps go-playground/validator with English messages and
// JSON field names, and defines the error type for rejected input.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

const (
	notBlankTag = "notblank"
	objectIDTag = "mongodb"
)

var (
	validate   *validator.Validate
	translator ut.Translator
)

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation(notBlankTag, func(fl validator.FieldLevel) bool {
		if str, ok := fl.Field().Interface().(string); ok {
			return strings.TrimSpace(str) != ""
		}
		return false
	})
	registerMessage(notBlankTag, "{0} cannot be blank")
	registerMessage(objectIDTag, "{0} must be a valid identifier")
}

func registerMessage(tag, text string) {
	_ = validate.RegisterTranslation(tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, true) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// RegisterSet registers tag as a validation accepting only the given values.
// Values may contain spaces, which oneof cannot express.
func RegisterSet(tag string, values ...string) {
	allowed := make(map[string]struct{}, len(values))
	for _, value := range values {
		allowed[value] = struct{}{}
	}
	_ = validate.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		_, ok := allowed[fl.Field().String()]
		return ok
	})
	registerMessage(tag, "{0} must be one of "+strings.Join(values, ", "))
}

// Error reports rejected input, keyed by JSON field path.
type Error struct {
	Fields map[string]string
}

func (e *Error) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "invalid input"
	}
	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", key, e.Fields[key]))
	}
	return strings.Join(parts, "; ")
}

// Field builds an Error for a single field.
func Field(name, message string) *Error {
	return &Error{Fields: map[string]string{name: message}}
}

// Struct validates v using its `validate` tags.
func Struct(v any) error {
	return convert(validate.Struct(v), "")
}

// Var validates a single value against tag, reporting failures under name.
func Var(name string, value any, tag string) error {
	return convert(validate.Var(value, tag), name)
}

// ObjectID reports whether id is a 24 character hex identifier.
func ObjectID(id string) bool {
	return validate.Var(id, objectIDTag) == nil
}

func convert(err error, name string) error {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &Error{Fields: map[string]string{fieldOr(name, "body"): err.Error()}}
	}
	out := &Error{Fields: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		key := name
		if key == "" {
			key = fieldPath(fe.Namespace())
		}
		message := fe.Translate(translator)
		if name != "" {
			message = strings.Replace(message, fe.Field(), name, 1)
		}
		out.Fields[key] = message
	}
	return out
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(namespace string) string {
	if idx := strings.Index(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}
	return namespace
}

func fieldOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}
