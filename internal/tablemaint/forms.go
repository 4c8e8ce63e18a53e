package tablemaint

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Forms validates submitted form structs tagged with `form` and `validate`.
type Forms struct {
	validate *validator.Validate
}

// NewForms constructs a Forms validator.
func NewForms() *Forms {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("form"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Forms{validate: v}
}

// Check returns field errors keyed by form name, or nil when the struct is valid.
func (f *Forms) Check(form any) map[string]string {
	err := f.validate.Struct(form)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"general": err.Error()}
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		if _, exists := out[fe.Field()]; exists {
			continue
		}
		out[fe.Field()] = message(fe)
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Invalid email address."
	case "max":
		return fmt.Sprintf("Field cannot be longer than %s characters.", fe.Param())
	case "datetime":
		return "Not a valid date value (YYYY-MM-DD)."
	case "gt":
		return "Not a valid choice."
	default:
		return fmt.Sprintf("Failed the %q check.", fe.Tag())
	}
}
