package model

import (
	"errors"
	"reflect"
	"strings"

	producterrors "github.com/abgdnv/productcatalog/internal/product/errors"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report wire field names rather than Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks that p is complete enough to be stored or rendered.
func Validate(p Product) error {
	return check(p, p.Price)
}

// ValidateDraft checks the fields of a product about to be created.
func ValidateDraft(d Draft) error {
	return check(d, d.Price)
}

func check(v any, price float64) error {
	if !finite(price) {
		return &producterrors.ValidationError{Fields: []producterrors.FieldError{{Field: "productPrice", Rule: "finite"}}}
	}
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}
	fields := make([]producterrors.FieldError, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		fields = append(fields, producterrors.FieldError{Field: fieldErr.Field(), Rule: fieldErr.Tag()})
	}
	return &producterrors.ValidationError{Fields: fields}
}
