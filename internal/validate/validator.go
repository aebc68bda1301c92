package validate

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/eleven-am/consult-backend/internal/dto"
	"github.com/eleven-am/consult-backend/internal/shared"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

const couponCodeTag = "coupon_code"

var couponCodeRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{3,32}$`)

// Validator plugs go-playground/validator into echo's c.Validate.
type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation(couponCodeTag, func(fl validator.FieldLevel) bool {
		return couponCodeRegex.MatchString(fl.Field().String())
	})

	return &Validator{v: v}
}

func (cv *Validator) Validate(i any) error {
	err := cv.v.Struct(i)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return shared.BadRequest("invalid_request", err.Error())
	}

	details := make([]dto.ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details = append(details, dto.ValidationError{
			Field:   fe.Field(),
			Message: message(fe),
		})
	}

	return shared.NewAPIError("validation_failed", "request validation failed").
		WithDetails(details).
		ToHTTP(400)
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "url":
		return "must be a valid URL"
	case couponCodeTag:
		return "only letters, digits, '-' and '_' are allowed (3-32 characters)"
	default:
		return fmt.Sprintf("failed on '%s'", fe.Tag())
	}
}

// Bind binds the request body and validates it in one step.
func Bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return shared.BadRequest("invalid_request", "invalid request body")
	}
	return c.Validate(req)
}
