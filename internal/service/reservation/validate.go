package reservation

import (
	"errors"
	"reflect"
	"strings"
	"unicode"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/go-playground/validator/v10"
)

// CreateBookingInput is one booking request. SeatID is optional; without it
// the request goes straight to the RAC/waitlist fallback.
type CreateBookingInput struct {
	UserID        int64  `json:"user_id" validate:"gt=0"`
	TrainID       int64  `json:"train_id" validate:"gt=0"`
	RouteID       int64  `json:"route_id" validate:"gt=0"`
	SeatID        *int64 `json:"seat_id,omitempty" validate:"omitempty,gt=0"`
	PassengerName string `json:"passenger_name" validate:"required,max=100,passenger_name"`
	PassengerAge  int    `json:"passenger_age" validate:"min=1,max=120"`
}

func (in CreateBookingInput) Scope() domain.Scope {
	return domain.NewScope(in.TrainID, in.RouteID)
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.Split(f.Tag.Get("json"), ",")[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("passenger_name", validPassengerName)
	return v
}

// validPassengerName accepts letters, spaces and the punctuation found in
// real names.
func validPassengerName(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	hasLetter := false
	for _, r := range name {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case r == ' ' || r == '.' || r == '\'' || r == '-':
		default:
			return false
		}
	}
	return hasLetter
}

func (c *Coordinator) validate(in *CreateBookingInput) error {
	in.PassengerName = strings.Join(strings.Fields(in.PassengerName), " ")

	err := c.validator.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return &domain.ValidationError{Field: "request", Reason: err.Error()}
	}
	fe := fieldErrors[0]
	return &domain.ValidationError{Field: fe.Field(), Reason: reason(fe)}
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be positive"
	case "min", "max":
		if fe.Kind() == reflect.String {
			return "must be at most " + fe.Param() + " characters"
		}
		return "must be between 1 and 120"
	case "passenger_name":
		return "must contain only letters, spaces and . ' -"
	default:
		return "is invalid"
	}
}
