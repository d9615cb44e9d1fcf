package scheduling

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type BookCommand struct {
	CallerID   int64     `validate:"required,gt=0"`
	ProviderID int64     `validate:"required,gt=0"`
	Date       time.Time `validate:"required"`
}

type ListQuery struct {
	CallerID int64 `validate:"required,gt=0"`
	Page     int   `validate:"gte=0"`
}

type CancelCommand struct {
	CallerID      int64 `validate:"required,gt=0"`
	AppointmentID int64 `validate:"required,gt=0"`
}

func (c BookCommand) Validate() error   { return check(c) }
func (q ListQuery) Validate() error     { return check(q) }
func (c CancelCommand) Validate() error { return check(c) }

// check runs struct validation and folds the result into ErrValidation with
// the first offending field named.
func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("%w: %s failed on %q", ErrValidation, fe.Field(), fe.Tag())
	}
	return fmt.Errorf("%w: %v", ErrValidation, err)
}
