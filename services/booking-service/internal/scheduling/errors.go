package scheduling

import "errors"

var (
	ErrValidation               = errors.New("validation failed")
	ErrUnknownCaller            = errors.New("caller not found")
	ErrNotAProvider             = errors.New("you can only create appointments with providers")
	ErrSelfBooking              = errors.New("you can not create an appointment with yourself")
	ErrPastDate                 = errors.New("past dates are not permitted")
	ErrSlotUnavailable          = errors.New("appointment date is not available")
	ErrNotFound                 = errors.New("appointment not found")
	ErrForbidden                = errors.New("you don't have permission to cancel this appointment")
	ErrAlreadyCanceled          = errors.New("appointment already canceled")
	ErrCancellationWindowClosed = errors.New("you can only cancel appointments 2 hours in advance")
)
