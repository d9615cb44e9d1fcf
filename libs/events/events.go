// Package events holds the payload contracts shared by booking-service and
// notification-service.
package events

import "time"

const (
	TypeAppointmentBooked     = "appointment.booked.v1"
	TypeAppointmentCancelled  = "appointment.cancelled.v1"
	TypeCancellationRequested = "mail.cancellation.requested.v1"
	TypeCancellationDead      = "mail.cancellation.dead.v1"

	// KindCancellationMail is the job kind cancellation requests are queued under.
	KindCancellationMail = "cancellation-mail"
)

type Party struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// CancellationRequested is the appointment snapshot taken inside the
// cancelling transaction. The mail worker renders from it and never reads
// the appointment row.
type CancellationRequested struct {
	AppointmentID int64     `json:"appointment_id"`
	Date          time.Time `json:"date"`
	CanceledAt    time.Time `json:"canceled_at"`
	Requester     Party     `json:"requester"`
	Provider      Party     `json:"provider"`
}

type AppointmentBooked struct {
	AppointmentID int64     `json:"appointment_id"`
	RequesterID   int64     `json:"requester_id"`
	ProviderID    int64     `json:"provider_id"`
	Date          time.Time `json:"date"`
}

type AppointmentCancelled struct {
	AppointmentID int64     `json:"appointment_id"`
	RequesterID   int64     `json:"requester_id"`
	ProviderID    int64     `json:"provider_id"`
	Date          time.Time `json:"date"`
	CanceledAt    time.Time `json:"canceled_at"`
}
