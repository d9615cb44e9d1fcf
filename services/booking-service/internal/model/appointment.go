package model

import "time"

type Appointment struct {
	ID          int64      `json:"id"`
	RequesterID int64      `json:"user_id"`
	ProviderID  int64      `json:"provider_id"`
	Date        time.Time  `json:"date"`
	CanceledAt  *time.Time `json:"canceled_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (a Appointment) Active() bool { return a.CanceledAt == nil }

// ProviderSummary is the provider projection shown next to a listed
// appointment.
type ProviderSummary struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Avatar *File  `json:"avatar"`
}

type AppointmentListing struct {
	Appointment
	Past       bool            `json:"past"`
	Cancelable bool            `json:"cancelable"`
	Provider   ProviderSummary `json:"provider"`
}
