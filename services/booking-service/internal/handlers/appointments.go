package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/md-rashed-zaman/gobarber/libs/auth"
	"github.com/md-rashed-zaman/gobarber/libs/httpx"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/scheduling"
)

type bookRequest struct {
	ProviderID int64     `json:"provider_id"`
	Date       time.Time `json:"date"`
}

func (a *API) BookAppointment(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerID(r.Context())
	if !ok {
		a.writeError(w, r, errUnauthenticated)
		return
	}
	var req bookRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		a.writeError(w, r, fmt.Errorf("%w: %v", scheduling.ErrValidation, err))
		return
	}
	cmd := scheduling.BookCommand{CallerID: caller, ProviderID: req.ProviderID, Date: req.Date}
	if err := cmd.Validate(); err != nil {
		a.writeError(w, r, err)
		return
	}

	appt, err := a.scheduler.Book(r.Context(), cmd)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appt)
}

func (a *API) ListAppointments(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerID(r.Context())
	if !ok {
		a.writeError(w, r, errUnauthenticated)
		return
	}
	q := scheduling.ListQuery{CallerID: caller, Page: 1}
	if raw := r.URL.Query().Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			a.writeError(w, r, fmt.Errorf("%w: page must be a number", scheduling.ErrValidation))
			return
		}
		q.Page = page
	}
	if err := q.Validate(); err != nil {
		a.writeError(w, r, err)
		return
	}

	rows, err := a.scheduler.List(r.Context(), q)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rows)
}

func (a *API) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerID(r.Context())
	if !ok {
		a.writeError(w, r, errUnauthenticated)
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		a.writeError(w, r, fmt.Errorf("%w: id must be a number", scheduling.ErrValidation))
		return
	}
	cmd := scheduling.CancelCommand{CallerID: caller, AppointmentID: id}
	if err := cmd.Validate(); err != nil {
		a.writeError(w, r, err)
		return
	}

	appt, err := a.scheduler.Cancel(r.Context(), cmd)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appt)
}
