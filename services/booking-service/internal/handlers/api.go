package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/gobarber/libs/httpx"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/notifications"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/scheduling"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/storage"
)

type Scheduler interface {
	Book(ctx context.Context, cmd scheduling.BookCommand) (model.Appointment, error)
	List(ctx context.Context, q scheduling.ListQuery) ([]model.AppointmentListing, error)
	Cancel(ctx context.Context, cmd scheduling.CancelCommand) (model.Appointment, error)
}

type NotificationFeed interface {
	List(ctx context.Context, recipientID int64) ([]model.Notification, error)
	MarkRead(ctx context.Context, recipientID int64, id string) (model.Notification, error)
}

type Directory interface {
	FindUser(ctx context.Context, id int64) (model.User, error)
}

type API struct {
	scheduler Scheduler
	feed      NotificationFeed
	users     Directory
	logger    *slog.Logger
}

func NewAPI(scheduler Scheduler, feed NotificationFeed, users Directory, logger *slog.Logger) *API {
	return &API{scheduler: scheduler, feed: feed, users: users, logger: logger}
}

// Register mounts the /api/v1 routes on mux behind authn.
func (a *API) Register(mux *http.ServeMux, authn func(http.Handler) http.Handler) {
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, authn(fn))
	}
	handle("POST /api/v1/appointments", a.BookAppointment)
	handle("GET /api/v1/appointments", a.ListAppointments)
	handle("DELETE /api/v1/appointments/{id}", a.CancelAppointment)
	handle("GET /api/v1/notifications", a.ListNotifications)
	handle("PUT /api/v1/notifications/{id}", a.MarkNotificationRead)
}

var errUnauthenticated = errors.New("token not provided")

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := "internal server error"
	switch {
	case errors.Is(err, scheduling.ErrValidation):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, scheduling.ErrPastDate),
		errors.Is(err, scheduling.ErrSlotUnavailable):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, scheduling.ErrNotAProvider),
		errors.Is(err, scheduling.ErrSelfBooking),
		errors.Is(err, scheduling.ErrForbidden),
		errors.Is(err, scheduling.ErrCancellationWindowClosed),
		errors.Is(err, scheduling.ErrUnknownCaller),
		errors.Is(err, errUnauthenticated),
		errors.Is(err, errProviderOnly):
		status, msg = http.StatusUnauthorized, err.Error()
	case errors.Is(err, scheduling.ErrNotFound),
		errors.Is(err, scheduling.ErrAlreadyCanceled),
		errors.Is(err, notifications.ErrNotFound):
		status, msg = http.StatusNotFound, err.Error()
	default:
		a.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"err", err,
		)
	}
	httpx.WriteError(w, status, msg)
}

// isProvider is the capability check of the notification routes.
func (a *API) isProvider(ctx context.Context, id int64) (bool, error) {
	u, err := a.users.FindUser(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.Provider, nil
}
