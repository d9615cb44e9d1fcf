package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/md-rashed-zaman/gobarber/libs/datefmt"
	"github.com/md-rashed-zaman/gobarber/libs/events"
	"github.com/md-rashed-zaman/gobarber/libs/metrics"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/timerules"
)

// PageSize is the fixed page length of List.
const PageSize = 20

type Directory interface {
	FindUser(ctx context.Context, id int64) (model.User, error)
}

type AppointmentStore interface {
	FindActiveAt(ctx context.Context, providerID int64, date time.Time) (bool, error)
	Create(ctx context.Context, appt model.Appointment, events func(model.Appointment) ([]outbox.Event, error)) (model.Appointment, error)
	ListActiveByRequester(ctx context.Context, requesterID int64, limit, offset int) ([]model.AppointmentListing, error)
	Cancel(ctx context.Context, id int64, now time.Time, guard storage.CancelGuard) (model.Appointment, error)
}

type Notifier interface {
	Notify(ctx context.Context, recipientID int64, content string) (model.Notification, error)
}

type Config struct {
	Locale   datefmt.Locale
	Location *time.Location
}

type Service struct {
	users  Directory
	store  AppointmentStore
	feed   Notifier
	clock  timerules.Clock
	logger *slog.Logger
	locale datefmt.Locale
	loc    *time.Location
}

func NewService(users Directory, store AppointmentStore, feed Notifier, clock timerules.Clock, logger *slog.Logger, cfg Config) *Service {
	if clock == nil {
		clock = timerules.SystemClock{}
	}
	if cfg.Locale == "" {
		cfg.Locale = datefmt.Default
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Service{
		users:  users,
		store:  store,
		feed:   feed,
		clock:  clock,
		logger: logger,
		locale: cfg.Locale,
		loc:    cfg.Location,
	}
}

// Book creates an appointment at the top of the requested hour. Checks run
// in a fixed order: provider capability, self booking, past date, slot.
func (s *Service) Book(ctx context.Context, cmd BookCommand) (model.Appointment, error) {
	provider, err := s.users.FindUser(ctx, cmd.ProviderID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return model.Appointment{}, fmt.Errorf("load provider: %w", err)
	}
	if err != nil || !provider.Provider {
		return model.Appointment{}, ErrNotAProvider
	}
	if cmd.ProviderID == cmd.CallerID {
		return model.Appointment{}, ErrSelfBooking
	}

	now := s.clock.Now()
	hourStart := timerules.StartOfHour(cmd.Date.In(s.loc))
	if !timerules.Bookable(hourStart, now) {
		return model.Appointment{}, ErrPastDate
	}

	taken, err := s.store.FindActiveAt(ctx, cmd.ProviderID, hourStart)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("check slot: %w", err)
	}
	if taken {
		return model.Appointment{}, ErrSlotUnavailable
	}

	requester, err := s.users.FindUser(ctx, cmd.CallerID)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Appointment{}, ErrUnknownCaller
	}
	if err != nil {
		return model.Appointment{}, fmt.Errorf("load requester: %w", err)
	}

	appt, err := s.store.Create(ctx, model.Appointment{
		RequesterID: cmd.CallerID,
		ProviderID:  cmd.ProviderID,
		Date:        hourStart.UTC(),
	}, func(a model.Appointment) ([]outbox.Event, error) {
		evt, err := outbox.NewEvent("appointment", strconv.FormatInt(a.ID, 10), events.TypeAppointmentBooked, events.AppointmentBooked{
			AppointmentID: a.ID,
			RequesterID:   a.RequesterID,
			ProviderID:    a.ProviderID,
			Date:          a.Date,
		})
		return []outbox.Event{evt}, err
	})
	switch {
	case errors.Is(err, storage.ErrSlotTaken):
		return model.Appointment{}, ErrSlotUnavailable
	case errors.Is(err, storage.ErrSelfBooking):
		return model.Appointment{}, ErrSelfBooking
	case err != nil:
		return model.Appointment{}, fmt.Errorf("create appointment: %w", err)
	}
	metrics.AppointmentsBooked.Inc()

	// The appointment is committed; a feed failure must not undo it.
	if _, err := s.feed.Notify(ctx, provider.ID, s.bookedMessage(requester.Name, hourStart)); err != nil {
		s.logger.Error("booking notification failed", "appointment_id", appt.ID, "provider_id", provider.ID, "err", err)
	}
	return appt, nil
}

func (s *Service) bookedMessage(requesterName string, hourStart time.Time) string {
	when := datefmt.Appointment(hourStart.In(s.loc), s.locale)
	if s.locale == datefmt.EnUS {
		return fmt.Sprintf("New appointment booked by %s for %s", requesterName, when)
	}
	return fmt.Sprintf("Agendamento marcado por %s para %s", requesterName, when)
}

// List returns a page of the caller's active appointments, soonest first.
func (s *Service) List(ctx context.Context, q ListQuery) ([]model.AppointmentListing, error) {
	page := q.Page
	if page < 1 {
		page = 1
	}
	rows, err := s.store.ListActiveByRequester(ctx, q.CallerID, PageSize, (page-1)*PageSize)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	now := s.clock.Now()
	for i := range rows {
		rows[i].Past = timerules.IsPast(rows[i].Date, now)
		rows[i].Cancelable = timerules.Cancelable(rows[i].Date, now)
	}
	if rows == nil {
		rows = []model.AppointmentListing{}
	}
	return rows, nil
}

// Cancel marks the appointment canceled and queues exactly one cancellation
// mail through the outbox. The checks and the write happen under the row
// lock.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (model.Appointment, error) {
	now := s.clock.Now()
	appt, err := s.store.Cancel(ctx, cmd.AppointmentID, now, func(l storage.LockedAppointment) ([]outbox.Event, error) {
		a := l.Appointment
		if a.RequesterID != cmd.CallerID {
			return nil, ErrForbidden
		}
		if !a.Active() {
			return nil, ErrAlreadyCanceled
		}
		if !timerules.Cancelable(a.Date, now) {
			return nil, ErrCancellationWindowClosed
		}
		return cancellationEvents(l, now.UTC())
	})
	if errors.Is(err, storage.ErrNotFound) {
		return model.Appointment{}, ErrNotFound
	}
	if err != nil {
		return model.Appointment{}, err
	}
	metrics.AppointmentsCanceled.Inc()
	return appt, nil
}

func cancellationEvents(l storage.LockedAppointment, canceledAt time.Time) ([]outbox.Event, error) {
	a := l.Appointment
	aggID := strconv.FormatInt(a.ID, 10)

	mail, err := outbox.NewEvent("appointment", aggID, events.TypeCancellationRequested, events.CancellationRequested{
		AppointmentID: a.ID,
		Date:          a.Date.UTC(),
		CanceledAt:    canceledAt,
		Requester:     events.Party{ID: l.Requester.ID, Name: l.Requester.Name, Email: l.Requester.Email},
		Provider:      events.Party{ID: l.Provider.ID, Name: l.Provider.Name, Email: l.Provider.Email},
	})
	if err != nil {
		return nil, err
	}
	domain, err := outbox.NewEvent("appointment", aggID, events.TypeAppointmentCancelled, events.AppointmentCancelled{
		AppointmentID: a.ID,
		RequesterID:   a.RequesterID,
		ProviderID:    a.ProviderID,
		Date:          a.Date.UTC(),
		CanceledAt:    canceledAt,
	})
	if err != nil {
		return nil, err
	}
	return []outbox.Event{mail, domain}, nil
}
