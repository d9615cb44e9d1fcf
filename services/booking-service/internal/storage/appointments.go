package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/gobarber/libs/db"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/outbox"
)

var (
	// ErrSlotTaken means the provider already has an active appointment at
	// that hour.
	ErrSlotTaken   = errors.New("slot already taken")
	ErrSelfBooking = errors.New("requester and provider must differ")
)

// LockedAppointment is an appointment read under a row lock together with
// the contact data of both parties.
type LockedAppointment struct {
	Appointment model.Appointment
	Requester   model.User
	Provider    model.User
}

// CancelGuard decides, while the row is locked, whether the cancellation may
// proceed. It returns the outbox events to commit with it.
type CancelGuard func(LockedAppointment) ([]outbox.Event, error)

type AppointmentRepository struct {
	pool     *db.Pool
	filesURL string
}

func NewAppointmentRepository(pool *db.Pool, filesBaseURL string) *AppointmentRepository {
	return &AppointmentRepository{pool: pool, filesURL: filesPrefix(filesBaseURL)}
}

func (r *AppointmentRepository) FindActiveAt(ctx context.Context, providerID int64, date time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE provider_id = $1 AND date = $2 AND canceled_at IS NULL
		)
	`, providerID, date).Scan(&exists)
	return exists, err
}

// Create inserts appt and events atomically. The partial unique index on
// (provider_id, date) settles concurrent bookings of one slot.
func (r *AppointmentRepository) Create(ctx context.Context, appt model.Appointment, events func(model.Appointment) ([]outbox.Event, error)) (model.Appointment, error) {
	err := r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO appointments (user_id, provider_id, date)
			VALUES ($1, $2, $3)
			RETURNING id, created_at, updated_at
		`, appt.RequesterID, appt.ProviderID, appt.Date).Scan(&appt.ID, &appt.CreatedAt, &appt.UpdatedAt)
		if err != nil {
			switch {
			case db.IsUniqueViolation(err):
				return ErrSlotTaken
			case db.IsCheckViolation(err):
				return ErrSelfBooking
			}
			return err
		}
		if events == nil {
			return nil
		}
		evts, err := events(appt)
		if err != nil {
			return err
		}
		for _, evt := range evts {
			if err := outbox.Insert(ctx, tx, evt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func (r *AppointmentRepository) ListActiveByRequester(ctx context.Context, requesterID int64, limit, offset int) ([]model.AppointmentListing, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.user_id, a.provider_id, a.date, a.created_at, a.updated_at,
			p.name, f.id, f.name, f.path
		FROM appointments a
		JOIN users p ON p.id = a.provider_id
		LEFT JOIN files f ON f.id = p.avatar_id
		WHERE a.user_id = $1 AND a.canceled_at IS NULL
		ORDER BY a.date ASC, a.id ASC
		LIMIT $2 OFFSET $3
	`, requesterID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AppointmentListing
	for rows.Next() {
		var (
			l        model.AppointmentListing
			avatarID *int64
			name     *string
			path     *string
		)
		if err := rows.Scan(
			&l.ID, &l.RequesterID, &l.ProviderID, &l.Date, &l.CreatedAt, &l.UpdatedAt,
			&l.Provider.Name, &avatarID, &name, &path,
		); err != nil {
			return nil, err
		}
		l.Provider.ID = l.ProviderID
		l.Provider.Avatar = fileURL(r.filesURL, avatarID, name, path)
		out = append(out, l)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// Cancel locks the appointment row, runs guard, then stamps canceled_at and
// writes the guard's events in the same transaction. Nothing is written when
// guard fails.
func (r *AppointmentRepository) Cancel(ctx context.Context, id int64, now time.Time, guard CancelGuard) (model.Appointment, error) {
	var locked LockedAppointment
	err := r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		a := &locked.Appointment
		err := tx.QueryRow(ctx, `
			SELECT a.id, a.user_id, a.provider_id, a.date, a.canceled_at, a.created_at, a.updated_at,
				u.id, u.name, u.email, p.id, p.name, p.email
			FROM appointments a
			JOIN users u ON u.id = a.user_id
			JOIN users p ON p.id = a.provider_id
			WHERE a.id = $1
			FOR UPDATE OF a
		`, id).Scan(
			&a.ID, &a.RequesterID, &a.ProviderID, &a.Date, &a.CanceledAt, &a.CreatedAt, &a.UpdatedAt,
			&locked.Requester.ID, &locked.Requester.Name, &locked.Requester.Email,
			&locked.Provider.ID, &locked.Provider.Name, &locked.Provider.Email,
		)
		if err != nil {
			if db.IsNotFound(err) {
				return ErrNotFound
			}
			return err
		}

		evts, err := guard(locked)
		if err != nil {
			return err
		}

		if err := tx.QueryRow(ctx, `
			UPDATE appointments
			SET canceled_at = $2, updated_at = $2
			WHERE id = $1 AND canceled_at IS NULL
			RETURNING canceled_at, updated_at
		`, id, now).Scan(&a.CanceledAt, &a.UpdatedAt); err != nil {
			return err
		}
		for _, evt := range evts {
			if err := outbox.Insert(ctx, tx, evt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return locked.Appointment, nil
}
