// Package notifications is the per-recipient in-app feed providers read to
// learn about new bookings.
package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/model"
)

const PageSize = 20

var ErrNotFound = errors.New("notification not found")

type Store interface {
	Insert(ctx context.Context, n model.Notification) (model.Notification, error)
	ListRecent(ctx context.Context, recipientID int64, limit int) ([]model.Notification, error)
	MarkRead(ctx context.Context, recipientID int64, id string) (model.Notification, error)
}

type Feed struct {
	store Store
}

func NewFeed(store Store) *Feed {
	return &Feed{store: store}
}

func (f *Feed) Notify(ctx context.Context, recipientID int64, content string) (model.Notification, error) {
	n, err := f.store.Insert(ctx, model.Notification{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		Content:     content,
	})
	if err != nil {
		return model.Notification{}, fmt.Errorf("insert notification: %w", err)
	}
	return n, nil
}

// List returns the newest entries of recipientID, read or not.
func (f *Feed) List(ctx context.Context, recipientID int64) ([]model.Notification, error) {
	out, err := f.store.ListRecent(ctx, recipientID, PageSize)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return out, nil
}

// MarkRead is idempotent. Malformed ids and entries owned by someone else
// both surface as ErrNotFound.
func (f *Feed) MarkRead(ctx context.Context, recipientID int64, id string) (model.Notification, error) {
	if err := uuid.Validate(id); err != nil {
		return model.Notification{}, ErrNotFound
	}
	n, err := f.store.MarkRead(ctx, recipientID, id)
	if errors.Is(err, ErrNotFound) {
		return model.Notification{}, ErrNotFound
	}
	if err != nil {
		return model.Notification{}, fmt.Errorf("mark notification read: %w", err)
	}
	return n, nil
}
