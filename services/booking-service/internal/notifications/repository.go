package notifications

import (
	"context"

	"github.com/md-rashed-zaman/gobarber/libs/db"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/model"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, n model.Notification) (model.Notification, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO notifications (id, recipient_id, content)
		VALUES ($1::uuid, $2, $3)
		RETURNING read, created_at, updated_at
	`, n.ID, n.RecipientID, n.Content).Scan(&n.Read, &n.CreatedAt, &n.UpdatedAt)
	return n, err
}

func (r *Repository) ListRecent(ctx context.Context, recipientID int64, limit int) ([]model.Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, recipient_id, content, read, created_at, updated_at
		FROM notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, recipientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Notification{}
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Content, &n.Read, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead flips read to true. updated_at only moves on the first call.
func (r *Repository) MarkRead(ctx context.Context, recipientID int64, id string) (model.Notification, error) {
	var n model.Notification
	err := r.pool.QueryRow(ctx, `
		UPDATE notifications
		SET read = true,
			updated_at = CASE WHEN read THEN updated_at ELSE now() END
		WHERE id = $1::uuid AND recipient_id = $2
		RETURNING id::text, recipient_id, content, read, created_at, updated_at
	`, id, recipientID).Scan(&n.ID, &n.RecipientID, &n.Content, &n.Read, &n.CreatedAt, &n.UpdatedAt)
	if db.IsNotFound(err) {
		return model.Notification{}, ErrNotFound
	}
	return n, err
}
