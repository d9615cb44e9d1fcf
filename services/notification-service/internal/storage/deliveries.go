package storage

import (
	"context"
	"embed"

	"github.com/md-rashed-zaman/gobarber/libs/db"
	"github.com/md-rashed-zaman/gobarber/libs/mail"
)

//go:embed schema.sql
var files embed.FS

func Migrate(ctx context.Context, pool *db.Pool) error {
	schema, err := files.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	return pool.Migrate(ctx, string(schema))
}

// DeliveryRepository is the Postgres mail.DeliveryLog.
type DeliveryRepository struct {
	pool *db.Pool
}

func NewDeliveryRepository(pool *db.Pool) *DeliveryRepository {
	return &DeliveryRepository{pool: pool}
}

func (r *DeliveryRepository) Delivered(ctx context.Context, jobID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM mail_deliveries WHERE job_id = $1)`, jobID).Scan(&exists)
	return exists, err
}

func (r *DeliveryRepository) Record(ctx context.Context, d mail.Delivery) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO mail_deliveries (job_id, appointment_id, recipient, subject, sent_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (job_id) DO NOTHING
	`, d.JobID, d.AppointmentID, d.Recipient, d.Subject, d.SentAt)
	return err
}
