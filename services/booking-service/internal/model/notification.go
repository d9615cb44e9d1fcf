package model

import "time"

type Notification struct {
	ID          string    `json:"id"`
	RecipientID int64     `json:"user"`
	Content     string    `json:"content"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
