package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/md-rashed-zaman/gobarber/libs/db"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/model"
)

var ErrNotFound = errors.New("not found")

type UserRepository struct {
	pool     *db.Pool
	filesURL string
}

// NewUserRepository builds avatar URLs as filesBaseURL + "/files/" + path.
func NewUserRepository(pool *db.Pool, filesBaseURL string) *UserRepository {
	return &UserRepository{pool: pool, filesURL: filesPrefix(filesBaseURL)}
}

func filesPrefix(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/files/"
}

func (r *UserRepository) FindUser(ctx context.Context, id int64) (model.User, error) {
	var (
		u        model.User
		avatarID *int64
		name     *string
		path     *string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT u.id, u.name, u.email, u.provider, f.id, f.name, f.path
		FROM users u
		LEFT JOIN files f ON f.id = u.avatar_id
		WHERE u.id = $1
	`, id).Scan(&u.ID, &u.Name, &u.Email, &u.Provider, &avatarID, &name, &path)
	if err != nil {
		if db.IsNotFound(err) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, err
	}
	u.Avatar = r.file(avatarID, name, path)
	return u, nil
}

func (r *UserRepository) file(id *int64, name, path *string) *model.File {
	return fileURL(r.filesURL, id, name, path)
}

func fileURL(base string, id *int64, name, path *string) *model.File {
	if id == nil || path == nil {
		return nil
	}
	f := &model.File{ID: *id, Path: *path, URL: base + *path}
	if name != nil {
		f.Name = *name
	}
	return f
}
