package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"travelchat/pkg/db"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(database *sqlx.DB) *Repository {
	return &Repository{db: database}
}

func (r *Repository) CreateUser(ctx context.Context, username string, passwordHash string) (*User, error) {
	query := r.db.Rebind(`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`)
	now := time.Now().UTC()

	err := db.WithRetry(func() error {
		_, execErr := r.db.ExecContext(ctx, query, username, passwordHash, now)
		return execErr
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("ошибка при создании пользователя: %w", err)
	}

	return &User{Username: username, PasswordHash: passwordHash, CreatedAt: now}, nil
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	query := r.db.Rebind(`SELECT username, password_hash, created_at FROM users WHERE username = ?`)

	var user User
	err := db.WithRetry(func() error {
		return r.db.GetContext(ctx, &user, query, username)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка при получении пользователя по имени: %w", err)
	}
	return &user, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
