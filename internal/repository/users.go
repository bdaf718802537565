package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sshwatch/sshwatch/internal/auth/models"
)

// ErrUserNotFound is returned when no user matches the lookup.
var ErrUserNotFound = errors.New("user not found")

func (r *PostgresRepository) CreateUser(ctx context.Context, u *models.User) error {
	q := `INSERT INTO users (username, password_hash, require_password_change, is_admin, created_at)
	      VALUES ($1,$2,$3,$4,$5)
	      RETURNING id`
	err := r.pool.QueryRow(ctx, q,
		u.Username, u.PasswordHash, u.RequirePasswordChange, u.IsAdmin, u.CreatedAt,
	).Scan(&u.ID)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	q := `SELECT id, username, password_hash, require_password_change, is_admin, last_login, created_at
	      FROM users WHERE username = $1`
	var u models.User
	err := r.pool.QueryRow(ctx, q, username).Scan(
		&u.ID, &u.Username, &u.PasswordHash, &u.RequirePasswordChange,
		&u.IsAdmin, &u.LastLogin, &u.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (r *PostgresRepository) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	q := `UPDATE users SET password_hash = $2, require_password_change = FALSE WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *PostgresRepository) TouchLastLogin(ctx context.Context, userID int64, at time.Time) error {
	if _, err := r.pool.Exec(ctx, `UPDATE users SET last_login = $2 WHERE id = $1`, userID, at); err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	return nil
}

func (r *PostgresRepository) AdminExists(ctx context.Context) (bool, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `SELECT id FROM users WHERE is_admin = TRUE LIMIT 1`).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("admin exists: %w", err)
	}
	return true, nil
}
