// Package auth is the session service: salted password hashing, ES256 signed
// tokens, and the middleware gating the dashboard's read endpoints. The
// ingestion path does not consume it.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log/slog"
	"time"

	"github.com/sshwatch/sshwatch/internal/auth/models"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// UserStore is the persistence surface the auth service needs.
type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error
	TouchLastLogin(ctx context.Context, userID int64, at time.Time) error
	AdminExists(ctx context.Context) (bool, error)
}

type Service struct {
	store    UserStore
	tokenGen *TokenGenerator
}

func NewService(store UserStore, tokenGen *TokenGenerator) *Service {
	return &Service{store: store, tokenGen: tokenGen}
}

// EnsureInitialAdmin creates the admin account on first start. When no
// password is supplied a temporary one is generated, logged once, and the
// account is marked for a forced password change.
func (s *Service) EnsureInitialAdmin(ctx context.Context, password string) error {
	exists, err := s.store.AdminExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	tempPassword := password
	if tempPassword == "" {
		tempPassword, err = generateTemporaryPassword()
		if err != nil {
			return err
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(tempPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	admin := &models.User{
		Username:              "admin",
		PasswordHash:          string(hash),
		RequirePasswordChange: true,
		IsAdmin:               true,
		CreatedAt:             time.Now(),
	}
	if err := s.store.CreateUser(ctx, admin); err != nil {
		return err
	}

	slog.Info("Initial admin account created with temporary password",
		slog.String("username", admin.Username),
		slog.String("temporary_password", tempPassword),
	)
	return nil
}

// Authenticate verifies the credentials and returns a signed session token.
// Unknown users and bad passwords are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.LoginResponse, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := s.store.TouchLastLogin(ctx, user.ID, time.Now()); err != nil {
		slog.Warn("Failed to update last login", slog.String("error", err.Error()))
	}

	token, err := s.tokenGen.Generate(user.ID, user.Username, user.IsAdmin)
	if err != nil {
		return nil, err
	}

	return &models.LoginResponse{
		Token:                 token,
		RequirePasswordChange: user.RequirePasswordChange,
	}, nil
}

// Verify validates a session token and returns its claims.
func (s *Service) Verify(token string) (*Claims, error) {
	return s.tokenGen.Validate(token)
}

// ChangePassword rehashes and stores a new password, clearing any forced
// password change flag.
func (s *Service) ChangePassword(ctx context.Context, userID int64, newPassword string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.store.UpdatePassword(ctx, userID, string(hash))
}

// CreateUser registers a new dashboard user with a bcrypt-hashed password.
func (s *Service) CreateUser(ctx context.Context, username, password string, isAdmin bool) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Username:              username,
		PasswordHash:          string(hash),
		RequirePasswordChange: true,
		IsAdmin:               isAdmin,
		CreatedAt:             time.Now(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func generateTemporaryPassword() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
