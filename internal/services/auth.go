// Package services contains the use cases behind the HTTP handlers. This file
// implements AuthService: registration, login and admin-only account deletion.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/shalteor/bplog/internal/crypto"
	"github.com/shalteor/bplog/internal/db"
	"github.com/shalteor/bplog/internal/models"
)

var (
	ErrInvalidCredentials  = errors.New("invalid username or password")
	ErrUsernameTaken       = errors.New("username already taken")
	ErrForbiddenSelfDelete = errors.New("admin cannot delete own account")
	ErrNotAuthorized       = errors.New("not authorized")
	ErrInvalidInput        = errors.New("invalid input")
)

// AuthService handles accounts and credentials.
type AuthService struct {
	db        *db.DB
	hasher    *crypto.PasswordHasher
	logger    *zap.Logger
	dummyHash string
}

// NewAuthService builds an AuthService. The dummy hash is computed once so
// that logins for unknown usernames cost the same as real ones.
func NewAuthService(database *db.DB, hasher *crypto.PasswordHasher, logger *zap.Logger) (*AuthService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	secret, err := crypto.GenerateRandomBytes(16)
	if err != nil {
		return nil, err
	}
	dummy, err := hasher.Hash(string(secret))
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}
	return &AuthService{db: database, hasher: hasher, logger: logger, dummyHash: dummy}, nil
}

// Register creates an account. The first account in an empty database is
// the admin.
func (s *AuthService) Register(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidInput
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{Username: username, PasswordHash: hash}
	err = s.db.WithTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		repo := db.NewUserRepository(tx)
		count, err := repo.Count(ctx)
		if err != nil {
			return err
		}
		user.IsAdmin = count == 0
		return repo.Create(ctx, user)
	})
	if errors.Is(err, db.ErrUserExists) {
		return nil, ErrUsernameTaken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to register user: %w", err)
	}

	s.logger.Info("user registered",
		zap.Int64("user_id", user.ID),
		zap.Bool("is_admin", user.IsAdmin),
	)
	return user, nil
}

// Login checks credentials and returns the matching user.
func (s *AuthService) Login(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.db.Users().GetByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, db.ErrUserNotFound) {
		_, _ = s.hasher.Verify(password, s.dummyHash)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		s.logger.Error("stored password hash unusable", zap.Int64("user_id", user.ID), zap.Error(err))
		return nil, ErrInvalidCredentials
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// GetUser returns the account with the given id.
func (s *AuthService) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return s.db.Users().GetByID(ctx, id)
}

// ListUsers returns all accounts; only admins may call it.
func (s *AuthService) ListUsers(ctx context.Context, caller *models.User) ([]models.User, error) {
	if caller == nil || !caller.IsAdmin {
		return nil, ErrNotAuthorized
	}
	return s.db.Users().List(ctx)
}

// DeleteUser removes targetID and all of its readings on behalf of callerID.
func (s *AuthService) DeleteUser(ctx context.Context, callerID, targetID int64) error {
	caller, err := s.db.Users().GetByID(ctx, callerID)
	if errors.Is(err, db.ErrUserNotFound) {
		return ErrNotAuthorized
	}
	if err != nil {
		return fmt.Errorf("failed to load caller: %w", err)
	}
	if !caller.IsAdmin {
		return ErrNotAuthorized
	}
	if caller.ID == targetID {
		return ErrForbiddenSelfDelete
	}

	if err := s.db.DeleteUser(ctx, targetID); err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}

	s.logger.Info("user deleted", zap.Int64("user_id", targetID), zap.Int64("by", callerID))
	return nil
}
