// Package authpw provides email/password account management. Accounts carry
// the moderation role used to gate feedback lifecycle transitions.
package authpw

import (
	"context"
	"errors"
	"fmt"

	"feedback/api/internal/rbac"
	"feedback/api/internal/store"
	"feedback/api/internal/util"
	"golang.org/x/crypto/bcrypt"
)

// UserStore defines the storage interface for account auth.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, id string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
}

type Service struct {
	store UserStore
}

func NewService(store UserStore) *Service {
	return &Service{store: store}
}

type SignUpRequest struct {
	Name     string
	Email    string
	Password string
	Role     string
}

// SignUp creates a new account. The requested role is normalized; unknown or
// empty roles become plain users. Elevated roles are accepted here because
// account provisioning is an operator concern in this deployment, not
// self-service.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (store.User, error) {
	if req.Name == "" || req.Email == "" || req.Password == "" {
		return store.User{}, errors.New("name, email, and password are required")
	}
	if len(req.Password) < 8 {
		return store.User{}, errors.New("password must be at least 8 characters")
	}

	if _, err := s.store.GetUserByEmail(ctx, req.Email); err == nil {
		return store.User{}, errors.New("email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := store.User{
		ID:           util.NewID("usr"),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         string(rbac.Normalize(req.Role)),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// UserByID loads an account. Used to re-validate token subjects against the
// account store.
func (s *Service) UserByID(ctx context.Context, id string) (store.User, error) {
	return s.store.GetUserByID(ctx, id)
}

type SignInRequest struct {
	Email    string
	Password string
}

// SignIn authenticates an account by email and password.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (store.User, error) {
	if req.Email == "" || req.Password == "" {
		return store.User{}, errors.New("email and password are required")
	}

	user, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return store.User{}, errors.New("invalid email or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return store.User{}, errors.New("invalid email or password")
	}
	return user, nil
}
