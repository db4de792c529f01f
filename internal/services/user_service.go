package services

import (
	"context"
	"errors"
	"strings"

	"github.com/aliaskarov/proxypanel/internal/auth"
	"github.com/aliaskarov/proxypanel/internal/models"
	repo "github.com/aliaskarov/proxypanel/internal/repository"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// UserService covers registration and login. Every registered user gets a
// wallet account with balance zero; the account is never funded here.
type UserService struct {
	users    repo.Users
	accounts repo.Accounts
	tm       *auth.TokenManager
}

func NewUserService(u repo.Users, a repo.Accounts, tm *auth.TokenManager) *UserService {
	return &UserService{users: u, accounts: a, tm: tm}
}

func (s *UserService) Register(ctx context.Context, username, email, password string) (models.User, models.Account, error) {
	u := models.User{
		Username: strings.TrimSpace(username),
		Email:    strings.TrimSpace(email),
		Role:     "user",
	}
	if err := u.Validate(); err != nil {
		return models.User{}, models.Account{}, err
	}
	if len(password) < 8 {
		return models.User{}, models.Account{}, errors.New("password too short")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return models.User{}, models.Account{}, err
	}
	created, err := s.users.Create(ctx, u.Username, u.Email, hash, u.Role)
	if err != nil {
		return models.User{}, models.Account{}, err
	}
	acc, err := s.accounts.Create(ctx, created.ID)
	if err != nil {
		return models.User{}, models.Account{}, err
	}
	return created, acc, nil
}

func (s *UserService) Login(ctx context.Context, email, password string) (auth.TokenPair, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return auth.TokenPair{}, ErrInvalidCredentials
	}
	if err := auth.VerifyPassword(password, u.PasswordHash); err != nil {
		return auth.TokenPair{}, ErrInvalidCredentials
	}
	return s.tm.GeneratePair(u.ID, u.Role)
}

func (s *UserService) Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error) {
	claims, isRefresh, err := s.tm.ParseAny(refreshToken)
	if err != nil || !isRefresh {
		return auth.TokenPair{}, ErrInvalidCredentials
	}
	return s.tm.GeneratePair(claims.UserID, claims.Role)
}

func (s *UserService) AccountFor(ctx context.Context, userID string) (models.Account, error) {
	return s.accounts.GetByUser(ctx, userID)
}

func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	return s.users.List(ctx)
}
