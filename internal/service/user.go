package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/paper-piper/Dini/internal/domain"
	"github.com/paper-piper/Dini/pkg/logger"
	"golang.org/x/crypto/bcrypt"
)

type UserRepository interface {
	CreateUser(ctx context.Context, login, hashedPassword string) (int64, error)
	User(ctx context.Context, login string) (*domain.User, error)
}

type sessionOpener interface {
	Open(ctx context.Context, userID int64) (string, error)
}

type UserService struct {
	repo     UserRepository
	sessions sessionOpener
}

func NewUserService(repo UserRepository, sessions sessionOpener) *UserService {
	return &UserService{
		repo:     repo,
		sessions: sessions,
	}
}

// Register creates the user and returns a fresh session id.
func (s *UserService) Register(ctx context.Context, login, password string) (string, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		logger.Log.Warn("error while hashing password")
		return "", fmt.Errorf("error while hashing password: %w", err)
	}

	userID, err := s.repo.CreateUser(ctx, login, string(hashedPassword))
	if err != nil {
		return "", err
	}

	logger.Log.Info("user registered", logger.String("login", login), logger.Int64("user_id", userID))
	return s.sessions.Open(ctx, userID)
}

func (s *UserService) Login(ctx context.Context, login, password string) (string, error) {
	user, err := s.repo.User(ctx, login)
	if err != nil {
		if errors.Is(err, domain.ErrIncorrectCredentials) {
			logger.Log.Warn("incorrect login", logger.String("login", login))
		}
		return "", err
	}

	err = bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password))
	if err != nil {
		logger.Log.Warn("incorrect password", logger.String("login", login))
		return "", domain.ErrIncorrectCredentials
	}

	return s.sessions.Open(ctx, user.ID)
}
