package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/paper-piper/Dini/internal/clock"
	"github.com/paper-piper/Dini/internal/config"
	"github.com/paper-piper/Dini/internal/domain"
	"github.com/paper-piper/Dini/pkg/logger"
)

type SessionRepository interface {
	CreateSession(ctx context.Context, id string, userID int64, now time.Time) error
	Session(ctx context.Context, id string) (*domain.ServerSession, error)
	TouchSession(ctx context.Context, id string, now time.Time) error
	RevokeSession(ctx context.Context, id string) error
	LiveUsers(ctx context.Context, since time.Time, excludeUserID int64) ([]string, error)
}

// SessionService issues session ids and decides whether they are still live.
// A session id is an HS256 token whose jti names a row in the sessions table.
type SessionService struct {
	config *config.ServerConfig
	repo   SessionRepository
	clock  clock.Clock
}

func NewSessionService(repo SessionRepository, config *config.ServerConfig, clk clock.Clock) *SessionService {
	return &SessionService{
		config: config,
		repo:   repo,
		clock:  clk,
	}
}

func (s *SessionService) Open(ctx context.Context, userID int64) (string, error) {
	id := uuid.NewString()
	now := s.clock.Now()

	if err := s.repo.CreateSession(ctx, id, userID, now); err != nil {
		return "", err
	}

	return generateJWTToken(userID, id, now, s.config.PrivateKey)
}

// Authenticate verifies token and returns its session if it is neither
// revoked nor idle for longer than the session TTL.
func (s *SessionService) Authenticate(ctx context.Context, token string) (*domain.ServerSession, error) {
	var claims jwt.StandardClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(s.config.PrivateKey), nil
	})
	if err != nil {
		return nil, errors.Join(domain.ErrSessionNotFound, err)
	}

	sess, err := s.repo.Session(ctx, claims.Id)
	if err != nil {
		return nil, err
	}

	if strconv.FormatInt(sess.UserID, 10) != claims.Subject {
		logger.Log.Warn("session subject mismatch", logger.String("session_id", sess.ID))
		return nil, domain.ErrSessionNotFound
	}
	if sess.Revoked {
		return nil, domain.ErrSessionNotFound
	}
	if s.clock.Now().Sub(sess.LastSeen) > s.config.SessionTTL {
		logger.Log.Info("session idle too long", logger.String("session_id", sess.ID))
		return nil, domain.ErrSessionNotFound
	}

	return sess, nil
}

func (s *SessionService) Heartbeat(ctx context.Context, sessionID string) error {
	return s.repo.TouchSession(ctx, sessionID, s.clock.Now())
}

func (s *SessionService) Close(ctx context.Context, sessionID string) error {
	return s.repo.RevokeSession(ctx, sessionID)
}

// ConnectedUsers lists other users with a live session.
func (s *SessionService) ConnectedUsers(ctx context.Context, userID int64) ([]string, error) {
	return s.repo.LiveUsers(ctx, s.clock.Now().Add(-s.config.SessionTTL), userID)
}

func generateJWTToken(userID int64, sessionID string, issuedAt time.Time, privateKey string) (string, error) {
	claims := jwt.StandardClaims{
		Subject:  strconv.FormatInt(userID, 10),
		Id:       sessionID,
		IssuedAt: issuedAt.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(privateKey))
	if err != nil {
		return "", fmt.Errorf("error while signing token: %w", err)
	}

	return signedToken, nil
}
