package auth

import (
	"crypto/subtle"
	"time"

	"paper-trading-bot/config"
	"paper-trading-bot/internal/logging"
)

// Service authenticates the single configured operator.
type Service struct {
	enabled      bool
	username     string
	passwordHash string
	tokens       *TokenManager
	log          *logging.Logger
}

// NewService builds the auth service from configuration.
func NewService(cfg config.AuthConfig, log *logging.Logger) *Service {
	duration := cfg.AccessTokenDuration
	if duration <= 0 {
		duration = 15 * time.Minute
	}
	return &Service{
		enabled:      cfg.Enabled,
		username:     cfg.OperatorUser,
		passwordHash: cfg.OperatorPasswordHash,
		tokens:       NewTokenManager(cfg.JWTSecret, duration),
		log:          log.WithComponent("auth"),
	}
}

// Enabled reports whether API authentication is required.
func (s *Service) Enabled() bool {
	return s.enabled
}

// Login verifies the operator credentials and issues a token.
func (s *Service) Login(username, password string) (string, int64, error) {
	userMatch := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	passMatch := VerifyPassword(s.passwordHash, password)
	if !userMatch || !passMatch {
		s.log.Warn("failed login attempt", "username", username)
		return "", 0, ErrInvalidCredentials
	}

	token, err := s.tokens.Generate(username)
	if err != nil {
		return "", 0, err
	}
	s.log.Info("operator logged in", "username", username)
	return token, s.tokens.TokenDuration(), nil
}

// Validate checks an access token.
func (s *Service) Validate(token string) (*Claims, error) {
	return s.tokens.Validate(token)
}
