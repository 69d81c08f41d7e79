package service

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/yourusername/portfolio-api/internal/domain/entity"
	"github.com/yourusername/portfolio-api/internal/domain/repository"
	apperrors "github.com/yourusername/portfolio-api/internal/pkg/errors"
	"github.com/yourusername/portfolio-api/pkg/auth"
)

// AuthService handles direct credential login and account lookups. It is not
// OTP-gated; the challenge engine only guards registration and reset.
type AuthService struct {
	userRepo   repository.UserRepository
	jwtService *auth.JWTService
}

// LoginResult carries the minted bearer token and the public profile.
type LoginResult struct {
	Token string            `json:"token"`
	User  entity.PublicUser `json:"user"`
}

// NewAuthService creates a new authentication service and returns an error
// when a dependency is missing.
func NewAuthService(userRepo repository.UserRepository, jwtService *auth.JWTService) (*AuthService, error) {
	if userRepo == nil {
		return nil, fmt.Errorf("UserRepository is required for AuthService")
	}
	if jwtService == nil {
		return nil, fmt.Errorf("JWTService is required for AuthService")
	}
	return &AuthService{
		userRepo:   userRepo,
		jwtService: jwtService,
	}, nil
}

// Login authenticates the credentials and mints a 1-day bearer token. The
// failure is deliberately identical for an unknown email and a wrong
// password so the endpoint cannot be used to enumerate accounts.
func (s *AuthService) Login(email, password string) (*LoginResult, error) {
	email = normalizeEmail(email)

	user, err := s.userRepo.GetByEmailWithPassword(email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if !user.CheckPassword(password) {
		return nil, ErrInvalidCredentials
	}

	token, err := s.jwtService.GenerateToken(user)
	if err != nil {
		log.Printf("[AuthService] Failed to generate token for user ID=%d: %v", user.ID, err)
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	log.Printf("[AuthService] User ID=%d (%s) logged in", user.ID, user.Email)
	return &LoginResult{Token: token, User: user.Public()}, nil
}

// GetUserByID returns the account by ID.
func (s *AuthService) GetUserByID(userID uint) (*entity.User, error) {
	return s.userRepo.GetByID(userID)
}

// normalizeEmail brings an email to its canonical form: trim + lowercase.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
