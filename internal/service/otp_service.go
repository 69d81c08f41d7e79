package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/portfolio-api/internal/domain/entity"
	"github.com/yourusername/portfolio-api/internal/domain/repository"
	apperrors "github.com/yourusername/portfolio-api/internal/pkg/errors"
)

// 2 minutes nominal plus a 10 second tolerance buffer, matching what the
// email tells the user.
const defaultOtpTTL = 130 * time.Second

const defaultMaxAttempts = 5

// deliveryTimeout bounds the email gateway call so a slow provider cannot
// hold the request open.
const deliveryTimeout = 10 * time.Second

// OtpService orchestrates the OTP-gated flows: registration, and the
// two-step password reset. Every operation is a stateless request/response
// transaction over the user and challenge stores.
//
// Concurrent verifies for the same scope key race on the attempt counter and
// resolve last-write-wins; the cap is a courtesy brute-force limit, not a
// security boundary.
type OtpService struct {
	userRepo     repository.UserRepository
	otpRepo      repository.OtpTokenRepository
	emailService EmailService
	otpTTL       time.Duration
	maxAttempts  int
	codePepper   string
}

// NewOtpService creates the challenge engine and returns an error when a
// dependency is missing.
func NewOtpService(
	userRepo repository.UserRepository,
	otpRepo repository.OtpTokenRepository,
	emailService EmailService,
	otpTTL time.Duration,
	maxAttempts int,
	codePepper string,
) (*OtpService, error) {
	if userRepo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if otpRepo == nil {
		return nil, fmt.Errorf("otp token repository is required")
	}
	if emailService == nil {
		return nil, fmt.Errorf("email service is required")
	}
	if otpTTL <= 0 {
		otpTTL = defaultOtpTTL
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	return &OtpService{
		userRepo:     userRepo,
		otpRepo:      otpRepo,
		emailService: emailService,
		otpTTL:       otpTTL,
		maxAttempts:  maxAttempts,
		codePepper:   codePepper,
	}, nil
}

// SendRegisterCode stages a registration and dispatches its code. Fails with
// ErrConflict when the email already belongs to an account.
func (s *OtpService) SendRegisterCode(ctx context.Context, name, email, password string) error {
	email = normalizeEmail(email)
	name = strings.TrimSpace(name)

	if len(name) < 3 {
		return fmt.Errorf("%w: name must be at least 3 characters", apperrors.ErrValidation)
	}
	if email == "" || password == "" {
		return fmt.Errorf("%w: email and password are required", apperrors.ErrValidation)
	}

	exists, err := s.userRepo.ExistsByEmail(email)
	if err != nil {
		return fmt.Errorf("failed to check email existence: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: email already registered", apperrors.ErrConflict)
	}

	// Passwords are hashed before they are staged; the challenge store never
	// sees plaintext.
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	staged := &entity.StagedRegistration{Name: name, PasswordHash: string(passwordHash)}
	if err := s.createAndSend(ctx, email, entity.PurposeRegister, staged); err != nil {
		return err
	}

	log.Printf("[OtpService] register otp sent email=%s", email)
	return nil
}

// ResendRegisterCode replaces the pending registration challenge with a fresh
// code, reusing the staged payload. Fails with ErrRegistrationSessionExpired
// when no staged registration survives.
func (s *OtpService) ResendRegisterCode(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	old, err := s.otpRepo.Get(ctx, email, entity.PurposeRegister)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return ErrRegistrationSessionExpired
		}
		return fmt.Errorf("failed to load registration challenge: %w", err)
	}
	if old.Staged == nil {
		return ErrRegistrationSessionExpired
	}

	if err := s.createAndSend(ctx, email, entity.PurposeRegister, old.Staged); err != nil {
		return err
	}

	log.Printf("[OtpService] register otp resent email=%s", email)
	return nil
}

// VerifyRegisterCode checks the submitted code and, on success, materializes
// the staged registration into an account and clears the challenge.
func (s *OtpService) VerifyRegisterCode(ctx context.Context, email, code string) error {
	email = normalizeEmail(email)

	token, err := s.checkCode(ctx, email, entity.PurposeRegister, code)
	if err != nil {
		return err
	}
	if token.Staged == nil {
		// A register challenge without staged data should not exist; treat it
		// like a dead session.
		return ErrRegistrationSessionExpired
	}

	// Re-check the race window between send and verify. A duplicate here is
	// also caught by the unique index on users.email.
	exists, err := s.userRepo.ExistsByEmail(email)
	if err != nil {
		return fmt.Errorf("failed to check email existence: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: email already registered", apperrors.ErrConflict)
	}

	user := &entity.User{
		Name:     token.Staged.Name,
		Email:    email,
		Password: token.Staged.PasswordHash,
		IsActive: true,
	}
	if err := s.userRepo.Create(user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	if err := s.otpRepo.DeleteAll(ctx, email, entity.PurposeRegister); err != nil {
		// The account exists; a leftover challenge only lingers until the
		// store reclaims it.
		log.Printf("[OtpService] failed to delete register challenge email=%s: %v", email, err)
	}

	log.Printf("[OtpService] registration completed email=%s id=%d", email, user.ID)
	return nil
}

// SendResetCode dispatches a password-reset code. Fails with ErrNotFound when
// no account owns the email, and creates no challenge in that case.
func (s *OtpService) SendResetCode(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", apperrors.ErrValidation)
	}

	exists, err := s.userRepo.ExistsByEmail(email)
	if err != nil {
		return fmt.Errorf("failed to check email existence: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: user not found", apperrors.ErrNotFound)
	}

	if err := s.createAndSend(ctx, email, entity.PurposeReset, nil); err != nil {
		return err
	}

	log.Printf("[OtpService] reset otp sent email=%s", email)
	return nil
}

// VerifyResetCode checks the submitted code and marks the challenge verified.
// The challenge stays alive: CompleteReset consumes it.
func (s *OtpService) VerifyResetCode(ctx context.Context, email, code string) error {
	email = normalizeEmail(email)

	token, err := s.checkCode(ctx, email, entity.PurposeReset, code)
	if err != nil {
		return err
	}

	token.Verified = true
	if err := s.otpRepo.Update(ctx, token); err != nil {
		return fmt.Errorf("failed to mark challenge verified: %w", err)
	}

	log.Printf("[OtpService] reset otp verified email=%s", email)
	return nil
}

// CompleteReset replaces the account secret. Requires a prior successful
// VerifyResetCode, else fails with ErrResetNotVerified.
func (s *OtpService) CompleteReset(ctx context.Context, email, newPassword string) error {
	email = normalizeEmail(email)
	if newPassword == "" {
		return fmt.Errorf("%w: new password is required", apperrors.ErrValidation)
	}

	token, err := s.otpRepo.Get(ctx, email, entity.PurposeReset)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return ErrResetNotVerified
		}
		return fmt.Errorf("failed to load reset challenge: %w", err)
	}
	if !token.Verified {
		return ErrResetNotVerified
	}

	if err := s.userRepo.UpdatePasswordByEmail(email, newPassword); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	if err := s.otpRepo.DeleteAll(ctx, email, entity.PurposeReset); err != nil {
		log.Printf("[OtpService] failed to delete reset challenge email=%s: %v", email, err)
	}

	log.Printf("[OtpService] password reset completed email=%s", email)
	return nil
}

// createAndSend supersedes any live challenge for the scope key with a fresh
// one and dispatches the plaintext code. A delivery failure leaves the
// challenge in place and surfaces as ErrDelivery so the caller can resend.
func (s *OtpService) createAndSend(ctx context.Context, email string, purpose entity.OtpPurpose, staged *entity.StagedRegistration) error {
	code, err := generateOtpCode()
	if err != nil {
		return fmt.Errorf("failed to generate otp code: %w", err)
	}
	salt, err := generateOtpSalt()
	if err != nil {
		return fmt.Errorf("failed to generate otp salt: %w", err)
	}

	now := time.Now()
	token := &entity.OtpToken{
		Email:       email,
		Purpose:     purpose,
		CodeHash:    hashOtpCode(code, salt, s.codePepper),
		CodeSalt:    salt,
		ExpiresAt:   now.Add(s.otpTTL),
		Attempts:    0,
		MaxAttempts: s.maxAttempts,
		Staged:      staged,
		CreatedAt:   now,
	}
	if err := s.otpRepo.Create(ctx, token); err != nil {
		return fmt.Errorf("failed to create otp challenge: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()

	idempotencyKey := fmt.Sprintf("otp:%s:%s:%s", purpose, email, uuid.NewString())
	if err := s.emailService.SendOtpCode(sendCtx, email, code, idempotencyKey); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrDelivery, err)
	}
	return nil
}

// checkCode runs the shared verification ladder: existence, expiry, attempt
// cap, then a constant-time hash comparison. A mismatch increments the
// attempt counter before failing.
func (s *OtpService) checkCode(ctx context.Context, email string, purpose entity.OtpPurpose, code string) (*entity.OtpToken, error) {
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("%w: empty otp code", apperrors.ErrValidation)
	}

	token, err := s.otpRepo.Get(ctx, email, purpose)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrOtpExpired
		}
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}

	if token.IsExpired(time.Now()) {
		return nil, ErrOtpExpired
	}
	// The cap check precedes the comparison: once attempts are exhausted even
	// the correct code is rejected until a fresh challenge is sent.
	if token.AttemptsExhausted() {
		return nil, ErrTooManyAttempts
	}

	expectedHash := hashOtpCode(code, token.CodeSalt, s.codePepper)
	if subtle.ConstantTimeCompare([]byte(expectedHash), []byte(token.CodeHash)) != 1 {
		token.Attempts++
		if err := s.otpRepo.Update(ctx, token); err != nil {
			log.Printf("[OtpService] failed to persist attempt counter email=%s: %v", email, err)
		}
		return nil, ErrInvalidOtp
	}

	return token, nil
}

// generateOtpCode draws a 6-digit code uniformly from [100000, 999999].
func generateOtpCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

func generateOtpSalt() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashOtpCode(code, salt, pepper string) string {
	sum := sha256.Sum256([]byte(pepper + ":" + salt + ":" + code))
	return hex.EncodeToString(sum[:])
}
