package service

import "errors"

// Auth flow specific errors used by handlers for stable status mapping.
var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInvalidOtp         = errors.New("invalid_otp")
	ErrOtpExpired         = errors.New("otp_expired")
	ErrTooManyAttempts    = errors.New("otp_attempts_exceeded")
	// ErrRegistrationSessionExpired means a resend was requested but the
	// staged registration is gone; the client must start over.
	ErrRegistrationSessionExpired = errors.New("registration_session_expired")
	// ErrResetNotVerified means a password replacement was attempted before
	// the reset code was verified.
	ErrResetNotVerified = errors.New("reset_not_verified")
)
