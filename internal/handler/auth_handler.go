package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/portfolio-api/internal/domain/entity"
	"github.com/yourusername/portfolio-api/internal/middleware"
	apperrors "github.com/yourusername/portfolio-api/internal/pkg/errors"
	"github.com/yourusername/portfolio-api/internal/service"
)

// AuthHandler handles the registration, login and password-reset routes.
type AuthHandler struct {
	authService *service.AuthService
	otpService  *service.OtpService
}

// NewAuthHandler creates a new authentication handler.
func NewAuthHandler(authService *service.AuthService, otpService *service.OtpService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		otpService:  otpService,
	}
}

// Request bodies. Binding tags reject missing or malformed fields before the
// services see them.

type SendRegisterOtpRequest struct {
	Name     string `json:"name" binding:"required,min=3,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6,max=100"`
}

type VerifyOtpRequest struct {
	Email string `json:"email" binding:"required,email"`
	Otp   string `json:"otp" binding:"required,len=6,numeric"`
}

type EmailOnlyRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type ResetPasswordRequest struct {
	Email       string `json:"email" binding:"required,email"`
	NewPassword string `json:"newPassword" binding:"required,min=6,max=100"`
}

// SendRegisterOtp stages a registration and emails its code.
func (h *AuthHandler) SendRegisterOtp(c *gin.Context) {
	var req SendRegisterOtpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "All fields required"})
		return
	}

	if err := h.otpService.SendRegisterCode(c.Request.Context(), req.Name, req.Email, req.Password); err != nil {
		h.handleAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "OTP sent"})
}

// VerifyRegisterOtp completes a registration with the emailed code.
func (h *AuthHandler) VerifyRegisterOtp(c *gin.Context) {
	var req VerifyOtpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "Email and OTP required"})
		return
	}

	if err := h.otpService.VerifyRegisterCode(c.Request.Context(), req.Email, req.Otp); err != nil {
		h.handleVerifyRegisterError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "Registration successful"})
}

// ResendRegisterOtp replaces a pending registration code.
func (h *AuthHandler) ResendRegisterOtp(c *gin.Context) {
	var req EmailOnlyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "Email required"})
		return
	}

	if err := h.otpService.ResendRegisterCode(c.Request.Context(), req.Email); err != nil {
		h.handleAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "OTP resent"})
}

// Login authenticates credentials and returns a bearer token with the
// public profile.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "Email and password required"})
		return
	}

	result, err := h.authService.Login(req.Email, req.Password)
	if err != nil {
		h.handleAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token": result.Token,
		"user":  result.User,
	})
}

// GetMe returns the authenticated user's profile.
func (h *AuthHandler) GetMe(c *gin.Context) {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"msg": "Not authorized"})
		return
	}
	user := value.(*entity.User)

	c.JSON(http.StatusOK, gin.H{
		"name":  user.Name,
		"email": user.Email,
	})
}

// SendResetOtp emails a password-reset code to an existing account.
func (h *AuthHandler) SendResetOtp(c *gin.Context) {
	var req EmailOnlyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "Email required"})
		return
	}

	if err := h.otpService.SendResetCode(c.Request.Context(), req.Email); err != nil {
		h.handleAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "OTP sent"})
}

// VerifyResetOtp validates a reset code, unlocking the final reset step.
func (h *AuthHandler) VerifyResetOtp(c *gin.Context) {
	var req VerifyOtpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "Email and OTP required"})
		return
	}

	if err := h.otpService.VerifyResetCode(c.Request.Context(), req.Email, req.Otp); err != nil {
		h.handleAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "OTP verified"})
}

// ResetPassword replaces the password after a verified reset code.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "Email and new password required"})
		return
	}

	if err := h.otpService.CompleteReset(c.Request.Context(), req.Email, req.NewPassword); err != nil {
		h.handleAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "Password reset successful"})
}

// handleVerifyRegisterError maps errors from the registration verify step.
// A conflict here means an account appeared for the email between send and
// verify; it is reported as a generic failure so the verify endpoint never
// confirms whether an address is registered.
func (h *AuthHandler) handleVerifyRegisterError(c *gin.Context, err error) {
	if errors.Is(err, apperrors.ErrConflict) {
		log.Printf("[AuthHandler] Registration conflict at verify: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "Registration failed"})
		return
	}
	h.handleAuthError(c, err)
}

// handleAuthError maps service errors onto HTTP statuses. Unexpected errors
// become a generic 500 without leaking internals.
func (h *AuthHandler) handleAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusBadRequest, gin.H{"msg": "Invalid credentials"})
	case errors.Is(err, service.ErrOtpExpired):
		c.JSON(http.StatusBadRequest, gin.H{"msg": "OTP expired"})
	case errors.Is(err, service.ErrInvalidOtp):
		c.JSON(http.StatusBadRequest, gin.H{"msg": "Invalid OTP"})
	case errors.Is(err, service.ErrTooManyAttempts):
		c.JSON(http.StatusTooManyRequests, gin.H{"msg": "Too many attempts"})
	case errors.Is(err, service.ErrRegistrationSessionExpired):
		c.JSON(http.StatusBadRequest, gin.H{"msg": "Session expired"})
	case errors.Is(err, service.ErrResetNotVerified):
		c.JSON(http.StatusBadRequest, gin.H{"msg": "OTP not verified"})
	case errors.Is(err, apperrors.ErrConflict):
		c.JSON(http.StatusBadRequest, gin.H{"msg": "Email already registered"})
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"msg": "User not found"})
	case errors.Is(err, apperrors.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"msg": "Invalid request data"})
	case errors.Is(err, apperrors.ErrDelivery):
		log.Printf("[AuthHandler] Delivery failure: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "Failed to send OTP"})
	default:
		log.Printf("[AuthHandler] Unexpected error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "Internal server error"})
	}
}
