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

// ContactHandler handles the contact-message and subscribe relays.
type ContactHandler struct {
	contactService *service.ContactService
}

func NewContactHandler(contactService *service.ContactService) *ContactHandler {
	return &ContactHandler{contactService: contactService}
}

type SendMessageRequest struct {
	Message string `json:"message" binding:"required,min=5"`
}

type SubscribeRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// SendMessage relays a message from the authenticated visitor to the owner.
func (h *ContactHandler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "Message too short"})
		return
	}

	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"msg": "Not authorized"})
		return
	}
	user := value.(*entity.User)

	msg := service.ContactMessage{
		Name:    user.Name,
		Email:   user.Email,
		Message: req.Message,
	}
	if err := h.contactService.SendMessage(c.Request.Context(), msg); err != nil {
		h.handleRelayError(c, err, "Failed to send message")
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "Message sent successfully"})
}

// Subscribe registers a newsletter signup.
func (h *ContactHandler) Subscribe(c *gin.Context) {
	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "Email required"})
		return
	}

	if err := h.contactService.Subscribe(c.Request.Context(), req.Email); err != nil {
		h.handleRelayError(c, err, "Subscription failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "Subscribed successfully"})
}

func (h *ContactHandler) handleRelayError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"msg": "Invalid request data"})
	default:
		log.Printf("[ContactHandler] %s: %v", fallback, err)
		c.JSON(http.StatusInternalServerError, gin.H{"msg": fallback})
	}
}
