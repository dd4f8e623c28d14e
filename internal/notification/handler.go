package notification

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler exposes device token registration endpoints.
type Handler struct {
	tokenRepo DeviceTokenRepository
}

func NewHandler(tokenRepo DeviceTokenRepository) *Handler {
	return &Handler{tokenRepo: tokenRepo}
}

type registerTokenRequest struct {
	Token      string `json:"token" binding:"required"`
	DeviceInfo string `json:"device_info"`
}

// RegisterDevice stores a push token for the authenticated user.
func (h *Handler) RegisterDevice(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req registerTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}

	if err := h.tokenRepo.SaveToken(userID, req.Token, req.DeviceInfo); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "device registered"})
}

type unregisterTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// UnregisterDevice removes a push token.
func (h *Handler) UnregisterDevice(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req unregisterTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}

	if err := h.tokenRepo.DeleteToken(req.Token); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "device unregistered"})
}
