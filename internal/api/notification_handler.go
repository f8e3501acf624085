package api

import (
	"alcyxob/fitmate/internal/service"
	"net/http"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	notificationService service.NotificationService
}

func NewNotificationHandler(notificationService service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService}
}

// ListNotifications returns the caller's notifications, newest first.
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	notes, err := h.notificationService.List(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err, "retrieve notifications")
		return
	}
	c.JSON(http.StatusOK, notes)
}
