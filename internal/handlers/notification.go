// internal/handlers/notification.go
package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/agrilink/marketplace-backend/internal/services"
	"github.com/agrilink/marketplace-backend/internal/utils"
)

type NotificationHandler struct {
	notificationService *services.NotificationService
}

func NewNotificationHandler(notificationService *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{
		notificationService: notificationService,
	}
}

// GET /notifications
func (h *NotificationHandler) List(c *gin.Context) {
	userID, _ := utils.GetUserIDFromContext(c)
	unreadOnly, _ := strconv.ParseBool(c.DefaultQuery("unread", "false"))

	result, err := h.notificationService.ListForUser(c.Request.Context(), userID, unreadOnly, utils.GetPaginationParams(c))
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.PaginatedResponse(c, *result)
}

// PATCH /notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID, _ := utils.GetUserIDFromContext(c)
	notificationID, ok := utils.ParseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.notificationService.MarkRead(c.Request.Context(), userID, notificationID); err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, "Notification marked as read", nil)
}

// PATCH /notifications/read-all
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID, _ := utils.GetUserIDFromContext(c)

	updated, err := h.notificationService.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, "Notifications marked as read", map[string]int64{"updated": updated})
}
