// internal/services/notification_service.go
package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/agrilink/marketplace-backend/internal/config"
	"github.com/agrilink/marketplace-backend/internal/models"
	"github.com/agrilink/marketplace-backend/internal/utils"
)

type NotificationService struct {
	db          *gorm.DB
	email       config.EmailConfig
	frontendURL string
}

type EmailTemplate struct {
	Subject string
	Body    string
}

func NewNotificationService(db *gorm.DB, cfg *config.Config) *NotificationService {
	return &NotificationService{
		db:          db,
		email:       cfg.Email,
		frontendURL: cfg.Frontend.BaseURL,
	}
}

// Order notifications. These run after the order change has committed, so
// failures are logged and never surface to the caller.

func (s *NotificationService) NotifyOrderPlaced(ctx context.Context, order *models.Order) {
	s.notify(ctx, order.FarmerID, models.NotificationOrderPlaced,
		"New order received",
		fmt.Sprintf("A buyer ordered %d units. Order total: %s.", order.Quantity, order.Total.StringFixed(2)),
		order, "order_placed")
}

func (s *NotificationService) NotifyOrderStatus(ctx context.Context, order *models.Order) {
	message := fmt.Sprintf("Your order is now %s.", order.Status)
	if order.Status == models.OrderStatusRejected && order.RejectionReason != "" {
		message = fmt.Sprintf("Your order was rejected: %s", order.RejectionReason)
	}
	s.notify(ctx, order.BuyerID, models.NotificationOrderStatus, "Order status updated", message, order, "order_status")
}

func (s *NotificationService) NotifyPaymentUpdate(ctx context.Context, order *models.Order) {
	message := fmt.Sprintf("Payment for your order is %s.", order.PaymentStatus)
	s.notify(ctx, order.BuyerID, models.NotificationPaymentUpdated, "Payment update", message, order, "")
	if order.PaymentStatus == models.PaymentStatusPaid {
		s.notify(ctx, order.FarmerID, models.NotificationPaymentUpdated, "Order paid",
			fmt.Sprintf("The buyer paid %s for their order.", order.Total.StringFixed(2)), order, "")
	}
}

func (s *NotificationService) notify(ctx context.Context, userID uuid.UUID, notificationType models.NotificationType, title, message string, order *models.Order, emailTemplate string) {
	notification := &models.Notification{
		UserID:         userID,
		Type:           notificationType,
		Title:          title,
		Message:        message,
		RelatedOrderID: &order.ID,
	}

	if err := s.db.WithContext(ctx).Create(notification).Error; err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"user_id":  userID,
			"order_id": order.ID,
		}).Error("Failed to create notification")
		return
	}

	if emailTemplate == "" || !s.emailEnabled() {
		return
	}

	var user models.User
	if err := s.db.WithContext(ctx).Select("id", "name", "email").First(&user, "id = ?", userID).Error; err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("Failed to load notification recipient")
		return
	}

	data := map[string]interface{}{
		"Name":     user.Name,
		"Title":    title,
		"Message":  message,
		"OrderURL": fmt.Sprintf("%s/orders/%s", s.frontendURL, order.ID),
	}

	go func() {
		tmpl := s.getEmailTemplate(emailTemplate)
		body, err := s.renderTemplate(tmpl.Body, data)
		if err != nil {
			logrus.WithError(err).Error("Failed to render email template")
			return
		}
		if err := s.sendEmail(user.Email, tmpl.Subject, body); err != nil {
			logrus.WithError(err).WithField("to", user.Email).Warn("Failed to send email")
		}
	}()
}

func (s *NotificationService) ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, params utils.PaginationParams) (*utils.PaginationResult, error) {
	query := s.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)
	if unreadOnly {
		query = query.Where("read_at IS NULL")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count notifications: %w", err)
	}

	var notifications []models.Notification
	if err := utils.ApplyPagination(query.Order("created_at DESC"), params).Find(&notifications).Error; err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	result := utils.CreatePaginationResult(notifications, total, params)
	return &result, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	var notification models.Notification
	if err := s.db.WithContext(ctx).First(&notification, "id = ? AND user_id = ?", notificationID, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrNotFound.WithMessage("notification not found")
		}
		return fmt.Errorf("database error: %w", err)
	}
	if notification.ReadAt != nil {
		return nil
	}

	if err := s.db.WithContext(ctx).Model(&notification).Update("read_at", time.Now()).Error; err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Update("read_at", time.Now())
	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Helper methods
func (s *NotificationService) emailEnabled() bool {
	return s.email.SMTPHost != "" && s.email.SMTPUsername != ""
}

func (s *NotificationService) sendEmail(to, subject, body string) error {
	auth := smtp.PlainAuth("", s.email.SMTPUsername, s.email.SMTPPassword, s.email.SMTPHost)

	msg := []byte(fmt.Sprintf("From: %s <%s>\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s",
		s.email.FromName, s.email.FromEmail, to, subject, body))

	addr := fmt.Sprintf("%s:%s", s.email.SMTPHost, s.email.SMTPPort)
	return smtp.SendMail(addr, auth, s.email.FromEmail, []string{to}, msg)
}

func (s *NotificationService) renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("email").Parse(templateStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func (s *NotificationService) getEmailTemplate(templateType string) EmailTemplate {
	templates := map[string]EmailTemplate{
		"order_placed": {
			Subject: "New order on AgriLink",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Hello {{.Name}},</h2>
	<p>{{.Message}}</p>
	<a href="{{.OrderURL}}">Review the order</a>
	<p>AgriLink Marketplace</p>
</body>
</html>`,
		},
		"order_status": {
			Subject: "Your AgriLink order was updated",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Hello {{.Name}},</h2>
	<p>{{.Message}}</p>
	<a href="{{.OrderURL}}">View order</a>
	<p>AgriLink Marketplace</p>
</body>
</html>`,
		},
	}

	if tmpl, exists := templates[templateType]; exists {
		return tmpl
	}

	return EmailTemplate{
		Subject: "Notification",
		Body:    "<p>{{.Message}}</p>",
	}
}
