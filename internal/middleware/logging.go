// internal/middleware/logging.go
package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/agrilink/marketplace-backend/internal/models"
	"github.com/agrilink/marketplace-backend/internal/utils"
)

const maxAuditBody = 64 << 10

var redactedFields = map[string]bool{
	"password":     true,
	"old_password": true,
	"signature":    true,
}

// AuditLogMiddleware records every mutating request in audit_logs and emits a
// structured request log line for all requests.
func AuditLogMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodOptions ||
			strings.HasSuffix(c.Request.URL.Path, "/health") {
			c.Next()
			logRequest(c, time.Since(start))
			return
		}

		var requestBody []byte
		if c.Request.Body != nil && isJSON(c.ContentType()) {
			requestBody, _ = io.ReadAll(io.LimitReader(c.Request.Body, maxAuditBody))
			// Only the audit copy is capped; the handler reads the whole body.
			c.Request.Body = readCloser{
				Reader: io.MultiReader(bytes.NewReader(requestBody), c.Request.Body),
				Closer: c.Request.Body,
			}
		}

		c.Next()
		duration := time.Since(start)

		auditLog := &models.AuditLog{
			Action:       c.Request.Method + " " + c.FullPath(),
			ResourceType: extractResourceType(c.Request.URL.Path),
			StatusCode:   c.Writer.Status(),
			IPAddress:    c.ClientIP(),
			UserAgent:    c.Request.UserAgent(),
			NewValues:    redact(requestBody),
		}
		if auditLog.Action == c.Request.Method+" " {
			auditLog.Action = c.Request.Method + " " + c.Request.URL.Path
		}
		if userID, ok := utils.GetUserIDFromContext(c); ok {
			auditLog.UserID = &userID
		}
		if resourceID := extractResourceID(c.Request.URL.Path); resourceID != uuid.Nil {
			auditLog.ResourceID = &resourceID
		}

		// Save audit log asynchronously
		go func() {
			if err := db.Create(auditLog).Error; err != nil {
				logrus.WithError(err).Error("Failed to create audit log")
			}
		}()

		logRequest(c, duration)
	}
}

type readCloser struct {
	io.Reader
	io.Closer
}

func logRequest(c *gin.Context, duration time.Duration) {
	fields := logrus.Fields{
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
		"status":     c.Writer.Status(),
		"duration":   duration.Milliseconds(),
		"ip":         c.ClientIP(),
		"user_agent": c.Request.UserAgent(),
	}
	if userID, ok := utils.GetUserIDFromContext(c); ok {
		fields["user_id"] = userID.String()
	}

	entry := logrus.WithFields(fields)
	switch status := c.Writer.Status(); {
	case status >= http.StatusInternalServerError:
		entry.Error("Request processed")
	case status >= http.StatusBadRequest:
		entry.Warn("Request processed")
	default:
		entry.Info("Request processed")
	}
}

func isJSON(contentType string) bool {
	return contentType == "" || strings.Contains(contentType, "json")
}

func redact(body []byte) models.JSONB {
	if len(body) == 0 {
		return nil
	}

	var data map[string]interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil
	}
	for key := range data {
		if redactedFields[key] {
			data[key] = "[redacted]"
		}
	}
	return models.JSONB(data)
}

func extractResourceType(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 2 && parts[0] == "v1" {
		return parts[1]
	}
	if len(parts) >= 1 && parts[0] != "" {
		return parts[0]
	}
	return "unknown"
}

func extractResourceID(path string) uuid.UUID {
	for _, part := range strings.Split(strings.Trim(path, "/"), "/") {
		if parsed, err := uuid.Parse(part); err == nil {
			return parsed
		}
	}
	return uuid.Nil
}
