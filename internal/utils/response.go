// internal/utils/response.go
package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Code    string      `json:"code,omitempty"`
	Details interface{} `json:"details,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

func SuccessResponse(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{
		Status:  StatusSuccess,
		Message: message,
		Data:    data,
	})
}

func SuccessResponseWithMeta(c *gin.Context, data interface{}, meta interface{}) {
	c.JSON(http.StatusOK, APIResponse{
		Status: StatusSuccess,
		Data:   data,
		Meta:   meta,
	})
}

func CreatedResponse(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{
		Status:  StatusSuccess,
		Message: message,
		Data:    data,
	})
}

func ErrorResponse(c *gin.Context, statusCode int, code, message string, details interface{}) {
	c.JSON(statusCode, APIResponse{
		Status:  StatusError,
		Code:    code,
		Message: message,
		Details: details,
	})
}

func AbortWithError(c *gin.Context, err error) {
	HandleError(c, err)
	c.Abort()
}

// HandleError is the single place service errors become HTTP responses.
// Unknown errors are logged and reported as a generic 500 so internals never
// reach the client.
func HandleError(c *gin.Context, err error) {
	appErr, known := AsAppError(err)
	if !known || appErr.Kind == KindInternal {
		logrus.WithError(err).WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
		}).Error("Unhandled error")
		ErrorResponse(c, http.StatusInternalServerError, ErrInternal.Code, ErrInternal.Message, nil)
		return
	}

	if appErr.Kind == KindUnavailable {
		logrus.WithError(err).WithField("code", appErr.Code).Warn("Downstream dependency failed")
	}

	ErrorResponse(c, StatusCodeFor(appErr.Kind), appErr.Code, appErr.Message, nil)
}

func BadRequestResponse(c *gin.Context, message string, details interface{}) {
	if message == "" {
		message = ErrInvalidInput.Message
	}
	ErrorResponse(c, http.StatusBadRequest, "BAD_REQUEST", message, details)
}

func ValidationErrorResponse(c *gin.Context, errors []ValidationError) {
	ErrorResponse(c, http.StatusBadRequest, ErrInvalidInput.Code, "invalid input", errors)
}

func PaginatedResponse(c *gin.Context, result PaginationResult) {
	SetPaginationHeaders(c, result)
	SuccessResponseWithMeta(c, result.Data, gin.H{
		"pagination": gin.H{
			"page":        result.Page,
			"limit":       result.Limit,
			"total":       result.Total,
			"total_pages": result.TotalPages,
		},
	})
}

// BindAndValidate decodes the JSON body into req and runs struct validation,
// writing the error response itself. It reports whether the handler may continue.
func BindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		BadRequestResponse(c, "invalid request body", err.Error())
		return false
	}

	if validationErrors := GetValidationErrors(ValidateStruct(req)); len(validationErrors) > 0 {
		ValidationErrorResponse(c, validationErrors)
		return false
	}
	return true
}
