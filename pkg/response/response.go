package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "storefront/pkg/errors"
)

// Response represents the standard API envelope. Every handler answers with this shape.
type Response struct {
	Success    bool        `json:"success"`
	StatusCode int         `json:"status_code"`
	Code       string      `json:"code,omitempty"`
	Message    string      `json:"message,omitempty"`
	Data       interface{} `json:"data,omitempty"`
}

// Page wraps a paginated listing.
type Page struct {
	Items interface{} `json:"items"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

// Success returns a standard success response wrapping the data
func Success(statusCode int, data interface{}) Response {
	return Response{
		Success:    true,
		StatusCode: statusCode,
		Data:       data,
	}
}

// SuccessMessage is Success with a human readable message, used for workflow outcomes.
func SuccessMessage(statusCode int, message string, data interface{}) Response {
	resp := Success(statusCode, data)
	resp.Message = message
	return resp
}

// Error returns a standard error response wrapping the error message
func Error(statusCode int, message string) Response {
	return Response{
		Success:    false,
		StatusCode: statusCode,
		Message:    message,
	}
}

// FromError converts any error into the error envelope.
func FromError(err error) Response {
	appErr := appErrors.FromError(err)
	return Response{
		Success:    false,
		StatusCode: appErr.Status,
		Code:       appErr.Code,
		Message:    appErr.Message,
	}
}

// Abort writes err as the error envelope and stops the handler chain.
func Abort(c *gin.Context, err error) {
	resp := FromError(err)
	if resp.StatusCode >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(resp.StatusCode, resp)
}
