package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/trendlens/admin-api/pkg/errors"
)

// Response is the envelope every admin endpoint returns. Success carries
// data; failure carries a stable error code plus a human message.
type Response struct {
	OK      bool        `json:"ok"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{OK: true, Data: data}
}

func NewErrorResponse(code, message string) *Response {
	return &Response{OK: false, Error: code, Message: message}
}

// WriteError maps an application error onto the envelope and the HTTP
// status. Unclassified errors never leak their text to the client.
func WriteError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		c.JSON(http.StatusInternalServerError, NewErrorResponse("internal", "internal server error"))
		return
	}

	status := http.StatusInternalServerError
	code := "internal"
	switch appErr.Code {
	case apperrors.ErrNotFound:
		status, code = http.StatusNotFound, "not_found"
	case apperrors.ErrBadRequest:
		status, code = http.StatusBadRequest, "bad_request"
	case apperrors.ErrUnauthorized:
		status, code = http.StatusUnauthorized, "unauthorized"
	case apperrors.ErrForbidden:
		status, code = http.StatusForbidden, "forbidden"
	case apperrors.ErrPrecondition:
		status, code = http.StatusConflict, "precondition_failed"
	}
	c.JSON(status, NewErrorResponse(code, appErr.Message))
}
