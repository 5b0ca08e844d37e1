package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperr "github.com/upliftcs/upliftcs-backend/internal/pkg/errors"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// detailer is implemented by errors that carry structured field problems.
type detailer interface {
	Details() any
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	var details any
	if err != nil {
		msg = err.Error()
		var d detailer
		if errors.As(err, &d) {
			details = d.Details()
		}
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
			Details: details,
		},
	})
}

// RespondServiceError maps the service sentinels onto 400/404/409 and
// anything else onto 500.
func RespondServiceError(c *gin.Context, code string, err error) {
	RespondError(c, StatusFor(err), code, err)
}

func StatusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}
