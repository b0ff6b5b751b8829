package handler

import (
	"net/http"

	"stockroom/internal/apperr"
	"stockroom/pkg/response"

	"github.com/gin-gonic/gin"
)

// writeError translates service errors into the standard response envelope.
// Unrecognized errors become 500s without leaking internals to the client.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := "Internal server error"

	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		status = http.StatusBadRequest
		msg = err.Error()
	case apperr.KindNotFound:
		status = http.StatusNotFound
		msg = err.Error()
	case apperr.KindInvalidState, apperr.KindConflict, apperr.KindInsufficientStock:
		status = http.StatusConflict
		msg = err.Error()
	}

	c.JSON(status, response.Error(status, msg))
}
