package ginserver

import (
	"errors"
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"bazaar/internal/app/identity"
	"bazaar/internal/domain/shared/errs"
)

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	if errors.Is(err, identity.ErrUnauthenticated) {
		return http.StatusUnauthorized
	}
	switch errs.KindOf(err) {
	case errs.Validation:
		return http.StatusUnprocessableEntity
	case errs.Blocked, errs.Forbidden:
		return http.StatusForbidden
	case errs.IllegalTransition, errs.StaleState:
		return http.StatusConflict
	case errs.NotFound:
		return http.StatusNotFound
	case errs.Transport:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, logger *slog.Logger, err error, op string) {
	status := statusFor(err)
	body := gin.H{"error": err.Error(), "kind": string(errs.KindOf(err))}
	if status == http.StatusInternalServerError {
		body = gin.H{"error": "internal error"}
	}
	if logger != nil {
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, op+" failed", "status", status, "error", err, "request_id", c.GetString("request_id"))
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
