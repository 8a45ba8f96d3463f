package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/geocoder89/bizhub/internal/accounts"
	"github.com/geocoder89/bizhub/internal/domain/profile"
	"github.com/geocoder89/bizhub/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type APIError struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	RequestID string      `json:"requestId,omitempty"`
	Details   interface{} `json:"details,omitempty"`
}

func requestIDFrom(ctx *gin.Context) string {
	if id := ctx.GetString(middlewares.CtxRequestID); id != "" {
		return id
	}

	// fallback header
	return ctx.GetHeader("X-Request-Id")
}

func RespondError(ctx *gin.Context, status int, code, message string, details interface{}) {
	ctx.JSON(status, gin.H{
		"error": APIError{
			Code:      code,
			Message:   message,
			RequestID: requestIDFrom(ctx),
			Details:   details,
		},
	})
}

func RespondBadRequest(ctx *gin.Context, message string, details interface{}) {
	RespondError(ctx, http.StatusBadRequest, "invalid_request", message, details)
}

func RespondUnauthorized(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusUnauthorized, code, message, nil)
}

func RespondForbidden(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusForbidden, "forbidden", message, nil)
}

func RespondNotFound(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusNotFound, "not_found", message, nil)
}

func RespondInternal(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusInternalServerError, "internal_error", message, nil)
}

func RespondConflict(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusConflict, code, message, nil)
}

// respondServiceError maps accounts and domain errors onto the HTTP taxonomy.
// Anything unrecognised is logged and reported as a generic 500.
func respondServiceError(ctx *gin.Context, err error, fallback string) {
	var pending *accounts.PendingApprovalError

	switch {
	case errors.As(err, &pending):
		var details interface{}
		if pending.Disclose {
			details = gin.H{
				"approval_status": pending.Status,
				"is_active":       pending.IsActive,
			}
		}
		RespondError(ctx, http.StatusForbidden, "pending_approval", pending.Error(), details)
	case errors.Is(err, accounts.ErrInvalidCredentials):
		RespondUnauthorized(ctx, "invalid_credentials", "Invalid email or password")
	case errors.Is(err, accounts.ErrUnauthenticated):
		RespondUnauthorized(ctx, "unauthorized", "Authentication required")
	case errors.Is(err, accounts.ErrForbidden):
		RespondForbidden(ctx, err.Error())
	case errors.Is(err, accounts.ErrValidation):
		RespondBadRequest(ctx, err.Error(), nil)
	case errors.Is(err, accounts.ErrEmailTaken):
		RespondConflict(ctx, "email_taken", "Email is already in use.")
	case errors.Is(err, profile.ErrInvalidTransition):
		RespondConflict(ctx, "invalid_transition", "This decision cannot be applied to the profile's current state.")
	case errors.Is(err, accounts.ErrProfileNotFound):
		RespondNotFound(ctx, "Profile not found")
	default:
		slog.Default().ErrorContext(ctx.Request.Context(), fallback,
			"err", err,
			"request_id", requestIDFrom(ctx),
		)
		RespondInternal(ctx, fallback)
	}
}
