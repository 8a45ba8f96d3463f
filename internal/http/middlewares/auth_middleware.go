package middlewares

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/geocoder89/bizhub/internal/actorctx"
	"github.com/geocoder89/bizhub/internal/credentials"
	"github.com/geocoder89/bizhub/internal/domain/profile"
	"github.com/gin-gonic/gin"
)

// Keep these interfaces small so tests can fake them easily.
type CredentialVerifier interface {
	VerifyToken(ctx context.Context, token string) (credentials.Identity, error)
}

type ProfileReader interface {
	GetAuthProfile(ctx context.Context, id string) (profile.Profile, error)
}

const authLookupTimeout = 3 * time.Second

type AuthMiddleware struct {
	verifier CredentialVerifier
	profiles ProfileReader
	log      *slog.Logger
}

func NewAuthMiddleware(verifier CredentialVerifier, profiles ProfileReader, log *slog.Logger) *AuthMiddleware {
	if log == nil {
		log = slog.Default()
	}
	return &AuthMiddleware{verifier: verifier, profiles: profiles, log: log}
}

// RequireAuth turns a bearer token into an actorctx.Actor on the request
// context. The profile is read on every request so role and approval
// changes apply immediately.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortError(c, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header", nil)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), authLookupTimeout)
		defer cancel()

		ident, err := m.verifier.VerifyToken(ctx, raw)
		if err != nil {
			if !errors.Is(err, credentials.ErrInvalidToken) {
				m.log.WarnContext(ctx, "token verification failed", "err", err)
			}
			abortError(c, http.StatusUnauthorized, "unauthorized", "Invalid or expired access token", nil)
			return
		}

		p, err := m.profiles.GetAuthProfile(ctx, ident.ID)
		if err != nil {
			if errors.Is(err, profile.ErrNotFound) {
				abortError(c, http.StatusUnauthorized, "unauthorized", "No profile for this identity", nil)
				return
			}
			m.log.ErrorContext(ctx, "profile lookup failed", "identity_id", ident.ID, "err", err)
			abortError(c, http.StatusInternalServerError, "internal_error", "Could not load profile", nil)
			return
		}

		if !p.IsUsable() {
			abortError(c, http.StatusForbidden, "pending_approval", "Account is not approved", nil)
			return
		}

		phone := p.Phone
		if phone == "" {
			phone = ident.Phone
		}

		actor := actorctx.Actor{
			ID:       p.ID,
			Email:    p.Email,
			Phone:    phone,
			Role:     p.Role,
			FullName: p.FullName,
		}

		c.Request = c.Request.WithContext(actorctx.With(c.Request.Context(), actor))
		c.Set(CtxBearer, raw)

		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, raw, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

// ActorFrom reads the authenticated actor set by RequireAuth.
func ActorFrom(c *gin.Context) (actorctx.Actor, bool) {
	return actorctx.From(c.Request.Context())
}

// BearerFrom returns the raw token RequireAuth accepted.
func BearerFrom(c *gin.Context) string {
	return c.GetString(CtxBearer)
}
