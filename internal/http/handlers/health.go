package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthHandler struct {
	db    Pinger
	cache Pinger
	creds Pinger
}

// NewHealthHandler takes the database (required for readiness) and optional
// cache and credential store checks, which are reported but never fail readiness.
func NewHealthHandler(db, cache, creds Pinger) *HealthHandler {
	return &HealthHandler{db: db, cache: cache, creds: creds}
}

func (h *HealthHandler) Healthz(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HealthHandler) Readyz(ctx *gin.Context) {
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{}
	status := "ready"
	code := http.StatusOK

	if err := ping(cctx, h.db); err != nil {
		checks["database"] = "down"
		status = "not_ready"
		code = http.StatusServiceUnavailable
	} else {
		checks["database"] = "up"
	}

	for name, p := range map[string]Pinger{"cache": h.cache, "credential_store": h.creds} {
		if p == nil {
			continue
		}
		if err := ping(cctx, p); err != nil {
			checks[name] = "degraded"
			if code == http.StatusOK {
				status = "degraded"
			}
		} else {
			checks[name] = "up"
		}
	}

	ctx.JSON(code, gin.H{"status": status, "checks": checks})
}

func ping(ctx context.Context, p Pinger) error {
	if p == nil {
		return nil
	}
	return p.Ping(ctx)
}
