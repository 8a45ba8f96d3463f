package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/geocoder89/bizhub/internal/accounts"
	"github.com/geocoder89/bizhub/internal/actorctx"
	"github.com/geocoder89/bizhub/internal/domain/profile"
	"github.com/geocoder89/bizhub/internal/http/middlewares"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestTimeout = 5 * time.Second

type AccountService interface {
	Signup(ctx context.Context, in accounts.SignupInput) (profile.Projection, error)
	Login(ctx context.Context, email, password string) (accounts.LoginResult, error)
	Logout(ctx context.Context, actor actorctx.Actor, token string) error
	Me(ctx context.Context, actor actorctx.Actor) (profile.Projection, error)
	PendingUsers(ctx context.Context, actor actorctx.Actor) ([]profile.Projection, error)
	Approve(ctx context.Context, actor actorctx.Actor, id string) (profile.Projection, error)
	Reject(ctx context.Context, actor actorctx.Actor, id string) (profile.Projection, error)
}

type AuthHandler struct {
	svc AccountService
}

func NewAuthHandler(svc AccountService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

type SignUpRequest struct {
	Email    string `json:"email" binding:"required,email,max=254"`
	Password string `json:"password" binding:"required,min=6,max=128"`
	FullName string `json:"full_name" binding:"omitempty,max=120"`
	Phone    string `json:"phone" binding:"omitempty,max=32"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token     string             `json:"token"`
	ExpiresAt *time.Time         `json:"expires_at,omitempty"`
	User      profile.Projection `json:"user"`
}

func requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), requestTimeout)
}

// actorOrAbort fetches the authenticated actor; routes without RequireAuth get a 401.
func actorOrAbort(ctx *gin.Context) (actorctx.Actor, bool) {
	actor, ok := middlewares.ActorFrom(ctx)
	if !ok {
		RespondUnauthorized(ctx, "unauthorized", "Authentication required")
		return actorctx.Actor{}, false
	}
	return actor, true
}

func profileIDParam(ctx *gin.Context) (string, bool) {
	id := ctx.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		RespondBadRequest(ctx, "Invalid profile id", gin.H{"field": "id"})
		return "", false
	}
	return id, true
}

func (h *AuthHandler) SignUp(ctx *gin.Context) {
	var req SignUpRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := requestContext(ctx)
	defer cancel()

	p, err := h.svc.Signup(cctx, accounts.SignupInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Phone:    req.Phone,
	})
	if err != nil {
		respondServiceError(ctx, err, "Could not create account")
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"user":    p,
		"message": "Account created and awaiting administrator approval.",
	})
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := requestContext(ctx)
	defer cancel()

	res, err := h.svc.Login(cctx, req.Email, req.Password)
	if err != nil {
		respondServiceError(ctx, err, "Could not sign in")
		return
	}

	out := LoginResponse{Token: res.Token, User: res.User}
	if !res.ExpiresAt.IsZero() {
		out.ExpiresAt = &res.ExpiresAt
	}
	ctx.JSON(http.StatusOK, out)
}

func (h *AuthHandler) Logout(ctx *gin.Context) {
	actor, ok := actorOrAbort(ctx)
	if !ok {
		return
	}

	cctx, cancel := requestContext(ctx)
	defer cancel()

	if err := h.svc.Logout(cctx, actor, middlewares.BearerFrom(ctx)); err != nil {
		respondServiceError(ctx, err, "Could not sign out")
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (h *AuthHandler) Me(ctx *gin.Context) {
	actor, ok := actorOrAbort(ctx)
	if !ok {
		return
	}

	cctx, cancel := requestContext(ctx)
	defer cancel()

	p, err := h.svc.Me(cctx, actor)
	if err != nil {
		respondServiceError(ctx, err, "Could not load profile")
		return
	}
	RespondJSONWithETag(ctx, http.StatusOK, p)
}

func (h *AuthHandler) PendingUsers(ctx *gin.Context) {
	actor, ok := actorOrAbort(ctx)
	if !ok {
		return
	}

	cctx, cancel := requestContext(ctx)
	defer cancel()

	items, err := h.svc.PendingUsers(cctx, actor)
	if err != nil {
		respondServiceError(ctx, err, "Could not list pending users")
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

func (h *AuthHandler) ApproveUser(ctx *gin.Context) {
	h.decide(ctx, h.svc.Approve, "Could not approve user")
}

func (h *AuthHandler) RejectUser(ctx *gin.Context) {
	h.decide(ctx, h.svc.Reject, "Could not reject user")
}

func (h *AuthHandler) decide(ctx *gin.Context, apply func(context.Context, actorctx.Actor, string) (profile.Projection, error), fallback string) {
	actor, ok := actorOrAbort(ctx)
	if !ok {
		return
	}
	id, ok := profileIDParam(ctx)
	if !ok {
		return
	}

	cctx, cancel := requestContext(ctx)
	defer cancel()

	p, err := apply(cctx, actor, id)
	if err != nil {
		respondServiceError(ctx, err, fallback)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"user": p})
}
