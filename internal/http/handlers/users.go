package handlers

import (
	"context"
	"net/http"

	"github.com/geocoder89/bizhub/internal/actorctx"
	"github.com/geocoder89/bizhub/internal/domain/profile"
	"github.com/gin-gonic/gin"
)

type UserService interface {
	ListUsers(ctx context.Context, actor actorctx.Actor) ([]profile.Projection, error)
	GetUser(ctx context.Context, actor actorctx.Actor, id string) (profile.Projection, error)
	UpdateDetails(ctx context.Context, actor actorctx.Actor, id string, ch profile.Changes) (profile.Projection, error)
	UpdateRole(ctx context.Context, actor actorctx.Actor, id, role string) (profile.Projection, error)
}

type UsersHandler struct {
	svc UserService
}

func NewUsersHandler(svc UserService) *UsersHandler {
	return &UsersHandler{svc: svc}
}

type UpdateRoleRequest struct {
	Role string `json:"role" binding:"required,erprole"`
}

func (h *UsersHandler) ListUsers(ctx *gin.Context) {
	actor, ok := actorOrAbort(ctx)
	if !ok {
		return
	}

	cctx, cancel := requestContext(ctx)
	defer cancel()

	items, err := h.svc.ListUsers(cctx, actor)
	if err != nil {
		respondServiceError(ctx, err, "Could not list users")
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

func (h *UsersHandler) GetUser(ctx *gin.Context) {
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

	p, err := h.svc.GetUser(cctx, actor, id)
	if err != nil {
		respondServiceError(ctx, err, "Could not load user")
		return
	}
	RespondJSONWithETag(ctx, http.StatusOK, p)
}

func (h *UsersHandler) UpdateUser(ctx *gin.Context) {
	actor, ok := actorOrAbort(ctx)
	if !ok {
		return
	}
	id, ok := profileIDParam(ctx)
	if !ok {
		return
	}

	var req profile.Changes
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := requestContext(ctx)
	defer cancel()

	p, err := h.svc.UpdateDetails(cctx, actor, id, req)
	if err != nil {
		respondServiceError(ctx, err, "Could not update user")
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"user": p})
}

func (h *UsersHandler) UpdateRole(ctx *gin.Context) {
	actor, ok := actorOrAbort(ctx)
	if !ok {
		return
	}
	id, ok := profileIDParam(ctx)
	if !ok {
		return
	}

	var req UpdateRoleRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := requestContext(ctx)
	defer cancel()

	p, err := h.svc.UpdateRole(cctx, actor, id, req.Role)
	if err != nil {
		respondServiceError(ctx, err, "Could not update role")
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"user": p})
}
