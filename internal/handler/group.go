package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aidar/groupmap/internal/domain"
	"github.com/aidar/groupmap/internal/middleware"
)

// GroupManager управляет группами и членством
type GroupManager interface {
	Create(ctx context.Context, caller, name, leaderID string) (*domain.Group, error)
	Delete(ctx context.Context, caller string, groupID uuid.UUID) error
	Join(ctx context.Context, caller, inviteToken, userID string) (*domain.Group, error)
	Leave(ctx context.Context, caller string, groupID uuid.UUID) (*domain.LeaveResult, error)
	InviteToken(ctx context.Context, caller string, groupID uuid.UUID) (string, error)
	InvitePreview(ctx context.Context, inviteToken string) (*domain.InvitePreview, error)
	Members(ctx context.Context, caller string, groupID uuid.UUID) ([]domain.PositionedUser, error)
}

// GroupHandler обрабатывает эндпоинты групп
type GroupHandler struct {
	groups GroupManager
}

// NewGroupHandler создает новый GroupHandler
func NewGroupHandler(groups GroupManager) *GroupHandler {
	return &GroupHandler{groups: groups}
}

// CreateGroupRequest представляет тело запроса на создание группы
type CreateGroupRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	LeaderID string `json:"leader_id" validate:"omitempty,max=128"`
}

// JoinGroupRequest представляет тело запроса на вступление в группу
type JoinGroupRequest struct {
	InviteToken string `json:"invite_token" validate:"required"`
	UserID      string `json:"user_id" validate:"omitempty,max=128"`
}

// InviteTokenResponse представляет ответ с пригласительным токеном
type InviteTokenResponse struct {
	GroupID     uuid.UUID `json:"group_id"`
	InviteToken string    `json:"invite_token"`
}

// Create обрабатывает POST /groups
func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if err := decodeAndValidate(r, &req); err != nil {
		HandleError(w, r, err)
		return
	}

	caller := middleware.GetUserIDFromContext(r.Context())

	group, err := h.groups.Create(r.Context(), caller, req.Name, req.LeaderID)
	if err != nil {
		HandleError(w, r, err)
		return
	}

	RespondWithJSON(w, r, http.StatusCreated, group)
}

// Delete обрабатывает DELETE /groups/{id}
func (h *GroupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	groupID, err := groupIDParam(r)
	if err != nil {
		HandleError(w, r, err)
		return
	}

	caller := middleware.GetUserIDFromContext(r.Context())

	if err := h.groups.Delete(r.Context(), caller, groupID); err != nil {
		HandleError(w, r, err)
		return
	}

	RespondNoContent(w, r)
}

// Join обрабатывает POST /groups/join
func (h *GroupHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req JoinGroupRequest
	if err := decodeAndValidate(r, &req); err != nil {
		HandleError(w, r, err)
		return
	}

	caller := middleware.GetUserIDFromContext(r.Context())

	group, err := h.groups.Join(r.Context(), caller, req.InviteToken, req.UserID)
	if err != nil {
		HandleError(w, r, err)
		return
	}

	RespondWithJSON(w, r, http.StatusOK, group)
}

// Leave обрабатывает POST /groups/{id}/leave
func (h *GroupHandler) Leave(w http.ResponseWriter, r *http.Request) {
	groupID, err := groupIDParam(r)
	if err != nil {
		HandleError(w, r, err)
		return
	}

	caller := middleware.GetUserIDFromContext(r.Context())

	result, err := h.groups.Leave(r.Context(), caller, groupID)
	if err != nil {
		HandleError(w, r, err)
		return
	}

	RespondWithJSON(w, r, http.StatusOK, result)
}

// Members обрабатывает GET /groups/{id}/members
func (h *GroupHandler) Members(w http.ResponseWriter, r *http.Request) {
	groupID, err := groupIDParam(r)
	if err != nil {
		HandleError(w, r, err)
		return
	}

	caller := middleware.GetUserIDFromContext(r.Context())

	members, err := h.groups.Members(r.Context(), caller, groupID)
	if err != nil {
		HandleError(w, r, err)
		return
	}

	RespondWithJSON(w, r, http.StatusOK, members)
}

// InviteToken обрабатывает GET /groups/{id}/invite
func (h *GroupHandler) InviteToken(w http.ResponseWriter, r *http.Request) {
	groupID, err := groupIDParam(r)
	if err != nil {
		HandleError(w, r, err)
		return
	}

	caller := middleware.GetUserIDFromContext(r.Context())

	token, err := h.groups.InviteToken(r.Context(), caller, groupID)
	if err != nil {
		HandleError(w, r, err)
		return
	}

	RespondWithJSON(w, r, http.StatusOK, InviteTokenResponse{GroupID: groupID, InviteToken: token})
}

// InvitePreview обрабатывает GET /invites/{token}
func (h *GroupHandler) InvitePreview(w http.ResponseWriter, r *http.Request) {
	preview, err := h.groups.InvitePreview(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		HandleError(w, r, err)
		return
	}

	RespondWithJSON(w, r, http.StatusOK, preview)
}

func groupIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: group id must be a UUID", domain.ErrValidation)
	}
	return id, nil
}
