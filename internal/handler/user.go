package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aidar/groupmap/internal/domain"
	"github.com/aidar/groupmap/internal/middleware"
)

// PresenceUpserter сохраняет профиль и позицию пользователя
type PresenceUpserter interface {
	Upsert(ctx context.Context, userID string, update domain.ProfileUpdate) (*domain.PositionedUser, error)
}

// UserViewer возвращает профиль, видимый вызывающему
type UserViewer interface {
	User(ctx context.Context, viewer, userID string) (*domain.PositionedUser, error)
}

// UserHandler обрабатывает эндпоинты пользователей
type UserHandler struct {
	presence PresenceUpserter
	viewer   UserViewer
}

// NewUserHandler создает новый UserHandler
func NewUserHandler(presence PresenceUpserter, viewer UserViewer) *UserHandler {
	return &UserHandler{
		presence: presence,
		viewer:   viewer,
	}
}

// UpsertUserRequest представляет тело запроса POST /users.
// Отсутствующие поля не изменяются; координаты передаются только парой
type UpsertUserRequest struct {
	DisplayName *string    `json:"display_name" validate:"omitempty,max=100"`
	AvatarURL   *string    `json:"avatar_url" validate:"omitempty,max=2048"`
	Email       *string    `json:"email" validate:"omitempty,email,max=254"`
	Longitude   *float64   `json:"longitude" validate:"required_with=Latitude,omitempty,min=-180,max=180"`
	Latitude    *float64   `json:"latitude" validate:"required_with=Longitude,omitempty,min=-90,max=90"`
	ReportedAt  *time.Time `json:"reported_at"`
}

// ProfileUpdate преобразует запрос в доменное обновление
func (req UpsertUserRequest) ProfileUpdate() domain.ProfileUpdate {
	update := domain.ProfileUpdate{
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
		Email:       req.Email,
		ReportedAt:  req.ReportedAt,
	}
	if req.Longitude != nil && req.Latitude != nil {
		update.Location = &domain.Location{Longitude: *req.Longitude, Latitude: *req.Latitude}
	}
	return update
}

// Upsert обрабатывает POST /users
func (h *UserHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req UpsertUserRequest
	if err := decodeAndValidate(r, &req); err != nil {
		HandleError(w, r, err)
		return
	}

	userID := middleware.GetUserIDFromContext(r.Context())

	user, err := h.presence.Upsert(r.Context(), userID, req.ProfileUpdate())
	if err != nil {
		HandleError(w, r, err)
		return
	}

	RespondWithJSON(w, r, http.StatusOK, user)
}

// Get обрабатывает GET /users/{id}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	caller := middleware.GetUserIDFromContext(r.Context())

	user, err := h.viewer.User(r.Context(), caller, userID)
	if err != nil {
		HandleError(w, r, err)
		return
	}

	RespondWithJSON(w, r, http.StatusOK, user)
}
