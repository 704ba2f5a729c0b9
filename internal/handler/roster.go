package handler

import (
	"context"
	"net/http"

	"github.com/aidar/groupmap/internal/domain"
	"github.com/aidar/groupmap/internal/middleware"
)

// RosterResolver возвращает составы всех групп пользователя
type RosterResolver interface {
	VisibleRoster(ctx context.Context, viewer string) ([]domain.GroupRoster, error)
}

// RosterHandler обрабатывает эндпоинт видимого состава
type RosterHandler struct {
	resolver RosterResolver
}

// NewRosterHandler создает новый RosterHandler
func NewRosterHandler(resolver RosterResolver) *RosterHandler {
	return &RosterHandler{resolver: resolver}
}

// Get обрабатывает GET /roster
func (h *RosterHandler) Get(w http.ResponseWriter, r *http.Request) {
	viewer := middleware.GetUserIDFromContext(r.Context())

	rosters, err := h.resolver.VisibleRoster(r.Context(), viewer)
	if err != nil {
		HandleError(w, r, err)
		return
	}

	RespondWithJSON(w, r, http.StatusOK, rosters)
}
