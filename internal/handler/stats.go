package handler

import (
	"context"
	"net/http"

	"github.com/aidar/groupmap/internal/domain"
	"github.com/aidar/groupmap/internal/middleware"
)

// StatsProvider возвращает агрегированную статистику
type StatsProvider interface {
	GetStats(ctx context.Context) (*domain.Stats, error)
	GetUserStats(ctx context.Context, caller, userID string) (*domain.UserStats, error)
}

// StatsHandler обрабатывает эндпоинты статистики
type StatsHandler struct {
	statsService StatsProvider
}

// NewStatsHandler создает новый StatsHandler
func NewStatsHandler(statsService StatsProvider) *StatsHandler {
	return &StatsHandler{
		statsService: statsService,
	}
}

// GetStats обрабатывает GET /stats
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.statsService.GetStats(r.Context())
	if err != nil {
		HandleError(w, r, err)
		return
	}

	RespondWithJSON(w, r, http.StatusOK, stats)
}

// GetUserStats обрабатывает GET /stats/user?user_id=...
// Доступно для себя и для участников общих групп
func (h *StatsHandler) GetUserStats(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		RespondWithError(w, r, http.StatusBadRequest, string(domain.CodeBadRequest), "user_id query parameter is required")
		return
	}

	caller := middleware.GetUserIDFromContext(r.Context())
	stats, err := h.statsService.GetUserStats(r.Context(), caller, userID)
	if err != nil {
		HandleError(w, r, err)
		return
	}

	RespondWithJSON(w, r, http.StatusOK, stats)
}
