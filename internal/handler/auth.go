package handler

import (
	"context"
	"net/http"
)

// TokenIssuer выдает JWT токен для идентификатора пользователя
type TokenIssuer interface {
	Login(ctx context.Context, userID string) (string, error)
}

// AuthHandler обрабатывает эндпоинты аутентификации
type AuthHandler struct {
	authService TokenIssuer
}

// NewAuthHandler создает новый AuthHandler
func NewAuthHandler(authService TokenIssuer) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// LoginRequest представляет тело запроса на логин
type LoginRequest struct {
	UserID string `json:"user_id" validate:"required,max=128"`
}

// LoginResponse представляет тело ответа на логин
type LoginResponse struct {
	Token string `json:"token"`
}

// Login обрабатывает POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeAndValidate(r, &req); err != nil {
		HandleError(w, r, err)
		return
	}

	token, err := h.authService.Login(r.Context(), req.UserID)
	if err != nil {
		HandleError(w, r, err)
		return
	}

	RespondWithJSON(w, r, http.StatusOK, LoginResponse{Token: token})
}
