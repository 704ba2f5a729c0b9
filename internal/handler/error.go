package handler

import (
	"net/http"

	"github.com/go-chi/render"

	"github.com/aidar/groupmap/internal/domain"
)

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail содержит код и описание ошибки
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RespondWithError отправляет ответ с ошибкой
func RespondWithError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	render.Status(r, statusCode)
	render.JSON(w, r, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// HandleError преобразует доменные ошибки в HTTP ответы.
// Сообщения внутренних ошибок и ошибок хранилища клиенту не раскрываются
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.MapErrorToCode(err)

	switch code {
	case domain.CodeNotFound:
		RespondWithError(w, r, http.StatusNotFound, string(code), err.Error())
	case domain.CodeConflict, domain.CodeAlreadyMember:
		RespondWithError(w, r, http.StatusConflict, string(code), err.Error())
	case domain.CodeForbidden:
		RespondWithError(w, r, http.StatusForbidden, string(code), err.Error())
	case domain.CodeBadRequest:
		RespondWithError(w, r, http.StatusBadRequest, string(code), err.Error())
	case domain.CodeUnauthorized:
		RespondWithError(w, r, http.StatusUnauthorized, string(code), "unauthorized")
	case domain.CodeStoreUnavailable:
		RespondWithError(w, r, http.StatusServiceUnavailable, string(code), "store unavailable")
	case domain.CodePermissionDenied:
		RespondWithError(w, r, http.StatusForbidden, string(code), err.Error())
	case domain.CodeReadingTimeout:
		RespondWithError(w, r, http.StatusGatewayTimeout, string(code), err.Error())
	default:
		RespondWithError(w, r, http.StatusInternalServerError, string(domain.CodeInternal), "internal server error")
	}
}
