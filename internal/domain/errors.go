package domain

import (
	"errors"
	"fmt"
)

// Доменные ошибки
var (
	// ErrPermissionDenied возвращается, когда устройство или пользователь запретили доступ к геопозиции
	ErrPermissionDenied = errors.New("location permission denied")

	// ErrReadingTimeout возвращается, когда устройство не выдало показание за отведенное время
	ErrReadingTimeout = errors.New("location reading timed out")

	// ErrNotFound возвращается когда ресурс не найден
	ErrNotFound = errors.New("not found")

	// ErrUserNotFound возвращается когда пользователь не найден
	ErrUserNotFound = fmt.Errorf("user %w", ErrNotFound)

	// ErrGroupNotFound возвращается когда группа не найдена
	ErrGroupNotFound = fmt.Errorf("group %w", ErrNotFound)

	// ErrInviteNotFound возвращается когда пригласительный токен неизвестен
	ErrInviteNotFound = fmt.Errorf("invite %w", ErrNotFound)

	// ErrNotMember возвращается когда пользователь не состоит в группе
	ErrNotMember = fmt.Errorf("membership %w", ErrNotFound)

	// ErrConflict возвращается при конфликте состояния
	ErrConflict = errors.New("conflict")

	// ErrAlreadyMember возвращается при повторном вступлении в группу
	ErrAlreadyMember = fmt.Errorf("%w: user is already a member of this group", ErrConflict)

	// ErrIdentityMismatch возвращается, когда идентификатор в запросе не совпадает с вызывающим
	ErrIdentityMismatch = fmt.Errorf("%w: identity does not match caller", ErrConflict)

	// ErrStoreUnavailable возвращается когда хранилище недоступно
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrForbidden возвращается когда у вызывающего нет прав на операцию
	ErrForbidden = errors.New("forbidden")

	// ErrValidation возвращается при некорректных входных данных
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized возвращается при неудачной аутентификации
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidToken возвращается когда JWT токен невалиден
	ErrInvalidToken = errors.New("invalid token")
)

// ErrorCode представляет коды ошибок API
type ErrorCode string

// Коды ошибок API
const (
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED" // Доступ к геопозиции запрещен
	CodeReadingTimeout   ErrorCode = "READING_TIMEOUT"   // Показание не получено вовремя
	CodeNotFound         ErrorCode = "NOT_FOUND"         // Ресурс не найден
	CodeConflict         ErrorCode = "CONFLICT"          // Конфликт состояния
	CodeAlreadyMember    ErrorCode = "ALREADY_MEMBER"    // Повторное вступление в группу
	CodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE" // Хранилище недоступно
	CodeForbidden        ErrorCode = "FORBIDDEN"         // Недостаточно прав
	CodeBadRequest       ErrorCode = "BAD_REQUEST"       // Некорректный запрос
	CodeUnauthorized     ErrorCode = "UNAUTHORIZED"      // Не аутентифицирован
	CodeInternal         ErrorCode = "INTERNAL_ERROR"    // Внутренняя ошибка
)

// MapErrorToCode преобразует доменные ошибки в коды ошибок API
func MapErrorToCode(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return CodePermissionDenied
	case errors.Is(err, ErrReadingTimeout):
		return CodeReadingTimeout
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrAlreadyMember):
		return CodeAlreadyMember
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrStoreUnavailable):
		return CodeStoreUnavailable
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrValidation):
		return CodeBadRequest
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrInvalidToken):
		return CodeUnauthorized
	default:
		return CodeInternal
	}
}

// ErrorFromCode восстанавливает доменную ошибку по коду API (используется HTTP клиентом)
func ErrorFromCode(code ErrorCode) error {
	switch code {
	case CodePermissionDenied:
		return ErrPermissionDenied
	case CodeReadingTimeout:
		return ErrReadingTimeout
	case CodeNotFound:
		return ErrNotFound
	case CodeConflict:
		return ErrConflict
	case CodeAlreadyMember:
		return ErrAlreadyMember
	case CodeStoreUnavailable:
		return ErrStoreUnavailable
	case CodeForbidden:
		return ErrForbidden
	case CodeBadRequest:
		return ErrValidation
	case CodeUnauthorized:
		return ErrUnauthorized
	default:
		return nil
	}
}
