package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/aidar/groupmap/internal/domain"
)

// UserRepository определяет методы для работы с профилями и позициями пользователей
type UserRepository interface {
	// Upsert создает пользователя или обновляет переданные поля существующего
	Upsert(ctx context.Context, userID string, update domain.ProfileUpdate) (*domain.PositionedUser, error)

	// GetByID получает пользователя по ID
	GetByID(ctx context.Context, userID string) (*domain.PositionedUser, error)
}

// GroupRepository определяет методы для работы с группами
type GroupRepository interface {
	// Create создает группу вместе с членством лидера в одной транзакции
	Create(ctx context.Context, group *domain.Group) error

	// GetByID получает группу по ID
	GetByID(ctx context.Context, groupID uuid.UUID) (*domain.Group, error)

	// GetByInviteToken получает группу по пригласительному токену
	GetByInviteToken(ctx context.Context, token string) (*domain.Group, error)

	// Delete удаляет группу и все ее членства, если leaderID все еще ее лидер.
	// Иначе domain.ErrForbidden; неизвестная группа - domain.ErrGroupNotFound
	Delete(ctx context.Context, groupID uuid.UUID, leaderID string) error

	// ListByMember возвращает группы пользователя в порядке вступления
	ListByMember(ctx context.Context, userID string) ([]domain.Group, error)
}

// MembershipRepository определяет методы для работы с членством в группах
type MembershipRepository interface {
	// Add добавляет участника; повторное вступление возвращает domain.ErrAlreadyMember
	Add(ctx context.Context, groupID uuid.UUID, userID string) (*domain.Membership, error)

	// Leave удаляет участника, сохраняя инвариант лидера в одной транзакции
	Leave(ctx context.Context, groupID uuid.UUID, userID string, successor SuccessorFunc) (*domain.LeaveResult, error)

	// IsMember проверяет членство пользователя в группе
	IsMember(ctx context.Context, groupID uuid.UUID, userID string) (bool, error)

	// ListMembers возвращает участников группы с их позициями
	ListMembers(ctx context.Context, groupID uuid.UUID) ([]domain.PositionedUser, error)

	// SharesGroup проверяет, состоят ли два пользователя хотя бы в одной общей группе
	SharesGroup(ctx context.Context, userA, userB string) (bool, error)
}

// StatsRepository определяет методы для агрегированной статистики
type StatsRepository interface {
	// Overall возвращает общие счетчики
	Overall(ctx context.Context) (*domain.Stats, error)

	// ForUser возвращает счетчики пользователя; неизвестный - domain.ErrUserNotFound
	ForUser(ctx context.Context, userID string) (*domain.UserStats, error)
}

// SuccessorFunc выбирает нового лидера из оставшихся участников (в порядке вступления)
type SuccessorFunc func(remaining []domain.Membership) (string, bool)
