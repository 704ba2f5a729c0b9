package domain

import (
	"time"

	"github.com/google/uuid"
)

// Group представляет группу пользователей, видящих друг друга на карте
type Group struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	LeaderID    string    `json:"leader_id"`
	InviteToken string    `json:"-"` // Выдается только участникам через отдельный эндпоинт
	CreatedAt   time.Time `json:"created_at"`
}

// IsLeader проверяет, является ли пользователь лидером группы
func (g *Group) IsLeader(userID string) bool {
	return g.LeaderID == userID
}

// Membership представляет участие пользователя в группе
type Membership struct {
	GroupID  uuid.UUID `json:"group_id"`
	UserID   string    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// GroupRoster представляет группу вместе с позициями всех ее участников
type GroupRoster struct {
	Group   Group            `json:"group"`
	Members []PositionedUser `json:"members"`
}

// InvitePreview представляет публичную информацию о группе по пригласительному токену
type InvitePreview struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// LeaveOutcome описывает результат выхода из группы
type LeaveOutcome string

// Возможные результаты выхода из группы
const (
	LeaveRemoved        LeaveOutcome = "REMOVED"         // Участник удален
	LeaveLeaderChanged  LeaveOutcome = "LEADER_CHANGED"  // Лидер вышел, лидерство передано
	LeaveGroupDissolved LeaveOutcome = "GROUP_DISSOLVED" // Лидер был последним участником
)

// LeaveResult содержит результат выхода из группы
type LeaveResult struct {
	GroupID   uuid.UUID    `json:"group_id"`
	Outcome   LeaveOutcome `json:"outcome"`
	NewLeader string       `json:"new_leader_id,omitempty"`
}
