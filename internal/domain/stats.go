package domain

// Stats представляет общую статистику сервиса
type Stats struct {
	Users        int `json:"users"`
	LocatedUsers int `json:"located_users"`
	Groups       int `json:"groups"`
	Memberships  int `json:"memberships"`
}

// UserStats представляет статистику пользователя
type UserStats struct {
	UserID       string `json:"user_id"`
	GroupsJoined int    `json:"groups_joined"`
	GroupsLed    int    `json:"groups_led"`
	HasLocation  bool   `json:"has_location"`
}
