package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Location представляет координаты пользователя; в JSON кодируется как [долгота, широта]
type Location struct {
	Longitude float64
	Latitude  float64
}

// Validate проверяет, что координаты лежат в допустимых пределах
func (l Location) Validate() error {
	if l.Longitude < -180 || l.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrValidation, l.Longitude)
	}
	if l.Latitude < -90 || l.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrValidation, l.Latitude)
	}
	return nil
}

// MarshalJSON кодирует координаты парой [lng, lat]
func (l Location) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{l.Longitude, l.Latitude})
}

// UnmarshalJSON разбирает пару [lng, lat]
func (l *Location) UnmarshalJSON(data []byte) error {
	var pair [2]float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("location must be [longitude, latitude]: %w", err)
	}
	l.Longitude, l.Latitude = pair[0], pair[1]
	return nil
}

// PositionedUser представляет пользователя с последней известной позицией.
// Location равен nil, пока устройство ни разу не сообщило координаты
type PositionedUser struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url"`
	Email       string    `json:"email,omitempty"`
	Location    *Location `json:"location"`
}

// HasLocation возвращает true, если у пользователя есть координаты
func (u *PositionedUser) HasLocation() bool {
	return u.Location != nil
}

// ProfileUpdate описывает частичное обновление профиля и позиции.
// Поля со значением nil не изменяются
type ProfileUpdate struct {
	DisplayName *string
	AvatarURL   *string
	Email       *string
	Location    *Location
	ReportedAt  *time.Time // Время снятия показания на устройстве (опционально)
}

// Validate проверяет частичное обновление
func (p ProfileUpdate) Validate() error {
	if p.Location != nil {
		if err := p.Location.Validate(); err != nil {
			return err
		}
	}
	if p.Location == nil && p.ReportedAt != nil {
		return fmt.Errorf("%w: reported_at requires a location", ErrValidation)
	}
	return nil
}
