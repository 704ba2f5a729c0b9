package service

import (
	"github.com/aidar/groupmap/internal/domain"
)

// LeaderSuccession picks who leads a group after its leader leaves.
type LeaderSuccession struct{}

// NewLeaderSuccession creates a new LeaderSuccession
func NewLeaderSuccession() *LeaderSuccession {
	return &LeaderSuccession{}
}

// Next returns the earliest-joined remaining member, ties broken by user id.
// It reports false when nobody is left, in which case the group is dissolved.
func (s *LeaderSuccession) Next(remaining []domain.Membership) (string, bool) {
	if len(remaining) == 0 {
		return "", false
	}

	best := remaining[0]
	for _, m := range remaining[1:] {
		if m.JoinedAt.Before(best.JoinedAt) ||
			(m.JoinedAt.Equal(best.JoinedAt) && m.UserID < best.UserID) {
			best = m
		}
	}

	return best.UserID, true
}
