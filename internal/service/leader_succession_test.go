package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aidar/groupmap/internal/domain"
)

func TestLeaderSuccession_Next(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s := NewLeaderSuccession()

	tests := []struct {
		name      string
		remaining []domain.Membership
		want      string
		wantOK    bool
	}{
		{name: "nobody left", remaining: nil, wantOK: false},
		{
			name: "earliest joined wins",
			remaining: []domain.Membership{
				{UserID: "carol", JoinedAt: base.Add(2 * time.Minute)},
				{UserID: "bob", JoinedAt: base.Add(time.Minute)},
			},
			want:   "bob",
			wantOK: true,
		},
		{
			name: "tie broken by id",
			remaining: []domain.Membership{
				{UserID: "zed", JoinedAt: base},
				{UserID: "amy", JoinedAt: base},
			},
			want:   "amy",
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := s.Next(tt.remaining)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
