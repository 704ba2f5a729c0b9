package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aidar/groupmap/internal/domain"
	"github.com/aidar/groupmap/internal/repository"
)

// store is an in-memory implementation of the three repositories.
type store struct {
	mu          sync.Mutex
	users       map[string]domain.PositionedUser
	groups      map[uuid.UUID]domain.Group
	memberships []domain.Membership
	clock       time.Time

	upserts int
	err     error // returned by every call when set
}

func newStore() *store {
	return &store{
		users:  map[string]domain.PositionedUser{},
		groups: map[uuid.UUID]domain.Group{},
		clock:  time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (s *store) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *store) Upsert(_ context.Context, userID string, u domain.ProfileUpdate) (*domain.PositionedUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.upserts++

	user, ok := s.users[userID]
	if !ok {
		user = domain.PositionedUser{ID: userID}
	}
	if u.DisplayName != nil {
		user.DisplayName = *u.DisplayName
	}
	if u.AvatarURL != nil {
		user.AvatarURL = *u.AvatarURL
	}
	if u.Email != nil {
		user.Email = *u.Email
	}
	if u.Location != nil {
		loc := *u.Location
		user.Location = &loc
	}
	s.users[userID] = user
	return &user, nil
}

func (s *store) GetByID(_ context.Context, userID string) (*domain.PositionedUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	user, ok := s.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &user, nil
}

type groupStore struct{ *store }

func (s groupStore) Create(_ context.Context, g *domain.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	g.CreatedAt = s.tick()
	s.groups[g.ID] = *g
	s.memberships = append(s.memberships, domain.Membership{GroupID: g.ID, UserID: g.LeaderID, JoinedAt: g.CreatedAt})
	return nil
}

func (s groupStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	g, ok := s.groups[id]
	if !ok {
		return nil, domain.ErrGroupNotFound
	}
	return &g, nil
}

func (s groupStore) GetByInviteToken(_ context.Context, token string) (*domain.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	for _, g := range s.groups {
		if g.InviteToken == token {
			return &g, nil
		}
	}
	return nil, domain.ErrInviteNotFound
}

func (s groupStore) Delete(_ context.Context, id uuid.UUID, leaderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return domain.ErrGroupNotFound
	}
	if g.LeaderID != leaderID {
		return domain.ErrForbidden
	}
	s.deleteGroupLocked(id)
	return nil
}

func (s *store) deleteGroupLocked(id uuid.UUID) {
	delete(s.groups, id)
	kept := s.memberships[:0]
	for _, m := range s.memberships {
		if m.GroupID != id {
			kept = append(kept, m)
		}
	}
	s.memberships = kept
}

func (s groupStore) ListByMember(_ context.Context, userID string) ([]domain.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var mine []domain.Membership
	for _, m := range s.memberships {
		if m.UserID == userID {
			mine = append(mine, m)
		}
	}
	sort.SliceStable(mine, func(i, j int) bool { return mine[i].JoinedAt.Before(mine[j].JoinedAt) })

	groups := []domain.Group{}
	for _, m := range mine {
		groups = append(groups, s.groups[m.GroupID])
	}
	return groups, nil
}

type membershipStore struct{ *store }

func (s membershipStore) Add(_ context.Context, groupID uuid.UUID, userID string) (*domain.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[groupID]; !ok {
		return nil, domain.ErrGroupNotFound
	}
	for _, m := range s.memberships {
		if m.GroupID == groupID && m.UserID == userID {
			return nil, domain.ErrAlreadyMember
		}
	}
	m := domain.Membership{GroupID: groupID, UserID: userID, JoinedAt: s.tick()}
	s.memberships = append(s.memberships, m)
	return &m, nil
}

func (s membershipStore) Leave(_ context.Context, groupID uuid.UUID, userID string, successor repository.SuccessorFunc) (*domain.LeaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[groupID]
	if !ok {
		return nil, domain.ErrNotMember
	}

	idx := -1
	var remaining []domain.Membership
	for i, m := range s.memberships {
		if m.GroupID != groupID {
			continue
		}
		if m.UserID == userID {
			idx = i
			continue
		}
		remaining = append(remaining, m)
	}
	if idx < 0 {
		return nil, domain.ErrNotMember
	}
	s.memberships = append(s.memberships[:idx], s.memberships[idx+1:]...)

	result := &domain.LeaveResult{GroupID: groupID, Outcome: domain.LeaveRemoved}
	if g.LeaderID == userID {
		if next, ok := successor(remaining); ok {
			g.LeaderID = next
			s.groups[groupID] = g
			result.Outcome = domain.LeaveLeaderChanged
			result.NewLeader = next
		} else {
			s.deleteGroupLocked(groupID)
			result.Outcome = domain.LeaveGroupDissolved
		}
	}
	return result, nil
}

func (s membershipStore) IsMember(_ context.Context, groupID uuid.UUID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	for _, m := range s.memberships {
		if m.GroupID == groupID && m.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s membershipStore) ListMembers(_ context.Context, groupID uuid.UUID) ([]domain.PositionedUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	members := []domain.PositionedUser{}
	for _, m := range s.memberships {
		if m.GroupID != groupID {
			continue
		}
		user, ok := s.users[m.UserID]
		if !ok {
			user = domain.PositionedUser{ID: m.UserID}
		}
		members = append(members, user)
	}
	return members, nil
}

func (s membershipStore) SharesGroup(_ context.Context, a, b string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	groupsOfA := map[uuid.UUID]bool{}
	for _, m := range s.memberships {
		if m.UserID == a {
			groupsOfA[m.GroupID] = true
		}
	}
	for _, m := range s.memberships {
		if m.UserID == b && groupsOfA[m.GroupID] {
			return true, nil
		}
	}
	return false, nil
}

type statsStore struct{ *store }

func (s statsStore) Overall(context.Context) (*domain.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	stats := domain.Stats{Users: len(s.users), Groups: len(s.groups), Memberships: len(s.memberships)}
	for _, u := range s.users {
		if u.Location != nil {
			stats.LocatedUsers++
		}
	}
	return &stats, nil
}

func (s statsStore) ForUser(_ context.Context, userID string) (*domain.UserStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	stats := domain.UserStats{UserID: userID}
	user, ok := s.users[userID]
	stats.HasLocation = ok && user.Location != nil
	for _, m := range s.memberships {
		if m.UserID == userID {
			stats.GroupsJoined++
		}
	}
	for _, g := range s.groups {
		if g.LeaderID == userID {
			stats.GroupsLed++
		}
	}
	if !ok && stats.GroupsJoined == 0 {
		return nil, domain.ErrUserNotFound
	}
	return &stats, nil
}

// fakeDedup remembers the last payload per identity in memory.
type fakeDedup struct {
	last map[string]string
	err  error
}

func digest(u domain.ProfileUpdate) string {
	var k string
	if u.Location != nil {
		b, _ := u.Location.MarshalJSON()
		k += string(b)
	}
	if u.DisplayName != nil {
		k += "|" + *u.DisplayName
	}
	return k
}

func (d *fakeDedup) Seen(_ context.Context, userID string, u domain.ProfileUpdate) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	k := digest(u)
	prev, ok := d.last[userID]
	d.last[userID] = k
	return ok && prev == k, nil
}

func (d *fakeDedup) Forget(_ context.Context, userID string, _ domain.ProfileUpdate) error {
	delete(d.last, userID)
	return nil
}
