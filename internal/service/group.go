package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/xid"

	"github.com/aidar/groupmap/internal/domain"
	"github.com/aidar/groupmap/internal/metrics"
	"github.com/aidar/groupmap/internal/repository"
)

// TokenGenerator issues opaque invite tokens.
type TokenGenerator func() (string, error)

// NewInviteToken returns 16 random bytes in hex followed by an xid, so tokens
// are unguessable and never collide across processes.
func NewInviteToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate invite token: %w", err)
	}
	return hex.EncodeToString(buf) + xid.New().String(), nil
}

// GroupService handles group lifecycle and membership.
type GroupService struct {
	groupRepo      repository.GroupRepository
	membershipRepo repository.MembershipRepository
	succession     *LeaderSuccession
	tokens         TokenGenerator
	logger         *slog.Logger
}

// NewGroupService creates a new GroupService. A nil tokens uses NewInviteToken.
func NewGroupService(
	groupRepo repository.GroupRepository,
	membershipRepo repository.MembershipRepository,
	succession *LeaderSuccession,
	tokens TokenGenerator,
	logger *slog.Logger,
) *GroupService {
	if tokens == nil {
		tokens = NewInviteToken
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GroupService{
		groupRepo:      groupRepo,
		membershipRepo: membershipRepo,
		succession:     succession,
		tokens:         tokens,
		logger:         logger,
	}
}

// Create creates a group led by the caller. leaderID may be empty; otherwise
// it must name the caller.
func (s *GroupService) Create(ctx context.Context, caller, name, leaderID string) (*domain.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: group name is required", domain.ErrValidation)
	}
	if leaderID != "" && leaderID != caller {
		return nil, domain.ErrIdentityMismatch
	}

	token, err := s.tokens()
	if err != nil {
		return nil, err
	}

	group := &domain.Group{
		ID:          uuid.New(),
		Name:        name,
		LeaderID:    caller,
		InviteToken: token,
	}

	if err := s.groupRepo.Create(ctx, group); err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}

	metrics.GroupMembershipChangesTotal.WithLabelValues("created").Inc()
	s.logger.Info("group created", "group_id", group.ID, "leader_id", caller)

	return group, nil
}

// Delete deletes a group and all of its memberships. Only the current leader
// may; the repository checks leadership in the same statement as the delete.
func (s *GroupService) Delete(ctx context.Context, caller string, groupID uuid.UUID) error {
	if err := s.groupRepo.Delete(ctx, groupID, caller); err != nil {
		return fmt.Errorf("delete group: %w", err)
	}

	metrics.GroupMembershipChangesTotal.WithLabelValues("deleted").Inc()
	s.logger.Info("group deleted", "group_id", groupID, "leader_id", caller)

	return nil
}

// Join adds the caller to the group behind the invite token. userID may be
// empty; otherwise it must name the caller.
func (s *GroupService) Join(ctx context.Context, caller, inviteToken, userID string) (*domain.Group, error) {
	if userID != "" && userID != caller {
		return nil, domain.ErrIdentityMismatch
	}

	group, err := s.groupRepo.GetByInviteToken(ctx, inviteToken)
	if err != nil {
		return nil, err
	}

	if _, err := s.membershipRepo.Add(ctx, group.ID, caller); err != nil {
		return nil, err
	}

	metrics.GroupMembershipChangesTotal.WithLabelValues("joined").Inc()
	s.logger.Info("group joined", "group_id", group.ID, "user_id", caller)

	return group, nil
}

// Leave removes the caller from the group. A departing leader hands the group
// to the earliest-joined remaining member; a leader leaving alone dissolves it.
func (s *GroupService) Leave(ctx context.Context, caller string, groupID uuid.UUID) (*domain.LeaveResult, error) {
	result, err := s.membershipRepo.Leave(ctx, groupID, caller, s.succession.Next)
	if err != nil {
		return nil, err
	}

	switch result.Outcome {
	case domain.LeaveLeaderChanged:
		metrics.GroupMembershipChangesTotal.WithLabelValues("leader_changed").Inc()
		s.logger.Info("group leader changed", "group_id", groupID, "old_leader_id", caller, "new_leader_id", result.NewLeader)
	case domain.LeaveGroupDissolved:
		metrics.GroupMembershipChangesTotal.WithLabelValues("dissolved").Inc()
		s.logger.Info("group dissolved", "group_id", groupID, "leader_id", caller)
	default:
		metrics.GroupMembershipChangesTotal.WithLabelValues("removed").Inc()
	}

	return result, nil
}

// InviteToken returns the group's invite token to one of its members.
func (s *GroupService) InviteToken(ctx context.Context, caller string, groupID uuid.UUID) (string, error) {
	group, err := s.memberGroup(ctx, caller, groupID)
	if err != nil {
		return "", err
	}
	return group.InviteToken, nil
}

// InvitePreview returns what a prospective member may see before joining.
func (s *GroupService) InvitePreview(ctx context.Context, inviteToken string) (*domain.InvitePreview, error) {
	group, err := s.groupRepo.GetByInviteToken(ctx, inviteToken)
	if err != nil {
		return nil, err
	}
	return &domain.InvitePreview{ID: group.ID, Name: group.Name}, nil
}

// Members returns the group's members to one of its members.
func (s *GroupService) Members(ctx context.Context, caller string, groupID uuid.UUID) ([]domain.PositionedUser, error) {
	if _, err := s.memberGroup(ctx, caller, groupID); err != nil {
		return nil, err
	}
	return s.membershipRepo.ListMembers(ctx, groupID)
}

func (s *GroupService) memberGroup(ctx context.Context, caller string, groupID uuid.UUID) (*domain.Group, error) {
	group, err := s.groupRepo.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}

	member, err := s.membershipRepo.IsMember(ctx, groupID, caller)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, fmt.Errorf("%w: not a member of the group", domain.ErrForbidden)
	}

	return group, nil
}
