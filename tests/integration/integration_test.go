package integration

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidar/groupmap/internal/client"
	"github.com/aidar/groupmap/internal/domain"
	"github.com/aidar/groupmap/internal/geo"
	"github.com/aidar/groupmap/internal/mapview"
	"github.com/aidar/groupmap/internal/tracker"
)

// Тестовые структуры данных соответствующие API
type UpsertUserRequest struct {
	DisplayName *string    `json:"display_name,omitempty"`
	AvatarURL   *string    `json:"avatar_url,omitempty"`
	Longitude   *float64   `json:"longitude,omitempty"`
	Latitude    *float64   `json:"latitude,omitempty"`
	ReportedAt  *time.Time `json:"reported_at,omitempty"`
}

type GroupResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	LeaderID string `json:"leader_id"`
}

type InviteResponse struct {
	GroupID     string `json:"group_id"`
	InviteToken string `json:"invite_token"`
}

type LeaveResponse struct {
	GroupID   string `json:"group_id"`
	Outcome   string `json:"outcome"`
	NewLeader string `json:"new_leader_id"`
}

func strPtr(s string) *string        { return &s }
func floatPtr(f float64) *float64    { return &f }
func timePtr(t time.Time) *time.Time { return &t }

func report(lng, lat float64) UpsertUserRequest {
	return UpsertUserRequest{Longitude: floatPtr(lng), Latitude: floatPtr(lat)}
}

// createGroup создает группу и возвращает ее вместе с пригласительным токеном
func createGroup(t *testing.T, env *TestEnvironment, token, name string) (GroupResponse, string) {
	t.Helper()

	var group GroupResponse
	status := env.DoJSON(t, http.MethodPost, "/groups", map[string]string{"name": name}, token, &group)
	require.Equal(t, http.StatusCreated, status, "Group creation should succeed")

	var invite InviteResponse
	status = env.DoJSON(t, http.MethodGet, "/groups/"+group.ID+"/invite", nil, token, &invite)
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, invite.InviteToken)

	return group, invite.InviteToken
}

// TestE2E_GroupPresenceWorkflow тестирует полный сценарий: профиль, группа, приглашение, состав
func TestE2E_GroupPresenceWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	env := SetupTestEnvironment(t)
	defer env.Cleanup(t)

	env.WaitForHealthCheck(t)

	alice := env.Login(t, "alice")
	bob := env.Login(t, "bob")
	carol := env.Login(t, "carol")
	mallory := env.Login(t, "mallory")

	t.Run("Report Position", func(t *testing.T) {
		req := report(-122.42, 37.77)
		req.DisplayName = strPtr("Alice")

		var user domain.PositionedUser
		status := env.DoJSON(t, http.MethodPost, "/users", req, alice, &user)
		require.Equal(t, http.StatusOK, status)

		assert.Equal(t, "alice", user.ID)
		assert.Equal(t, "Alice", user.DisplayName)
		require.NotNil(t, user.Location)
		assert.Equal(t, domain.Location{Longitude: -122.42, Latitude: 37.77}, *user.Location)
	})

	group, inviteToken := createGroup(t, env, alice, "Alpha")
	assert.Equal(t, "alice", group.LeaderID)

	t.Run("Invite Preview Is Public", func(t *testing.T) {
		var preview domain.InvitePreview
		status := env.DoJSON(t, http.MethodGet, "/invites/"+inviteToken, nil, "", &preview)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "Alpha", preview.Name)
		assert.Equal(t, group.ID, preview.ID.String())
	})

	t.Run("Join Group", func(t *testing.T) {
		status := env.DoJSON(t, http.MethodPost, "/groups/join", map[string]string{"invite_token": inviteToken}, bob, nil)
		assert.Equal(t, http.StatusOK, status)

		status = env.DoJSON(t, http.MethodPost, "/groups/join", map[string]string{"invite_token": inviteToken}, bob, nil)
		assert.Equal(t, http.StatusConflict, status, "Second join should conflict")

		status = env.DoJSON(t, http.MethodPost, "/groups/join", map[string]string{"invite_token": "bogus"}, bob, nil)
		assert.Equal(t, http.StatusNotFound, status)

		status = env.DoJSON(t, http.MethodPost, "/groups/join",
			map[string]string{"invite_token": inviteToken, "user_id": "someone-else"}, carol, nil)
		assert.Equal(t, http.StatusConflict, status, "Joining on behalf of another user should conflict")

		status = env.DoJSON(t, http.MethodPost, "/groups/join", map[string]string{"invite_token": inviteToken}, carol, nil)
		assert.Equal(t, http.StatusOK, status)

		var count int
		err := env.DB.QueryRow(env.ctx,
			`SELECT COUNT(*) FROM group_members WHERE group_id = $1 AND user_id = 'bob'`, group.ID).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("Bob Reports Position", func(t *testing.T) {
		status := env.DoJSON(t, http.MethodPost, "/users", report(-122.41, 37.78), bob, nil)
		require.Equal(t, http.StatusOK, status)
	})

	t.Run("Visible Roster", func(t *testing.T) {
		var rosters []domain.GroupRoster
		status := env.DoJSON(t, http.MethodGet, "/roster", nil, alice, &rosters)
		require.Equal(t, http.StatusOK, status)
		require.Len(t, rosters, 1)

		assert.Equal(t, "Alpha", rosters[0].Group.Name)
		require.Len(t, rosters[0].Members, 3)

		byID := map[string]domain.PositionedUser{}
		for _, m := range rosters[0].Members {
			byID[m.ID] = m
		}
		assert.NotNil(t, byID["alice"].Location)
		assert.NotNil(t, byID["bob"].Location)
		assert.Nil(t, byID["carol"].Location, "Carol never reported a position")
	})

	t.Run("Roster Of Stranger Is Empty", func(t *testing.T) {
		var rosters []domain.GroupRoster
		status := env.DoJSON(t, http.MethodGet, "/roster", nil, mallory, &rosters)
		require.Equal(t, http.StatusOK, status)
		assert.Empty(t, rosters)
	})

	t.Run("Members Only", func(t *testing.T) {
		status := env.DoJSON(t, http.MethodGet, "/groups/"+group.ID+"/members", nil, mallory, nil)
		assert.Equal(t, http.StatusForbidden, status)

		status = env.DoJSON(t, http.MethodGet, "/groups/"+group.ID+"/invite", nil, mallory, nil)
		assert.Equal(t, http.StatusForbidden, status)

		var members []domain.PositionedUser
		status = env.DoJSON(t, http.MethodGet, "/groups/"+group.ID+"/members", nil, carol, &members)
		assert.Equal(t, http.StatusOK, status)
		assert.Len(t, members, 3)
	})

	t.Run("Get User", func(t *testing.T) {
		var user domain.PositionedUser
		status := env.DoJSON(t, http.MethodGet, "/users/bob", nil, alice, &user)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "bob", user.ID)

		status = env.DoJSON(t, http.MethodGet, "/users/alice", nil, mallory, nil)
		assert.Equal(t, http.StatusForbidden, status)
	})

	t.Run("Unauthorized Without Token", func(t *testing.T) {
		status := env.DoJSON(t, http.MethodGet, "/roster", nil, "", nil)
		assert.Equal(t, http.StatusUnauthorized, status)
	})
}

// TestE2E_PresenceUpsert тестирует идемпотентность и частичные обновления
func TestE2E_PresenceUpsert(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	env := SetupTestEnvironment(t)
	defer env.Cleanup(t)

	env.WaitForHealthCheck(t)

	token := env.Login(t, "dave")

	t.Run("First Report Without Location", func(t *testing.T) {
		var user domain.PositionedUser
		status := env.DoJSON(t, http.MethodPost, "/users", UpsertUserRequest{DisplayName: strPtr("Dave")}, token, &user)
		require.Equal(t, http.StatusOK, status)
		assert.Nil(t, user.Location, "Absent location must never become (0, 0)")
	})

	t.Run("Idempotent", func(t *testing.T) {
		req := report(10, 20)
		for i := 0; i < 3; i++ {
			status := env.DoJSON(t, http.MethodPost, "/users", req, token, nil)
			require.Equal(t, http.StatusOK, status)
		}

		var count int
		require.NoError(t, env.DB.QueryRow(env.ctx, `SELECT COUNT(*) FROM users WHERE id = 'dave'`).Scan(&count))
		assert.Equal(t, 1, count)
	})

	t.Run("Partial Update Keeps Other Fields", func(t *testing.T) {
		var user domain.PositionedUser
		status := env.DoJSON(t, http.MethodPost, "/users", UpsertUserRequest{AvatarURL: strPtr("https://a/d.png")}, token, &user)
		require.Equal(t, http.StatusOK, status)

		assert.Equal(t, "Dave", user.DisplayName)
		assert.Equal(t, "https://a/d.png", user.AvatarURL)
		require.NotNil(t, user.Location)
		assert.Equal(t, domain.Location{Longitude: 10, Latitude: 20}, *user.Location)
	})

	t.Run("Stale Sequenced Report Is Ignored", func(t *testing.T) {
		now := time.Now().UTC()

		fresh := report(11, 21)
		fresh.ReportedAt = timePtr(now)
		require.Equal(t, http.StatusOK, env.DoJSON(t, http.MethodPost, "/users", fresh, token, nil))

		stale := report(12, 22)
		stale.ReportedAt = timePtr(now.Add(-time.Minute))
		var user domain.PositionedUser
		require.Equal(t, http.StatusOK, env.DoJSON(t, http.MethodPost, "/users", stale, token, &user))

		require.NotNil(t, user.Location)
		assert.Equal(t, domain.Location{Longitude: 11, Latitude: 21}, *user.Location)
	})

	t.Run("Invalid Coordinates", func(t *testing.T) {
		status := env.DoJSON(t, http.MethodPost, "/users", report(200, 0), token, nil)
		assert.Equal(t, http.StatusBadRequest, status)

		status = env.DoJSON(t, http.MethodPost, "/users", UpsertUserRequest{Longitude: floatPtr(1)}, token, nil)
		assert.Equal(t, http.StatusBadRequest, status, "Longitude without latitude is rejected")
	})

	t.Run("Concurrent Upserts", func(t *testing.T) {
		tokens := make([]string, 10)
		for i := range tokens {
			tokens[i] = env.Login(t, fmt.Sprintf("runner-%d", i))
		}

		var wg sync.WaitGroup
		for i, tok := range tokens {
			wg.Add(1)
			go func() {
				defer wg.Done()
				env.DoJSON(t, http.MethodPost, "/users", report(float64(i), float64(i)), tok, nil)
				env.DoJSON(t, http.MethodPost, "/users", report(float64(i), float64(i)), token, nil)
			}()
		}
		wg.Wait()

		var runners int
		require.NoError(t, env.DB.QueryRow(env.ctx, `SELECT COUNT(*) FROM users WHERE id LIKE 'runner-%'`).Scan(&runners))
		assert.Equal(t, 10, runners)

		// Итог для dave: одна из отправленных пар, а не их смесь
		var lng, lat float64
		require.NoError(t, env.DB.QueryRow(env.ctx, `SELECT longitude, latitude FROM users WHERE id = 'dave'`).Scan(&lng, &lat))
		assert.Equal(t, lng, lat)
	})
}

// TestE2E_LeaveAndDelete тестирует выход из группы с передачей лидерства и удаление группы
func TestE2E_LeaveAndDelete(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	env := SetupTestEnvironment(t)
	defer env.Cleanup(t)

	env.WaitForHealthCheck(t)

	erin := env.Login(t, "erin")
	frank := env.Login(t, "frank")
	grace := env.Login(t, "grace")

	t.Run("Leader Leaves And Leadership Moves", func(t *testing.T) {
		group, invite := createGroup(t, env, erin, "Hikers")
		require.Equal(t, http.StatusOK, env.DoJSON(t, http.MethodPost, "/groups/join", map[string]string{"invite_token": invite}, frank, nil))
		require.Equal(t, http.StatusOK, env.DoJSON(t, http.MethodPost, "/groups/join", map[string]string{"invite_token": invite}, grace, nil))

		var res LeaveResponse
		status := env.DoJSON(t, http.MethodPost, "/groups/"+group.ID+"/leave", nil, grace, &res)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, string(domain.LeaveRemoved), res.Outcome)

		status = env.DoJSON(t, http.MethodPost, "/groups/"+group.ID+"/leave", nil, erin, &res)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, string(domain.LeaveLeaderChanged), res.Outcome)
		assert.Equal(t, "frank", res.NewLeader)

		var leader string
		require.NoError(t, env.DB.QueryRow(env.ctx, `SELECT leader_id FROM groups WHERE id = $1`, group.ID).Scan(&leader))
		assert.Equal(t, "frank", leader)

		status = env.DoJSON(t, http.MethodPost, "/groups/"+group.ID+"/leave", nil, frank, &res)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, string(domain.LeaveGroupDissolved), res.Outcome)

		var exists bool
		require.NoError(t, env.DB.QueryRow(env.ctx, `SELECT EXISTS(SELECT 1 FROM groups WHERE id = $1)`, group.ID).Scan(&exists))
		assert.False(t, exists)
	})

	t.Run("Leave Without Membership", func(t *testing.T) {
		group, _ := createGroup(t, env, erin, "Solo")

		status := env.DoJSON(t, http.MethodPost, "/groups/"+group.ID+"/leave", nil, grace, nil)
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("Only Leader Deletes", func(t *testing.T) {
		group, invite := createGroup(t, env, erin, "Runners")
		require.Equal(t, http.StatusOK, env.DoJSON(t, http.MethodPost, "/groups/join", map[string]string{"invite_token": invite}, frank, nil))

		status := env.DoJSON(t, http.MethodDelete, "/groups/"+group.ID, nil, frank, nil)
		assert.Equal(t, http.StatusForbidden, status)

		status = env.DoJSON(t, http.MethodDelete, "/groups/"+group.ID, nil, erin, nil)
		assert.Equal(t, http.StatusNoContent, status)

		var members int
		require.NoError(t, env.DB.QueryRow(env.ctx, `SELECT COUNT(*) FROM group_members WHERE group_id = $1`, group.ID).Scan(&members))
		assert.Zero(t, members)

		status = env.DoJSON(t, http.MethodDelete, "/groups/"+group.ID, nil, erin, nil)
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("Former Leader Cannot Delete", func(t *testing.T) {
		group, invite := createGroup(t, env, erin, "Climbers")
		require.Equal(t, http.StatusOK, env.DoJSON(t, http.MethodPost, "/groups/join", map[string]string{"invite_token": invite}, frank, nil))

		var res LeaveResponse
		require.Equal(t, http.StatusOK, env.DoJSON(t, http.MethodPost, "/groups/"+group.ID+"/leave", nil, erin, &res))
		require.Equal(t, "frank", res.NewLeader)
		require.Equal(t, http.StatusOK, env.DoJSON(t, http.MethodPost, "/groups/join", map[string]string{"invite_token": invite}, erin, nil))

		status := env.DoJSON(t, http.MethodDelete, "/groups/"+group.ID, nil, erin, nil)
		assert.Equal(t, http.StatusForbidden, status)

		var exists bool
		require.NoError(t, env.DB.QueryRow(env.ctx, `SELECT EXISTS(SELECT 1 FROM groups WHERE id = $1)`, group.ID).Scan(&exists))
		assert.True(t, exists)

		status = env.DoJSON(t, http.MethodDelete, "/groups/"+group.ID, nil, frank, nil)
		assert.Equal(t, http.StatusNoContent, status)
	})

	t.Run("Malformed Group ID", func(t *testing.T) {
		status := env.DoJSON(t, http.MethodPost, "/groups/not-a-uuid/leave", nil, erin, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})
}

// TestE2E_Stats тестирует эндпоинты статистики
func TestE2E_Stats(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	env := SetupTestEnvironment(t)
	defer env.Cleanup(t)

	env.WaitForHealthCheck(t)

	token := env.Login(t, "heidi")
	require.Equal(t, http.StatusOK, env.DoJSON(t, http.MethodPost, "/users", report(1, 2), token, nil))
	createGroup(t, env, token, "Stats")

	t.Run("Get General Stats", func(t *testing.T) {
		var stats struct {
			Users        int `json:"users"`
			LocatedUsers int `json:"located_users"`
			Groups       int `json:"groups"`
			Memberships  int `json:"memberships"`
		}
		status := env.DoJSON(t, http.MethodGet, "/stats", nil, token, &stats)
		require.Equal(t, http.StatusOK, status)

		assert.Equal(t, 1, stats.Users)
		assert.Equal(t, 1, stats.LocatedUsers)
		assert.Equal(t, 1, stats.Groups)
		assert.Equal(t, 1, stats.Memberships)
	})

	t.Run("Get User Stats", func(t *testing.T) {
		var stats struct {
			GroupsJoined int  `json:"groups_joined"`
			GroupsLed    int  `json:"groups_led"`
			HasLocation  bool `json:"has_location"`
		}
		status := env.DoJSON(t, http.MethodGet, "/stats/user?user_id=heidi", nil, token, &stats)
		require.Equal(t, http.StatusOK, status)

		assert.Equal(t, 1, stats.GroupsJoined)
		assert.Equal(t, 1, stats.GroupsLed)
		assert.True(t, stats.HasLocation)

	})

	t.Run("User Stats Need A Shared Group", func(t *testing.T) {
		ivy := env.Login(t, "ivy")

		status := env.DoJSON(t, http.MethodGet, "/stats/user?user_id=heidi", nil, ivy, nil)
		assert.Equal(t, http.StatusForbidden, status, "Stranger cannot read heidi's stats")

		status = env.DoJSON(t, http.MethodGet, "/stats/user?user_id=nobody", nil, token, nil)
		assert.Equal(t, http.StatusForbidden, status, "Unknown identities are not revealed")

		status = env.DoJSON(t, http.MethodGet, "/stats/user?user_id=ivy", nil, ivy, nil)
		assert.Equal(t, http.StatusNotFound, status, "Own stats without a profile")

		_, invite := createGroup(t, env, token, "Shared")
		require.Equal(t, http.StatusOK, env.DoJSON(t, http.MethodPost, "/groups/join", map[string]string{"invite_token": invite}, ivy, nil))

		var stats struct {
			GroupsLed int `json:"groups_led"`
		}
		status = env.DoJSON(t, http.MethodGet, "/stats/user?user_id=heidi", nil, ivy, &stats)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, 2, stats.GroupsLed)
	})
}

// recordingRenderer запоминает созданные маркеры
type recordingRenderer struct {
	mu     sync.Mutex
	labels map[mapview.Handle]string
	nextID int
	fitted int
}

func (r *recordingRenderer) Create(_ domain.Location, label, _ string) mapview.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	h := mapview.Handle(fmt.Sprintf("h%d", r.nextID))
	r.labels[h] = label
	return h
}

func (r *recordingRenderer) Move(mapview.Handle, domain.Location) {}

func (r *recordingRenderer) Remove(h mapview.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.labels, h)
}

func (r *recordingRenderer) FitBounds(orb.Bound, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fitted++
}

func (r *recordingRenderer) SetView(domain.Location, int) {}

func (r *recordingRenderer) Labels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.labels))
	for _, l := range r.labels {
		out = append(out, l)
	}
	return out
}

// TestE2E_Tracker тестирует клиентский цикл присутствия против реального сервера
func TestE2E_Tracker(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	env := SetupTestEnvironment(t)
	defer env.Cleanup(t)

	env.WaitForHealthCheck(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Ivan создает группу и сообщает позицию
	ivan := client.New(env.BaseURL, nil)
	_, err := ivan.Login(ctx, "ivan")
	require.NoError(t, err)

	_, err = ivan.ReportPosition(ctx, domain.ProfileUpdate{
		DisplayName: strPtr("Ivan"),
		Location:    &domain.Location{Longitude: -122.40, Latitude: 37.79},
	})
	require.NoError(t, err)

	group, err := ivan.CreateGroup(ctx, "Alpha")
	require.NoError(t, err)
	invite, err := ivan.InviteToken(ctx, group.ID)
	require.NoError(t, err)

	// Judy вступает и запускает трекер
	judy := client.New(env.BaseURL, nil)
	_, err = judy.Login(ctx, "judy")
	require.NoError(t, err)

	_, err = judy.JoinGroup(ctx, invite)
	require.NoError(t, err)

	_, err = judy.JoinGroup(ctx, invite)
	assert.ErrorIs(t, err, domain.ErrAlreadyMember, "Client maps the error envelope back to domain errors")
	assert.ErrorIs(t, err, domain.ErrConflict)

	renderer := &recordingRenderer{labels: map[mapview.Handle]string{}}
	device := geo.NewSimulatedDevice(domain.Location{Longitude: -122.42, Latitude: 37.77}, 0.0001, 7)
	source := geo.NewSource(device, 50*time.Millisecond, geo.DefaultOptions(), nil)

	tr := tracker.New(source, judy, mapview.NewReconciler(renderer, "judy"),
		tracker.Profile{DisplayName: "Judy"}, tracker.Config{}, nil)

	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(renderer.Labels()) == 2
	}, 10*time.Second, 50*time.Millisecond, "Both members should be rendered")

	assert.ElementsMatch(t, []string{"You", "Ivan"}, renderer.Labels())

	// Ivan покидает группу, группа переходит к Judy, маркер Ivan удаляется
	res, err := ivan.LeaveGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LeaveLeaderChanged, res.Outcome)
	tr.Refresh()

	require.Eventually(t, func() bool {
		labels := renderer.Labels()
		return len(labels) == 1 && labels[0] == "You"
	}, 10*time.Second, 50*time.Millisecond)

	tr.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Tracker did not stop")
	}

	me, err := judy.User(ctx, "judy")
	require.NoError(t, err)
	assert.Equal(t, "Judy", me.DisplayName)
	assert.NotNil(t, me.Location)
}
