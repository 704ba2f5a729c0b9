// Package client calls the group map HTTP API on behalf of one user.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aidar/groupmap/internal/domain"
)

const defaultTimeout = 10 * time.Second

// Client is an HTTP client for the group map API. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

// New creates a Client for the API at baseURL. A nil httpClient gets a
// client with a 10s timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// SetToken sets the bearer token sent with every request.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Login obtains a token for userID and keeps it for later calls.
func (c *Client) Login(ctx context.Context, userID string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{"user_id": userID}, &resp); err != nil {
		return "", err
	}
	c.SetToken(resp.Token)
	return resp.Token, nil
}

type reportRequest struct {
	DisplayName *string    `json:"display_name,omitempty"`
	AvatarURL   *string    `json:"avatar_url,omitempty"`
	Email       *string    `json:"email,omitempty"`
	Longitude   *float64   `json:"longitude,omitempty"`
	Latitude    *float64   `json:"latitude,omitempty"`
	ReportedAt  *time.Time `json:"reported_at,omitempty"`
}

// ReportPosition upserts the caller's profile and position.
func (c *Client) ReportPosition(ctx context.Context, update domain.ProfileUpdate) (*domain.PositionedUser, error) {
	req := reportRequest{
		DisplayName: update.DisplayName,
		AvatarURL:   update.AvatarURL,
		Email:       update.Email,
		ReportedAt:  update.ReportedAt,
	}
	if update.Location != nil {
		req.Longitude = &update.Location.Longitude
		req.Latitude = &update.Location.Latitude
	}

	var user domain.PositionedUser
	if err := c.do(ctx, http.MethodPost, "/users", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// FetchVisibleRoster returns one roster per group of the caller.
func (c *Client) FetchVisibleRoster(ctx context.Context) ([]domain.GroupRoster, error) {
	var rosters []domain.GroupRoster
	if err := c.do(ctx, http.MethodGet, "/roster", nil, &rosters); err != nil {
		return nil, err
	}
	return rosters, nil
}

// User returns a profile visible to the caller.
func (c *Client) User(ctx context.Context, userID string) (*domain.PositionedUser, error) {
	var user domain.PositionedUser
	if err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID), nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateGroup creates a group led by the caller.
func (c *Client) CreateGroup(ctx context.Context, name string) (*domain.Group, error) {
	var group domain.Group
	if err := c.do(ctx, http.MethodPost, "/groups", map[string]string{"name": name}, &group); err != nil {
		return nil, err
	}
	return &group, nil
}

// DeleteGroup deletes a group the caller leads.
func (c *Client) DeleteGroup(ctx context.Context, groupID uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/groups/"+groupID.String(), nil, nil)
}

// JoinGroup joins the group behind inviteToken.
func (c *Client) JoinGroup(ctx context.Context, inviteToken string) (*domain.Group, error) {
	var group domain.Group
	if err := c.do(ctx, http.MethodPost, "/groups/join", map[string]string{"invite_token": inviteToken}, &group); err != nil {
		return nil, err
	}
	return &group, nil
}

// LeaveGroup leaves a group.
func (c *Client) LeaveGroup(ctx context.Context, groupID uuid.UUID) (*domain.LeaveResult, error) {
	var result domain.LeaveResult
	if err := c.do(ctx, http.MethodPost, "/groups/"+groupID.String()+"/leave", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Members lists a group's members.
func (c *Client) Members(ctx context.Context, groupID uuid.UUID) ([]domain.PositionedUser, error) {
	var members []domain.PositionedUser
	if err := c.do(ctx, http.MethodGet, "/groups/"+groupID.String()+"/members", nil, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// InviteToken returns a group's invite token.
func (c *Client) InviteToken(ctx context.Context, groupID uuid.UUID) (string, error) {
	var resp struct {
		InviteToken string `json:"invite_token"`
	}
	if err := c.do(ctx, http.MethodGet, "/groups/"+groupID.String()+"/invite", nil, &resp); err != nil {
		return "", err
	}
	return resp.InviteToken, nil
}

// InvitePreview returns the public view of the group behind inviteToken.
func (c *Client) InvitePreview(ctx context.Context, inviteToken string) (*domain.InvitePreview, error) {
	var preview domain.InvitePreview
	if err := c.do(ctx, http.MethodGet, "/invites/"+url.PathEscape(inviteToken), nil, &preview); err != nil {
		return nil, err
	}
	return &preview, nil
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// decodeError maps an error envelope back onto the domain sentinels.
func decodeError(resp *http.Response) error {
	var env errorEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil || env.Error.Code == "" {
		return fmt.Errorf("unexpected response: %s", resp.Status)
	}

	sentinel := domain.ErrorFromCode(domain.ErrorCode(env.Error.Code))
	if sentinel == nil {
		return errors.New(env.Error.Message)
	}
	return fmt.Errorf("%w: %s", sentinel, env.Error.Message)
}
