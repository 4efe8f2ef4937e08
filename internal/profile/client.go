// Package profile implements the client for the Fieldnote profile
// service. Profiles are keyed by identity id and may legitimately not
// exist yet for a fresh identity.
package profile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"fieldnote/agent/internal/config"
	"fieldnote/agent/internal/models"
)

var ErrProfileNotFound = errors.New("profile not found")

// TokenSource supplies the bearer token for profile requests; the
// identity client implements it.
type TokenSource interface {
	AccessToken() string
}

// ForceLogoutPublisher receives the cross-cutting signal raised when the
// backend rejects the device's credential on an unrelated request.
type ForceLogoutPublisher interface {
	Publish(topic string)
}

const topicForceLogout = "force-logout"

type CreateInput struct {
	Username string
	FullName string
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	tokens     TokenSource
	bus        ForceLogoutPublisher
	log        zerolog.Logger
}

func NewClient(cfg config.BackendConfig, tokens TokenSource, bus ForceLogoutPublisher, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    cfg.ProfileBaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		tokens:     tokens,
		bus:        bus,
		log:        log.With().Str("component", "profile").Logger(),
	}
}

func (c *Client) CheckExists(ctx context.Context, identityID string) (bool, error) {
	status, err := c.do(ctx, http.MethodHead, "/api/v1/profiles/"+identityID, nil, nil)
	if err != nil {
		return false, err
	}
	switch status {
	case http.StatusOK, http.StatusNoContent:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("check profile: unexpected status %d", status)
	}
}

func (c *Client) GetProfile(ctx context.Context, identityID string) (*models.Profile, error) {
	var out profilePayload
	status, err := c.do(ctx, http.MethodGet, "/api/v1/profiles/"+identityID, nil, &out)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
		p := out.toModel()
		return &p, nil
	case http.StatusNotFound:
		return nil, ErrProfileNotFound
	default:
		return nil, fmt.Errorf("get profile: unexpected status %d", status)
	}
}

func (c *Client) CreateProfile(ctx context.Context, identityID string, input CreateInput) error {
	status, err := c.do(ctx, http.MethodPost, "/api/v1/profiles", map[string]string{
		"identityId": identityID,
		"username":   input.Username,
		"fullName":   input.FullName,
	}, nil)
	if err != nil {
		return err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return fmt.Errorf("create profile: unexpected status %d", status)
	}
	return nil
}

type profilePayload struct {
	IdentityID string    `json:"identityId"`
	Username   string    `json:"username"`
	FullName   string    `json:"fullName"`
	Bio        string    `json:"bio"`
	Role       string    `json:"role"`
	AvatarRef  string    `json:"avatarRef"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (p profilePayload) toModel() models.Profile {
	return models.Profile{
		IdentityID: p.IdentityID,
		Username:   p.Username,
		FullName:   p.FullName,
		Bio:        p.Bio,
		Role:       models.AccountRole(p.Role),
		AvatarRef:  p.AvatarRef,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	if token := c.tokens.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized && c.bus != nil {
		// The backend no longer honours our credential; let the session
		// coordinator decide what to do about it.
		c.log.Warn().Str("path", path).Msg("credential rejected, raising force-logout")
		c.bus.Publish(topicForceLogout)
	}

	if out != nil && resp.StatusCode < http.StatusBadRequest {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	} else {
		io.Copy(io.Discard, resp.Body)
	}

	return resp.StatusCode, nil
}
