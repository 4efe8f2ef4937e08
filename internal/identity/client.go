// Package identity implements the client for the Fieldnote auth service.
// The client owns the device's token pair: it persists the pair sealed
// into local storage and notifies subscribers whenever the session it
// represents changes.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"fieldnote/agent/internal/config"
	"fieldnote/agent/internal/models"
	"fieldnote/agent/internal/storage"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoSession          = errors.New("no session")
)

// SessionTokenKey is the storage key holding the sealed token pair. It is
// deliberately not on the logout allow-list.
const SessionTokenKey = "session_token"

type RegisterInput struct {
	Email    string
	Password string
	Username string
	FullName string
}

type tokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type identityPayload struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	CreatedAt  time.Time `json:"createdAt"`
	AvatarHint string    `json:"avatarHint"`
}

func (p identityPayload) toModel() models.Identity {
	return models.Identity{
		ID:         p.ID,
		Email:      p.Email,
		CreatedAt:  p.CreatedAt,
		AvatarHint: p.AvatarHint,
	}
}

type authPayload struct {
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken"`
	Identity     identityPayload `json:"identity"`
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	store      storage.Store
	vault      *storage.Vault
	log        zerolog.Logger

	mu     sync.Mutex
	tokens tokenPair
	next   int
	subs   map[int]func(*models.Identity)

	openBrowser func(url string) error
}

func NewClient(cfg config.BackendConfig, store storage.Store, vault *storage.Vault, log zerolog.Logger) *Client {
	return &Client{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		httpClient:  &http.Client{Timeout: cfg.RequestTimeout},
		store:       store,
		vault:       vault,
		log:         log.With().Str("component", "identity").Logger(),
		subs:        make(map[int]func(*models.Identity)),
		openBrowser: openBrowser,
	}
}

// LoadPersisted restores the sealed token pair from a previous run. A
// missing or undecryptable value is not an error; the device simply has
// no session.
func (c *Client) LoadPersisted(ctx context.Context) {
	sealed, err := c.store.Get(ctx, SessionTokenKey)
	if err != nil {
		if !errors.Is(err, storage.ErrKeyNotFound) {
			c.log.Warn().Err(err).Msg("read persisted session failed")
		}
		return
	}

	raw, err := c.vault.Open(sealed)
	if err != nil {
		c.log.Warn().Err(err).Msg("unseal persisted session failed")
		return
	}

	var pair tokenPair
	if err := json.Unmarshal(raw, &pair); err != nil {
		c.log.Warn().Err(err).Msg("decode persisted session failed")
		return
	}

	c.mu.Lock()
	c.tokens = pair
	c.mu.Unlock()
}

func (c *Client) Subscribe(fn func(*models.Identity)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.next
	c.next++
	c.subs[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

func (c *Client) Login(ctx context.Context, email, password string) (models.Identity, error) {
	var out authPayload
	status, err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	if err != nil {
		return models.Identity{}, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return models.Identity{}, ErrInvalidCredentials
	}
	if status != http.StatusOK {
		return models.Identity{}, fmt.Errorf("login: unexpected status %d", status)
	}

	id := out.Identity.toModel()
	c.installTokens(ctx, tokenPair{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken})
	c.notify(&id)
	return id, nil
}

// Logout revokes the session remotely and always drops the local token
// pair, even when the revocation request fails.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	pair := c.tokens
	c.tokens = tokenPair{}
	c.mu.Unlock()

	if err := c.store.RemoveMany(ctx, []string{SessionTokenKey}); err != nil {
		c.log.Warn().Err(err).Msg("drop persisted session failed")
	}

	if pair.AccessToken == "" {
		return nil
	}
	c.notify(nil)

	status, err := c.doAuthed(ctx, http.MethodPost, "/api/v1/auth/logout", nil, nil, pair.AccessToken)
	if err != nil {
		return err
	}
	if status != http.StatusNoContent && status != http.StatusOK {
		return fmt.Errorf("logout: unexpected status %d", status)
	}
	return nil
}

func (c *Client) GetSession(ctx context.Context) (*models.Identity, error) {
	c.mu.Lock()
	pair := c.tokens
	c.mu.Unlock()

	if pair.AccessToken == "" {
		return nil, nil
	}

	var out identityPayload
	status, err := c.doAuthed(ctx, http.MethodGet, "/api/v1/auth/session", nil, &out, pair.AccessToken)
	if err != nil {
		return nil, err
	}
	if status == http.StatusOK {
		id := out.toModel()
		return &id, nil
	}
	if status != http.StatusUnauthorized {
		return nil, fmt.Errorf("get session: unexpected status %d", status)
	}

	// Access token rejected; one refresh attempt before giving up.
	if err := c.refreshTokens(ctx, pair.RefreshToken); err != nil {
		c.log.Debug().Err(err).Msg("token refresh failed")
		c.clearTokens(ctx)
		return nil, nil
	}

	c.mu.Lock()
	pair = c.tokens
	c.mu.Unlock()

	status, err = c.doAuthed(ctx, http.MethodGet, "/api/v1/auth/session", nil, &out, pair.AccessToken)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		c.clearTokens(ctx)
		return nil, nil
	}
	id := out.toModel()
	return &id, nil
}

// ExchangeTokens installs a token pair delivered out of band (OAuth deep
// link) and trades it for a backend-minted pair.
func (c *Client) ExchangeTokens(ctx context.Context, access, refresh string) error {
	var out authPayload
	status, err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/token", map[string]string{
		"grantType":    "exchange",
		"accessToken":  access,
		"refreshToken": refresh,
	}, &out)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("token exchange: unexpected status %d", status)
	}

	id := out.Identity.toModel()
	c.installTokens(ctx, tokenPair{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken})
	c.notify(&id)
	return nil
}

// Register creates an identity and installs its token pair so that a
// follow-up DeleteIdentity can authenticate without a login round trip.
func (c *Client) Register(ctx context.Context, input RegisterInput) (string, error) {
	var out authPayload
	status, err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email":    input.Email,
		"password": input.Password,
	}, &out)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return "", fmt.Errorf("register: unexpected status %d", status)
	}

	c.installTokens(ctx, tokenPair{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken})
	return out.Identity.ID, nil
}

func (c *Client) DeleteIdentity(ctx context.Context) error {
	c.mu.Lock()
	pair := c.tokens
	c.mu.Unlock()

	if pair.AccessToken == "" {
		return ErrNoSession
	}

	status, err := c.doAuthed(ctx, http.MethodDelete, "/api/v1/auth/identity", nil, nil, pair.AccessToken)
	if err != nil {
		return err
	}
	if status != http.StatusNoContent && status != http.StatusOK {
		return fmt.Errorf("delete identity: unexpected status %d", status)
	}

	c.clearTokens(ctx)
	return nil
}

// CheckAlive reports whether the current session is still valid. A token
// past its expiry is declared dead locally; otherwise the backend decides.
func (c *Client) CheckAlive(ctx context.Context) (bool, error) {
	c.mu.Lock()
	pair := c.tokens
	c.mu.Unlock()

	if pair.AccessToken == "" {
		return false, nil
	}

	if expired, ok := tokenExpired(pair.AccessToken); ok && expired {
		if err := c.refreshTokens(ctx, pair.RefreshToken); err != nil {
			return false, nil
		}
		c.mu.Lock()
		pair = c.tokens
		c.mu.Unlock()
	}

	status, err := c.doAuthed(ctx, http.MethodGet, "/api/v1/auth/session", nil, nil, pair.AccessToken)
	if err != nil {
		return false, err
	}
	return status == http.StatusOK, nil
}

// StartExternalLogin asks the backend for a provider authorization URL and
// hands it to the OS browser. Completion arrives later as a deep link.
func (c *Client) StartExternalLogin(ctx context.Context) error {
	var out struct {
		AuthorizationURL string `json:"authorizationUrl"`
	}
	status, err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/external", nil, &out)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("external login: unexpected status %d", status)
	}

	c.log.Info().Str("url", out.AuthorizationURL).Msg("external login started")
	if err := c.openBrowser(out.AuthorizationURL); err != nil {
		c.log.Warn().Err(err).Msg("open browser failed; URL logged above")
	}
	return nil
}

// AccessToken exposes the current bearer token to sibling clients.
func (c *Client) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens.AccessToken
}

func (c *Client) installTokens(ctx context.Context, pair tokenPair) {
	c.mu.Lock()
	c.tokens = pair
	c.mu.Unlock()

	raw, err := json.Marshal(pair)
	if err != nil {
		c.log.Warn().Err(err).Msg("encode session failed")
		return
	}
	sealed, err := c.vault.Seal(raw)
	if err != nil {
		c.log.Warn().Err(err).Msg("seal session failed")
		return
	}
	if err := c.store.Set(ctx, SessionTokenKey, sealed); err != nil {
		c.log.Warn().Err(err).Msg("persist session failed")
	}
}

func (c *Client) clearTokens(ctx context.Context) {
	c.mu.Lock()
	c.tokens = tokenPair{}
	c.mu.Unlock()

	if err := c.store.RemoveMany(ctx, []string{SessionTokenKey}); err != nil {
		c.log.Warn().Err(err).Msg("drop persisted session failed")
	}
}

func (c *Client) refreshTokens(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return ErrNoSession
	}

	var out authPayload
	status, err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/token", map[string]string{
		"grantType":    "refresh_token",
		"refreshToken": refreshToken,
	}, &out)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("token refresh: unexpected status %d", status)
	}

	c.installTokens(ctx, tokenPair{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken})
	return nil
}

func (c *Client) notify(id *models.Identity) {
	c.mu.Lock()
	fns := make([]func(*models.Identity), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(id)
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) (int, error) {
	return c.doAuthed(ctx, method, path, body, out, "")
}

func (c *Client) doAuthed(ctx context.Context, method, path string, body any, out any, token string) (int, error) {
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
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < http.StatusBadRequest {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	} else {
		io.Copy(io.Discard, resp.Body)
	}

	return resp.StatusCode, nil
}

// tokenExpired inspects the unverified claims of a JWT access token. The
// second return is false when the token is not parseable as a JWT.
func tokenExpired(token string) (expired bool, ok bool) {
	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return false, false
	}
	if claims.ExpiresAt == nil {
		return false, true
	}
	return claims.ExpiresAt.Before(time.Now()), true
}

func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}
