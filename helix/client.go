package helix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"twitch-chat-bridge/model"
)

const (
	DefaultIDBaseURL  = "https://id.twitch.tv"
	DefaultAPIBaseURL = "https://api.twitch.tv"

	// ChatReadScope нужен токену для чтения чата по IRC.
	ChatReadScope = "chat:read"
)

var (
	// ErrUnauthorized — Twitch отклонил токен.
	ErrUnauthorized = errors.New("helix: token rejected")
	// ErrMissingScope — у токена нет нужного scope.
	ErrMissingScope = errors.New("helix: token lacks required scope")
	// ErrNotFound — пользователь не найден.
	ErrNotFound = errors.New("helix: not found")
)

// StatusError описывает ответ Twitch с неуспешным статусом.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("helix: %s: unexpected status %d: %s", e.Op, e.Status, e.Body)
}

// TokenInfo — ответ /oauth2/validate.
type TokenInfo struct {
	ClientID  string        `json:"client_id"`
	Login     string        `json:"login"`
	UserID    string        `json:"user_id"`
	Scopes    []string      `json:"scopes"`
	ExpiresIn time.Duration `json:"-"`
}

// User — запись /helix/users.
type User struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

// Client ходит в Twitch API от имени одного пользовательского токена.
type Client struct {
	token      string
	clientID   string
	idBaseURL  string
	apiBaseURL string
	http       *http.Client
}

// Option настраивает Client.
type Option func(*Client)

// WithHTTPClient подменяет HTTP-клиент.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithBaseURLs подменяет адреса id.twitch.tv и api.twitch.tv.
func WithBaseURLs(idBase, apiBase string) Option {
	return func(cl *Client) {
		cl.idBaseURL = strings.TrimRight(idBase, "/")
		cl.apiBaseURL = strings.TrimRight(apiBase, "/")
	}
}

// NewClient создаёт клиента. clientID может быть пустым: тогда он берётся
// из ответа ValidateToken.
func NewClient(token, clientID string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		token:      strings.TrimPrefix(strings.TrimSpace(token), "oauth:"),
		clientID:   strings.TrimSpace(clientID),
		idBaseURL:  DefaultIDBaseURL,
		apiBaseURL: DefaultAPIBaseURL,
		http:       &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ClientID возвращает используемый Client-Id.
func (c *Client) ClientID() string { return c.clientID }

// ValidateToken проверяет токен и наличие scope chat:read.
func (c *Client) ValidateToken(ctx context.Context) (TokenInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.idBaseURL+"/oauth2/validate", nil)
	if err != nil {
		return TokenInfo{}, fmt.Errorf("helix: validate: create request: %w", err)
	}
	req.Header.Set("Authorization", "OAuth "+c.token)

	var payload struct {
		TokenInfo
		ExpiresIn int64 `json:"expires_in"`
	}
	if err := c.do(req, "validate", &payload); err != nil {
		return TokenInfo{}, err
	}

	info := payload.TokenInfo
	info.ExpiresIn = time.Duration(payload.ExpiresIn) * time.Second
	if !slices.Contains(info.Scopes, ChatReadScope) {
		return info, fmt.Errorf("%w: %s", ErrMissingScope, ChatReadScope)
	}
	if c.clientID == "" {
		c.clientID = info.ClientID
	}
	return info, nil
}

// UserByLogin ищет пользователя по логину.
func (c *Client) UserByLogin(ctx context.Context, login string) (User, error) {
	q := url.Values{}
	q.Set("login", strings.ToLower(strings.TrimSpace(login)))

	var payload struct {
		Data []User `json:"data"`
	}
	if err := c.get(ctx, "/helix/users", q, "users", &payload); err != nil {
		return User{}, err
	}
	if len(payload.Data) == 0 {
		return User{}, fmt.Errorf("%w: user %q", ErrNotFound, login)
	}
	return payload.Data[0], nil
}

// GlobalBadges загружает глобальный каталог значков.
func (c *Client) GlobalBadges(ctx context.Context) (model.BadgeCatalog, error) {
	return c.badges(ctx, "/helix/chat/badges/global", nil, "global badges")
}

// ChannelBadges загружает значки канала.
func (c *Client) ChannelBadges(ctx context.Context, broadcasterID string) (model.BadgeCatalog, error) {
	q := url.Values{}
	q.Set("broadcaster_id", broadcasterID)
	return c.badges(ctx, "/helix/chat/badges", q, "channel badges")
}

type badgeSet struct {
	SetID    string `json:"set_id"`
	Versions []struct {
		ID         string `json:"id"`
		ImageURL1x string `json:"image_url_1x"`
		ImageURL2x string `json:"image_url_2x"`
		ImageURL4x string `json:"image_url_4x"`
	} `json:"versions"`
}

func (c *Client) badges(ctx context.Context, path string, q url.Values, op string) (model.BadgeCatalog, error) {
	var payload struct {
		Data []badgeSet `json:"data"`
	}
	if err := c.get(ctx, path, q, op, &payload); err != nil {
		return nil, err
	}

	catalog := make(model.BadgeCatalog)
	for _, set := range payload.Data {
		for _, v := range set.Versions {
			catalog.Add(model.Badge{
				SetID:     set.SetID,
				Version:   v.ID,
				Scale1URL: v.ImageURL1x,
				Scale2URL: v.ImageURL2x,
				Scale4URL: v.ImageURL4x,
			})
		}
	}
	return catalog, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, op string, out any) error {
	target := c.apiBaseURL + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("helix: %s: create request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Client-Id", c.clientID)
	return c.do(req, op, out)
}

func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("helix: %s: request failed: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s", ErrUnauthorized, op)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("helix: %s: decode response: %w", op, err)
	}
	return nil
}
