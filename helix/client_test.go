package helix

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, clientID string, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient("oauth:tok", clientID, time.Second, WithBaseURLs(srv.URL, srv.URL+"/"))
}

func TestValidateTokenAdoptsClientID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/validate", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "OAuth tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"client_id":"cid","login":"bot","user_id":"42","scopes":["chat:read"],"expires_in":3600}`))
	})
	c := newTestClient(t, "", mux)

	info, err := c.ValidateToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bot", info.Login)
	assert.Equal(t, "42", info.UserID)
	assert.Equal(t, time.Hour, info.ExpiresIn)
	assert.Equal(t, "cid", c.ClientID())
}

func TestValidateTokenMissingScope(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/validate", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"client_id":"cid","login":"bot","scopes":["chat:edit"]}`))
	})
	c := newTestClient(t, "explicit", mux)

	_, err := c.ValidateToken(context.Background())
	require.ErrorIs(t, err, ErrMissingScope)
	assert.Equal(t, "explicit", c.ClientID())
}

func TestValidateTokenUnauthorized(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/validate", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status":401,"message":"invalid access token"}`, http.StatusUnauthorized)
	})
	c := newTestClient(t, "", mux)

	_, err := c.ValidateToken(context.Background())
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestUserByLogin(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/helix/users", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "cid", r.Header.Get("Client-Id"))
		if r.URL.Query().Get("login") != "somechannel" {
			_, _ = w.Write([]byte(`{"data":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"id":"1001","login":"somechannel","display_name":"SomeChannel"}]}`))
	})
	c := newTestClient(t, "cid", mux)

	u, err := c.UserByLogin(context.Background(), "SomeChannel")
	require.NoError(t, err)
	assert.Equal(t, "1001", u.ID)
	assert.Equal(t, "SomeChannel", u.DisplayName)

	_, err = c.UserByLogin(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBadgesBuildCatalog(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/helix/chat/badges/global", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"set_id":"subscriber","versions":[
			{"id":"0","image_url_1x":"g1","image_url_2x":"g2","image_url_4x":"g4"}]},
			{"set_id":"moderator","versions":[{"id":"1","image_url_1x":"m1","image_url_2x":"m2","image_url_4x":"m4"}]}]}`))
	})
	mux.HandleFunc("/helix/chat/badges", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1001", r.URL.Query().Get("broadcaster_id"))
		_, _ = w.Write([]byte(`{"data":[{"set_id":"subscriber","versions":[
			{"id":"0","image_url_1x":"c1","image_url_2x":"c2","image_url_4x":"c4"}]}]}`))
	})
	c := newTestClient(t, "cid", mux)

	global, err := c.GlobalBadges(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, global.Len())

	channel, err := c.ChannelBadges(context.Background(), "1001")
	require.NoError(t, err)

	b, ok := channel.Lookup("subscriber", "0")
	require.True(t, ok)
	assert.Equal(t, "c4", b.Scale4URL)
}

func TestNon2xxReturnsStatusError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/helix/chat/badges/global", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusServiceUnavailable)
	})
	c := newTestClient(t, "cid", mux)

	_, err := c.GlobalBadges(context.Background())
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.Status)
	assert.Equal(t, "global badges", se.Op)
	assert.Equal(t, "boom", se.Body)
}
