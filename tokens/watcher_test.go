package tokens

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"twitch-chat-bridge/helix"
)

type stubValidator struct {
	results []error
	calls   int
}

func (s *stubValidator) ValidateToken(context.Context) (helix.TokenInfo, error) {
	err := s.results[s.calls%len(s.results)]
	s.calls++
	return helix.TokenInfo{Login: "bot", ExpiresIn: time.Hour}, err
}

func TestCheckToleratesTransientErrors(t *testing.T) {
	w := NewWatcher(&stubValidator{results: []error{errors.New("timeout")}}, time.Hour, zap.NewNop().Sugar())
	if err := w.Check(context.Background()); err != nil {
		t.Fatalf("transient error should not stop the watcher: %v", err)
	}
}

func TestRunStopsOnRevokedToken(t *testing.T) {
	v := &stubValidator{results: []error{nil, helix.ErrUnauthorized}}
	w := NewWatcher(v, 10*time.Millisecond, zap.NewNop().Sugar())

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	select {
	case err := <-done:
		if !errors.Is(err, helix.ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("watcher did not stop")
	}
	if v.calls != 2 {
		t.Fatalf("expected 2 checks, got %d", v.calls)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := NewWatcher(&stubValidator{results: []error{nil}}, time.Hour, zap.NewNop().Sugar())
	if err := w.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestIsExpiringSoon(t *testing.T) {
	if isExpiringSoon(0) {
		t.Fatalf("zero means non-expiring")
	}
	if !isExpiringSoon(time.Minute) {
		t.Fatalf("one minute left should warn")
	}
	if isExpiringSoon(time.Hour) {
		t.Fatalf("one hour left should not warn")
	}
}
