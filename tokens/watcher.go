package tokens

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"twitch-chat-bridge/helix"
)

const expiringSoon = 5 * time.Minute

// Validator проверяет токен на стороне Twitch.
type Validator interface {
	ValidateToken(ctx context.Context) (helix.TokenInfo, error)
}

// Watcher периодически перепроверяет пользовательский токен и завершает
// работу, когда Twitch его отзывает.
type Watcher struct {
	validator Validator
	every     time.Duration
	log       *zap.SugaredLogger
}

// NewWatcher создаёт Watcher.
func NewWatcher(v Validator, every time.Duration, logger *zap.SugaredLogger) *Watcher {
	return &Watcher{validator: v, every: every, log: logger}
}

// Run проверяет токен каждые every до отмены ctx. Отзыв токена или потеря
// scope возвращаются как ошибка; сетевые сбои только логируются.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if err := w.Check(ctx); err != nil {
			return err
		}
	}
}

// Check выполняет одну проверку.
func (w *Watcher) Check(ctx context.Context) error {
	info, err := w.validator.ValidateToken(ctx)
	switch {
	case errors.Is(err, helix.ErrUnauthorized), errors.Is(err, helix.ErrMissingScope):
		w.log.Errorf("токен больше не действителен: %v", err)
		return err
	case err != nil:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.log.Warnf("не удалось проверить токен: %v", err)
		return nil
	}

	if isExpiringSoon(info.ExpiresIn) {
		w.log.Warnf("токен %s истекает через %s", info.Login, info.ExpiresIn)
	}
	return nil
}

// Нулевой срок означает бессрочный токен.
func isExpiringSoon(left time.Duration) bool {
	return left > 0 && left < expiringSoon
}
