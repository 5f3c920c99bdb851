package service

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"twitch-chat-bridge/twitch"
)

// Dialer открывает новое соединение с IRC-сервером.
type Dialer func(ctx context.Context) (io.ReadWriteCloser, error)

// Service держит IRC-сессию живой: переподключается после разрывов
// не чаще одного раза за reconnectEvery и останавливается на отказах сервера.
type Service struct {
	dial       Dialer
	newSession func() *twitch.Session
	limiter    *rate.Limiter
	log        *zap.SugaredLogger
}

// New создаёт Service. newSession вызывается на каждое подключение.
func New(dial Dialer, newSession func() *twitch.Session, reconnectEvery time.Duration, logger *zap.SugaredLogger) *Service {
	return &Service{
		dial:       dial,
		newSession: newSession,
		limiter:    rate.NewLimiter(rate.Every(reconnectEvery), 1),
		log:        logger,
	}
}

// Run блокируется до отмены контекста или фатального отказа сервера.
func (s *Service) Run(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}

		conn, err := s.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warnf("попытка %d: не удалось подключиться: %v", attempt, err)
			continue
		}

		err = s.newSession().Run(ctx, conn)
		_ = conn.Close()

		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case Fatal(err):
			return err
		default:
			s.log.Warnf("сессия прервана: %v; переподключение", err)
		}
	}
}

// Fatal сообщает, что после ошибки сессии переподключаться бессмысленно.
func Fatal(err error) bool {
	return errors.Is(err, twitch.ErrAuthRejected) ||
		errors.Is(err, twitch.ErrBanned) ||
		errors.Is(err, twitch.ErrCapabilityDenied)
}
