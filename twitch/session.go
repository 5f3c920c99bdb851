package twitch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"

	"twitch-chat-bridge/irc"
	"twitch-chat-bridge/model"
)

// DefaultCapability — capability, без которой не приходят теги PRIVMSG.
const DefaultCapability = "twitch.tv/tags"

var (
	// ErrAuthRejected — сервер ответил NOTICE после начала аутентификации.
	ErrAuthRejected = errors.New("twitch: authentication rejected")
	// ErrBanned — сервер вывел нас из канала.
	ErrBanned = errors.New("twitch: parted from channel")
	// ErrCapabilityDenied — сервер отклонил CAP REQ.
	ErrCapabilityDenied = errors.New("twitch: capability denied")
)

// Handler принимает события сессии, преобразованные в доменные модели.
type Handler interface {
	HandleChat(context.Context, []model.ChatMessage)
	HandleNotice(context.Context, model.Notice)
	HandleState(ctx context.Context, state State, detail string)
}

// FrameObserver получает счётчики кадров и смены состояния; используется для метрик.
type FrameObserver interface {
	FrameReceived()
	FrameMalformed()
	StateChanged(from, to string)
}

type nopObserver struct{}

func (nopObserver) FrameReceived()              {}
func (nopObserver) FrameMalformed()             {}
func (nopObserver) StateChanged(string, string) {}

// SessionConfig — учётные данные и канал одной сессии.
type SessionConfig struct {
	Login      string
	Token      string
	Channel    string
	Capability string
}

// SessionOption настраивает Session.
type SessionOption func(*Session)

// WithBadges задаёт каталог значков для обогащения сообщений.
func WithBadges(c model.BadgeCatalog) SessionOption {
	return func(s *Session) { s.badges = c }
}

// WithColorSource подменяет генератор случайных чисел для цветов.
func WithColorSource(intn func(n int) int) SessionOption {
	return func(s *Session) { s.colors = newColorCache(intn) }
}

// WithLogger задаёт логгер.
func WithLogger(l *zap.SugaredLogger) SessionOption {
	return func(s *Session) { s.log = l }
}

// WithFrameObserver подключает наблюдателя кадров.
func WithFrameObserver(o FrameObserver) SessionOption {
	return func(s *Session) { s.observer = o }
}

// WithSessionClock подменяет источник времени.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// Session ведёт одно IRC-подключение: рукопожатие, вход в канал и разбор
// PRIVMSG. Не потокобезопасна; Run вызывается из одной горутины.
type Session struct {
	cfg      SessionConfig
	handler  Handler
	badges   model.BadgeCatalog
	colors   *colorCache
	log      *zap.SugaredLogger
	observer FrameObserver
	now      func() time.Time

	conn     *irc.Conn
	state    State
	reported bool
}

// NewSession создаёт сессию.
func NewSession(cfg SessionConfig, handler Handler, opts ...SessionOption) *Session {
	cfg.Token = strings.TrimPrefix(strings.TrimSpace(cfg.Token), "oauth:")
	cfg.Login = strings.ToLower(strings.TrimSpace(cfg.Login))
	cfg.Channel = normalizeChannel(cfg.Channel)
	if cfg.Capability == "" {
		cfg.Capability = DefaultCapability
	}

	s := &Session{
		cfg:      cfg,
		handler:  handler,
		badges:   model.BadgeCatalog{},
		colors:   newColorCache(rand.IntN),
		log:      zap.NewNop().Sugar(),
		observer: nopObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State возвращает текущее состояние.
func (s *Session) State() State {
	return s.state
}

type readDeadliner interface {
	SetReadDeadline(time.Time) error
}

// Run выполняет рукопожатие и обрабатывает кадры до разрыва, отказа сервера
// или отмены ctx. При отмене в состоянии Joined отправляется PART.
func (s *Session) Run(ctx context.Context, rw io.ReadWriter) error {
	s.conn = irc.NewConn(rw)
	s.reported = false
	s.setState(ctx, StateConnecting, "")

	if d, ok := rw.(readDeadliner); ok {
		stop := context.AfterFunc(ctx, func() { _ = d.SetReadDeadline(time.Now()) })
		defer stop()
	}

	s.conn.SendPrepare("PASS oauth:" + s.cfg.Token)
	s.conn.SendPrepare("NICK " + s.cfg.Login)
	if err := s.conn.SendFlush(); err != nil {
		return s.fail(ctx, fmt.Errorf("twitch: send credentials: %w", err))
	}
	s.setState(ctx, StateAuthenticating, "")

	for {
		if err := ctx.Err(); err != nil {
			return s.leave(ctx, err)
		}

		if err := s.conn.Receive(); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return s.leave(ctx, ctxErr)
			}
			return s.fail(ctx, fmt.Errorf("twitch: receive: %w", err))
		}

		batch, err := s.process(ctx, s.conn.Frames())
		if len(batch) > 0 {
			s.handler.HandleChat(ctx, batch)
		}
		if err != nil {
			return s.fail(ctx, err)
		}

		if s.conn.Closed() {
			return s.fail(ctx, irc.ErrTransportClosed)
		}
	}
}

// process разбирает кадры одной итерации чтения. Останавливается на первом
// кадре, завершающем сессию, но сообщения до него возвращает.
func (s *Session) process(ctx context.Context, frames []string) ([]model.ChatMessage, error) {
	var batch []model.ChatMessage
	for _, raw := range frames {
		s.observer.FrameReceived()

		msg, err := irc.Parse(raw)
		if err != nil {
			s.observer.FrameMalformed()
			s.log.Warnf("пропущен некорректный кадр: %v", err)
			continue
		}

		if msg.Verb() == "PRIVMSG" {
			if s.state == StateJoined {
				batch = append(batch, s.toChatMessage(msg))
			}
			continue
		}

		if err := s.handleControl(ctx, msg); err != nil {
			return batch, err
		}
	}
	return batch, nil
}

func (s *Session) handleControl(ctx context.Context, msg irc.Message) error {
	switch msg.Verb() {
	case "PING":
		payload := msg.Trailing
		if !msg.HasTrailing {
			payload = msg.Param(0)
		}
		s.conn.SendPrepare("PONG :" + payload)
		return s.flush("pong")

	case "001":
		if s.state != StateAuthenticating {
			return nil
		}
		s.conn.SendPrepare("CAP REQ :" + s.cfg.Capability)
		if err := s.flush("cap req"); err != nil {
			return err
		}
		s.setState(ctx, StateNegotiatingCapabilities, "")

	case "CAP":
		switch msg.Param(1) {
		case "ACK":
			if s.state != StateNegotiatingCapabilities || !listsCapability(msg.Trailing, s.cfg.Capability) {
				return nil
			}
			s.conn.SendPrepare("JOIN #" + s.cfg.Channel)
			s.setState(ctx, StateJoining, "")
			if err := s.flush("join"); err != nil {
				return err
			}
			s.setState(ctx, StateJoined, "#"+s.cfg.Channel)
			s.log.Infof("подключено к каналу #%s", s.cfg.Channel)
		case "NAK":
			return fmt.Errorf("%w: %s", ErrCapabilityDenied, msg.Trailing)
		}

	case "NOTICE":
		s.handler.HandleNotice(ctx, s.toNotice(msg))
		if s.state != StateConnecting {
			return fmt.Errorf("%w: %s", ErrAuthRejected, msg.Trailing)
		}

	case "PART":
		if s.isSelf(msg) {
			return fmt.Errorf("%w: %s", ErrBanned, msg.Param(0))
		}

	case "421":
		s.log.Warnf("сервер не поддерживает команду: %s", msg.String())
	}
	return nil
}

func (s *Session) isSelf(msg irc.Message) bool {
	return strings.EqualFold(msg.Nickname, s.cfg.Login) || strings.EqualFold(msg.Username, s.cfg.Login)
}

func listsCapability(list, capability string) bool {
	for _, c := range strings.Fields(list) {
		if c == capability {
			return true
		}
	}
	return false
}

func (s *Session) flush(what string) error {
	if err := s.conn.SendFlush(); err != nil {
		return fmt.Errorf("twitch: send %s: %w", what, err)
	}
	return nil
}

// leave завершает сессию по отмене контекста.
func (s *Session) leave(ctx context.Context, cause error) error {
	s.part()
	s.setState(context.WithoutCancel(ctx), StateDisconnected, "shutdown")
	return cause
}

// fail завершает сессию с ошибкой.
func (s *Session) fail(ctx context.Context, cause error) error {
	if errors.Is(cause, irc.ErrTransportClosed) {
		s.part()
	}
	s.setState(context.WithoutCancel(ctx), StateDisconnected, cause.Error())
	return cause
}

func (s *Session) part() {
	if s.state != StateJoined {
		return
	}
	s.conn.SendPrepare("PART #" + s.cfg.Channel)
	if err := s.conn.SendFlush(); err != nil {
		s.log.Warnf("не удалось отправить PART #%s: %v", s.cfg.Channel, err)
	}
}

func (s *Session) setState(ctx context.Context, to State, detail string) {
	from := ""
	if s.reported {
		from = s.state.String()
	}
	s.state = to
	s.reported = true

	s.observer.StateChanged(from, to.String())
	s.handler.HandleState(ctx, to, detail)
}
