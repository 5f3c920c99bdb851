package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"twitch-chat-bridge/model"
	"twitch-chat-bridge/storage"
	"twitch-chat-bridge/twitch"
)

type chatAppender interface {
	Append([]model.ChatMessage)
}

type eventJournal interface {
	Enqueue(model.SessionEvent) bool
}

// Handler реализует twitch.Handler: сообщения идут в очередь, notice и
// смены состояния в журнал (если он настроен) и в лог.
type Handler struct {
	queue   chatAppender
	journal eventJournal
	channel string
	log     *zap.SugaredLogger
	now     func() time.Time
}

// NewHandler собирает Handler. journal может быть nil.
func NewHandler(queue chatAppender, journal *storage.Journal, channel string, logger *zap.SugaredLogger) *Handler {
	h := &Handler{queue: queue, channel: channel, log: logger, now: time.Now}
	if journal != nil {
		h.journal = journal
	}
	return h
}

// HandleChat кладёт пачку сообщений в очередь одним вызовом.
func (h *Handler) HandleChat(_ context.Context, msgs []model.ChatMessage) {
	h.queue.Append(msgs)
}

// HandleNotice логирует notice и пишет его в журнал.
func (h *Handler) HandleNotice(_ context.Context, notice model.Notice) {
	h.log.Infof("NOTICE #%s [%s]: %s", notice.Channel, notice.ID, notice.Message)
	h.record(storage.NoticeEvent(notice))
}

// HandleState логирует смену состояния сессии и пишет её в журнал.
func (h *Handler) HandleState(_ context.Context, state twitch.State, detail string) {
	kind := model.SessionEventState
	if state == twitch.StateDisconnected {
		kind = model.SessionEventDisconnect
		h.log.Warnf("сессия #%s: %s (%s)", h.channel, state, detail)
	} else {
		h.log.Debugf("сессия #%s: %s", h.channel, state)
	}

	h.record(model.SessionEvent{
		Channel: h.channel,
		Kind:    kind,
		State:   state.String(),
		Detail:  detail,
		At:      h.now().UTC(),
	})
}

func (h *Handler) record(ev model.SessionEvent) {
	if h.journal == nil {
		return
	}
	if ok := h.journal.Enqueue(ev); !ok {
		h.log.Warnf("журнал: событие %s для #%s отброшено", ev.Kind, ev.Channel)
	}
}
