package storage

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"twitch-chat-bridge/model"
)

// JournalConfig задаёт параметры батчинга журнала сессии.
type JournalConfig struct {
	MaxBatch      int
	FlushEvery    time.Duration
	ChanBuffer    int
	StatsLogEvery time.Duration
	FlushTimeout  time.Duration
}

// Journal асинхронно пишет события IRC-сессии в Postgres через pgx.Batch.
type Journal struct {
	input       chan model.SessionEvent
	config      JournalConfig
	sender      batchSender
	incarnation string
	log         *zap.SugaredLogger
	dropped     atomic.Uint64
	done        chan struct{}
}

type batchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

const insertEvent = `
insert into session_events (
  incarnation, channel, kind, state, detail, tags, event_at
) values ($1,$2,$3,$4,$5,$6,$7);`

// NewJournal создаёт журнал и запускает фоновые флаши до отмены ctx.
// sender обычно *pgxpool.Pool.
func NewJournal(ctx context.Context, sender batchSender, incarnation string, cfg JournalConfig, logger *zap.SugaredLogger) *Journal {
	j := &Journal{
		input:       make(chan model.SessionEvent, cfg.ChanBuffer),
		config:      cfg,
		sender:      sender,
		incarnation: incarnation,
		log:         logger,
		done:        make(chan struct{}),
	}

	go j.run(ctx)

	return j
}

// Enqueue пытается добавить событие; при переполнении возвращает false.
func (j *Journal) Enqueue(ev model.SessionEvent) bool {
	select {
	case j.input <- ev:
		return true
	default:
		dropped := j.dropped.Add(1)
		if dropped%100 == 0 {
			j.log.Warnf("очередь заполнена, всего отброшено %d событий", dropped)
		}
		return false
	}
}

// Dropped возвращает число событий, отброшенных из-за переполнения.
func (j *Journal) Dropped() uint64 {
	return j.dropped.Load()
}

// Done закрывается после финального флаша.
func (j *Journal) Done() <-chan struct{} {
	return j.done
}

func (j *Journal) run(ctx context.Context) {
	defer close(j.done)

	flushTicker := time.NewTicker(j.config.FlushEvery)
	statsTicker := time.NewTicker(j.config.StatsLogEvery)
	defer flushTicker.Stop()
	defer statsTicker.Stop()

	var (
		batch            = &pgx.Batch{}
		pending          = 0
		totalInserted    uint64
		intervalInserted uint64
	)

	flush := func() {
		if pending == 0 {
			return
		}

		dbCtx, cancel := context.WithTimeout(context.Background(), j.config.FlushTimeout)
		defer cancel()

		br := j.sender.SendBatch(dbCtx, batch)
		if err := br.Close(); err != nil {
			j.log.Errorf("ошибка флаша журнала: %v", err)
		}

		totalInserted += uint64(pending)
		intervalInserted += uint64(pending)

		batch = &pgx.Batch{}
		pending = 0
	}

	queue := func(ev model.SessionEvent) {
		tagsJSON, _ := json.Marshal(ev.Tags)
		batch.Queue(insertEvent,
			j.incarnation, ev.Channel, ev.Kind, ev.State, ev.Detail, tagsJSON, ev.At.UTC(),
		)
		pending++
		if pending >= j.config.MaxBatch {
			flush()
		}
	}

	drain := func() {
		for {
			select {
			case ev := <-j.input:
				queue(ev)
			default:
				return
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			drain()
			flush()
			j.log.Infof("контекст отменён, всего записано событий = %d", totalInserted)
			return
		case <-flushTicker.C:
			flush()
		case <-statsTicker.C:
			j.log.Infof("записано %d событий за %s (всего %d)", intervalInserted, j.config.StatsLogEvery, totalInserted)
			intervalInserted = 0
		case ev := <-j.input:
			queue(ev)
		}
	}
}

// NoticeEvent превращает notice Twitch в запись журнала.
func NoticeEvent(n model.Notice) model.SessionEvent {
	return model.SessionEvent{
		Channel: n.Channel,
		Kind:    model.SessionEventNotice,
		State:   n.ID,
		Detail:  n.Message,
		Tags:    n.Tags,
		At:      n.NoticeAt,
	}
}
