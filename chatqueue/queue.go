package chatqueue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"twitch-chat-bridge/model"
)

// ErrInvalidArgument возвращается при некорректных параметрах очереди или запроса.
var ErrInvalidArgument = errors.New("chatqueue: invalid argument")

// Причины вытеснения для Observer.
const (
	EvictCapacity = "capacity"
	EvictAge      = "age"
)

// Config задаёт ёмкость очереди и время жизни сообщений.
type Config struct {
	Capacity int
	MaxAge   time.Duration
}

// Observer получает события очереди; используется для метрик.
type Observer interface {
	Appended(n int)
	Evicted(reason string, n int)
	Depth(n int)
}

type nopObserver struct{}

func (nopObserver) Appended(int)        {}
func (nopObserver) Evicted(string, int) {}
func (nopObserver) Depth(int)           {}

// Option настраивает Queue.
type Option func(*Queue)

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithObserver подключает наблюдателя.
func WithObserver(o Observer) Option {
	return func(q *Queue) { q.observer = o }
}

// WithIncarnation задаёт идентификатор запуска вместо сгенерированного.
func WithIncarnation(id string) Option {
	return func(q *Queue) { q.incarnation = id }
}

type entry struct {
	event model.ChatEvent
	at    time.Time
}

// Queue — ограниченный журнал сообщений чата с курсорами и блокирующим чтением.
//
// Инвариант: len(log) == nextID - oldestID, идентификаторы идут подряд с нуля
// и совпадают с порядком вставки. Все изменения и ожидание читателей
// сериализуются одним мьютексом; читатели ждут на канале wake, который
// закрывается и пересоздаётся после каждой непустой вставки.
type Queue struct {
	cfg         Config
	now         func() time.Time
	observer    Observer
	incarnation string

	mu       sync.Mutex
	log      []entry
	nextID   uint64
	oldestID uint64
	wake     chan struct{}
	waiting  int
}

// New создаёт пустую очередь.
func New(cfg Config, opts ...Option) (*Queue, error) {
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidArgument, cfg.Capacity)
	}
	if cfg.MaxAge <= 0 {
		return nil, fmt.Errorf("%w: max age must be positive, got %s", ErrInvalidArgument, cfg.MaxAge)
	}

	q := &Queue{
		cfg:      cfg,
		now:      time.Now,
		observer: nopObserver{},
		wake:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.incarnation == "" {
		q.incarnation = newIncarnation()
	}
	return q, nil
}

func newIncarnation() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return strconv.FormatInt(time.Now().UnixNano(), 10)
}

// Incarnation возвращает идентификатор текущего запуска процесса.
func (q *Queue) Incarnation() string {
	return q.incarnation
}

// Append добавляет пачку сообщений, вытесняя самые старые при переполнении,
// и один раз будит всех ожидающих читателей.
func (q *Queue) Append(msgs []model.ChatMessage) {
	if len(msgs) == 0 {
		return
	}

	q.mu.Lock()
	now := q.now()
	evicted := 0
	for _, m := range msgs {
		for len(q.log) >= q.cfg.Capacity {
			q.dropOldestLocked()
			evicted++
		}
		q.log = append(q.log, entry{
			event: model.ChatEvent{
				ID:        q.nextID,
				Timestamp: now.Unix(),
				User:      m.User,
				UserColor: m.UserColor,
				Message:   m.Message,
				Reply:     m.Reply,
				Badges:    m.Badges,
			},
			at: now,
		})
		q.nextID++
	}
	close(q.wake)
	q.wake = make(chan struct{})
	depth := len(q.log)
	q.mu.Unlock()

	q.observer.Appended(len(msgs))
	if evicted > 0 {
		q.observer.Evicted(EvictCapacity, evicted)
	}
	q.observer.Depth(depth)
}

// GetSince возвращает сообщения с номером больше cursor.
//
// Отсутствующий курсор, курсор меньше -1, ещё не выданный номер или курсор,
// следующее сообщение после которого уже вытеснено, означают «начать с
// текущей головы»: такой вызов получит только сообщения, добавленные после
// него. Если новых сообщений нет, вызов ждёт до timeout и по истечении
// возвращает пустой срез. Отмена ctx возвращает ctx.Err().
func (q *Queue) GetSince(ctx context.Context, cursor *int64, timeout time.Duration) ([]model.ChatEvent, error) {
	if timeout < 0 {
		return nil, fmt.Errorf("%w: negative timeout %s", ErrInvalidArgument, timeout)
	}

	q.mu.Lock()
	after := q.resolveLocked(cursor)
	events, wake := q.collectLocked(after)
	if len(events) > 0 {
		q.mu.Unlock()
		return events, nil
	}
	q.waiting++
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.waiting--
		q.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-wake:
		case <-timer.C:
			return []model.ChatEvent{}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		q.mu.Lock()
		events, wake = q.collectLocked(after)
		q.mu.Unlock()
		if len(events) > 0 {
			return events, nil
		}
	}
}

// resolveLocked превращает курсор клиента в номер последнего доставленного сообщения.
func (q *Queue) resolveLocked(cursor *int64) int64 {
	head := int64(q.nextID) - 1
	if cursor == nil {
		return head
	}
	c := *cursor
	if c < -1 || c >= int64(q.nextID) {
		return head
	}
	// -1 означает «с самого начала» и истекает вместе с сообщением 0
	if q.oldestID > 0 && c < int64(q.oldestID) {
		return head
	}
	return c
}

func (q *Queue) collectLocked(after int64) ([]model.ChatEvent, <-chan struct{}) {
	start := after + 1
	if start < int64(q.oldestID) {
		start = int64(q.oldestID)
	}
	if start >= int64(q.nextID) {
		return nil, q.wake
	}

	tail := q.log[start-int64(q.oldestID):]
	out := make([]model.ChatEvent, len(tail))
	for i, e := range tail {
		out[i] = e.event
	}
	return out, q.wake
}

func (q *Queue) dropOldestLocked() {
	q.log[0] = entry{}
	q.log = q.log[1:]
	q.oldestID++
}

// PositionKind классифицирует номер сообщения относительно очереди.
type PositionKind int

const (
	PositionExpired PositionKind = iota
	PositionNotYetAssigned
	PositionIndexed
)

func (k PositionKind) String() string {
	switch k {
	case PositionExpired:
		return "expired"
	case PositionNotYetAssigned:
		return "not_yet_assigned"
	case PositionIndexed:
		return "indexed"
	default:
		return "unknown"
	}
}

// Position — результат PositionOf; Index заполнен только для PositionIndexed.
type Position struct {
	Kind  PositionKind
	Index uint32
}

// PositionOf сообщает, где в журнале лежит сообщение с номером id.
func (q *Queue) PositionOf(id uint64) Position {
	q.mu.Lock()
	defer q.mu.Unlock()

	switch {
	case id < q.oldestID:
		return Position{Kind: PositionExpired}
	case id >= q.nextID:
		return Position{Kind: PositionNotYetAssigned}
	default:
		return Position{Kind: PositionIndexed, Index: uint32(id - q.oldestID)}
	}
}

// Len возвращает число сообщений в журнале.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.log)
}

// Waiting возвращает число читателей, заблокированных в GetSince.
func (q *Queue) Waiting() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.waiting
}

// Bounds возвращает oldestID и nextID.
func (q *Queue) Bounds() (oldest, next uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.oldestID, q.nextID
}
