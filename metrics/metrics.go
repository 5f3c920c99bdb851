package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chat_bridge"

// Исходы long-poll запроса.
const (
	PollMessages  = "messages"
	PollEmpty     = "empty"
	PollCancelled = "cancelled"
)

// Collectors собирает метрики очереди, IRC-сессии и доставки.
// Реализует chatqueue.Observer и twitch.FrameObserver.
type Collectors struct {
	queueDepth     prometheus.Gauge
	queueAppended  prometheus.Counter
	queueEvicted   *prometheus.CounterVec
	framesTotal    prometheus.Counter
	malformedTotal prometheus.Counter
	sessionState   *prometheus.GaugeVec
	pollsTotal     *prometheus.CounterVec
	pollDuration   prometheus.Histogram
}

// New создаёт коллекторы и регистрирует их в reg.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Number of chat messages currently retained in the queue.",
		}),
		queueAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_appended_total",
			Help:      "Chat messages appended to the queue.",
		}),
		queueEvicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_evicted_total",
			Help:      "Chat messages evicted from the queue by reason.",
		}, []string{"reason"}),
		framesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "irc_frames_total",
			Help:      "IRC frames received from the chat server.",
		}),
		malformedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "irc_malformed_frames_total",
			Help:      "IRC frames skipped because they could not be parsed.",
		}),
		sessionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_state",
			Help:      "1 for the current IRC session state, 0 otherwise.",
		}, []string{"state"}),
		pollsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Long-poll requests by outcome.",
		}, []string{"outcome"}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Time long-poll requests spent waiting for messages.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 10, 20, 30},
		}),
	}

	reg.MustRegister(
		c.queueDepth,
		c.queueAppended,
		c.queueEvicted,
		c.framesTotal,
		c.malformedTotal,
		c.sessionState,
		c.pollsTotal,
		c.pollDuration,
	)
	return c
}

// Appended учитывает добавленные в очередь сообщения.
func (c *Collectors) Appended(n int) { c.queueAppended.Add(float64(n)) }

// Evicted учитывает вытесненные сообщения по причине.
func (c *Collectors) Evicted(reason string, n int) {
	c.queueEvicted.WithLabelValues(reason).Add(float64(n))
}

// Depth выставляет текущую глубину очереди.
func (c *Collectors) Depth(n int) { c.queueDepth.Set(float64(n)) }

// FrameReceived учитывает полученный IRC-кадр.
func (c *Collectors) FrameReceived() { c.framesTotal.Inc() }

// FrameMalformed учитывает пропущенный некорректный кадр.
func (c *Collectors) FrameMalformed() { c.malformedTotal.Inc() }

// StateChanged выставляет 1 для текущего состояния сессии и 0 для предыдущего.
// Пустой from означает новую сессию: состояния прошлой сессии сбрасываются.
func (c *Collectors) StateChanged(from, to string) {
	if from == "" {
		c.sessionState.Reset()
	} else {
		c.sessionState.WithLabelValues(from).Set(0)
	}
	c.sessionState.WithLabelValues(to).Set(1)
}

// Polled учитывает завершённый long-poll запрос.
func (c *Collectors) Polled(outcome string, seconds float64) {
	c.pollsTotal.WithLabelValues(outcome).Inc()
	c.pollDuration.Observe(seconds)
}
