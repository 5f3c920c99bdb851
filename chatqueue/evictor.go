package chatqueue

import (
	"context"
	"time"
)

// minSweepDelay не даёт циклу вытеснения крутиться вхолостую при сдвиге часов.
const minSweepDelay = 10 * time.Millisecond

// Sweep удаляет сообщения старше MaxAge и возвращает их количество.
func (q *Queue) Sweep() int {
	q.mu.Lock()
	removed := q.expireLocked(q.now())
	depth := len(q.log)
	q.mu.Unlock()

	q.reportExpired(removed, depth)
	return removed
}

// Run вытесняет устаревшие сообщения до отмены ctx. Пока журнал пуст,
// горутина спит до следующей вставки, иначе до истечения срока самого
// старого сообщения.
func (q *Queue) Run(ctx context.Context) error {
	for {
		q.mu.Lock()
		now := q.now()
		removed := q.expireLocked(now)
		depth := len(q.log)
		var (
			wait  <-chan struct{}
			delay time.Duration
		)
		if depth == 0 {
			wait = q.wake
		} else {
			delay = q.log[0].at.Add(q.cfg.MaxAge).Sub(now)
		}
		q.mu.Unlock()

		q.reportExpired(removed, depth)

		if wait != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-wait:
			}
			continue
		}

		if delay < minSweepDelay {
			delay = minSweepDelay
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (q *Queue) expireLocked(now time.Time) int {
	cutoff := now.Add(-q.cfg.MaxAge)
	removed := 0
	for len(q.log) > 0 && !q.log[0].at.After(cutoff) {
		q.dropOldestLocked()
		removed++
	}
	return removed
}

func (q *Queue) reportExpired(removed, depth int) {
	if removed == 0 {
		return
	}
	q.observer.Evicted(EvictAge, removed)
	q.observer.Depth(depth)
}
