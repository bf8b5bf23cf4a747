// Package ledger keeps the append-only record of the chain: a single writer
// appends one Entry per tick, any number of readers page through the
// immutable prefix, wait for growth, or tap the append stream through
// subscriptions.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/rvnrstnsyh/rhythm/log"
)

// ErrOutOfOrder rejects an append whose sequence number is not exactly the
// next free index. Appends never leave gaps and never rewrite history.
var ErrOutOfOrder = errors.New("append out of order")

// Subscription taps the append stream. Delivery is best-effort: a subscriber
// that stops draining loses entries (counted per subscription) but never
// blocks the writer. Range is the lossless way to catch up.
type Subscription struct {
	id      string
	ch      chan Entry
	dropped int64
}

// ID identifies the subscription for Unsubscribe.
func (s *Subscription) ID() string {
	return s.id
}

// C delivers appended entries in order. Closed by Unsubscribe.
func (s *Subscription) C() <-chan Entry {
	return s.ch
}

// Dropped counts entries this subscription missed because its buffer was
// full.
func (s *Subscription) Dropped() uint64 {
	return uint64(atomic.LoadInt64(&s.dropped))
}

// Log is the append-only entry log. The appended prefix is immutable, so
// reads copy entry values out under a read lock and hold nothing afterwards.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	grown   chan struct{}
	subs    map[string]*Subscription

	subBuffer int
	metrics   *Metrics
	log       log.Logger
}

// NewLog builds an empty log.
func NewLog(config Config, logger log.Logger) *Log {
	initial := config.InitialCapacity
	if initial < 0 {
		initial = 0
	}
	subBuffer := config.SubscriptionBuffer
	if subBuffer <= 0 {
		subBuffer = DefaultConfig().SubscriptionBuffer
	}

	return &Log{
		entries:   make([]Entry, 0, initial),
		grown:     make(chan struct{}),
		subs:      make(map[string]*Subscription),
		subBuffer: subBuffer,
		metrics:   newMetrics(),
		log:       logger.Component("ledger"),
	}
}

// Append adds the next entry. The writer is the sequencer's tick loop; the
// entry's Seq must be exactly Len().
func (l *Log) Append(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if want := uint64(len(l.entries)); e.Seq != want {
		return fmt.Errorf("%w: seq %d, want %d", ErrOutOfOrder, e.Seq, want)
	}

	l.entries = append(l.entries, e)

	grown := l.grown
	l.grown = make(chan struct{})
	close(grown)

	for _, sub := range l.subs {
		select {
		case sub.ch <- e:
		default:
			atomic.AddInt64(&sub.dropped, 1)
			l.metrics.SubscriberDrops.Inc()
			l.log.Debug().
				Str("subscription", sub.id).
				Uint64("seq", e.Seq).
				Msg("Subscriber buffer full, entry dropped")
		}
	}

	l.metrics.Appends.Inc()
	l.metrics.Length.Set(float64(len(l.entries)))

	return nil
}

// Len is the number of appended entries, which is also the next sequence
// number.
func (l *Log) Len() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return uint64(len(l.entries))
}

// At returns the entry with the given sequence number.
func (l *Log) At(seq uint64) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if seq >= uint64(len(l.entries)) {
		return Entry{}, false
	}
	return l.entries[seq], true
}

// Latest returns the most recently appended entry.
func (l *Log) Latest() (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.entries) == 0 {
		return Entry{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// Range copies out the entries with sequence numbers in the half-open
// interval [from, to), clamped to what exists. Callers must not modify the
// returned mix-ins.
func (l *Log) Range(from, to uint64) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n := uint64(len(l.entries)); to > n {
		to = n
	}
	if from >= to {
		return nil
	}

	out := make([]Entry, to-from)
	copy(out, l.entries[from:to])
	return out
}

// WaitLen blocks until the log holds at least n entries or ctx is done.
func (l *Log) WaitLen(ctx context.Context, n uint64) error {
	for {
		l.mu.RLock()
		if uint64(len(l.entries)) >= n {
			l.mu.RUnlock()
			return nil
		}
		grown := l.grown
		l.mu.RUnlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-grown:
		}
	}
}

// Subscribe registers a push tap delivering every entry appended from now
// on. A non-positive buffer takes the configured default.
func (l *Log) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = l.subBuffer
	}
	sub := &Subscription{
		id: uuid.NewString(),
		ch: make(chan Entry, buffer),
	}

	l.mu.Lock()
	l.subs[sub.id] = sub
	l.mu.Unlock()

	l.metrics.Subscribers.Inc()
	l.log.Debug().
		Str("subscription", sub.id).
		Int("buffer", buffer).
		Msg("Subscription added")

	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (l *Log) Unsubscribe(id string) {
	l.mu.Lock()
	sub, exists := l.subs[id]
	if exists {
		delete(l.subs, id)
		close(sub.ch)
	}
	l.mu.Unlock()

	if exists {
		l.metrics.Subscribers.Dec()
		l.log.Debug().
			Str("subscription", id).
			Uint64("dropped", sub.Dropped()).
			Msg("Subscription removed")
	}
}
