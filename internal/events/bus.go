// Package events implements the in-process change feed: a typed event bus
// that carries row-level create/update/delete notifications per table and
// drives cache invalidation in subscribers.
//
// Design notes:
//   - Subscribers register explicit handlers with explicit lifetimes: the
//     Subscribe call returns an unsubscribe function that is safe to call
//     any number of times and guarantees no further handler invocation once
//     it returns, including timers already armed.
//   - Rapid event bursts (a single logical write touching several related
//     tables in quick succession) are coalesced per subscription with a
//     short debounce window before the handler fires, so one save does not
//     trigger a refetch storm.
//   - Handlers run on timer goroutines; they must be safe for concurrent use
//     and should be cheap (typically a cache invalidation plus a refetch
//     kick).
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Op is the kind of row-level change an event describes.
type Op string

// Row-level operations carried by the feed.
const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Table identifies a watched database table.
type Table string

// Watched tables.
const (
	TableMiniatures   Table = "miniatures"
	TableTypes        Table = "types"
	TableCategories   Table = "categories"
	TableTags         Table = "tags"
	TablePaintedBy    Table = "painted_by"
	TableBaseSizes    Table = "base_sizes"
	TableCompanies    Table = "companies"
	TableProductLines Table = "product_lines"
	TableProductSets  Table = "product_sets"
)

// Event is one change notification.
type Event struct {
	Table Table
	Op    Op
}

// Handler consumes a coalesced change notification. The event passed is the
// most recent one observed during the debounce window.
type Handler func(Event)

// subscription is one registered handler with its debounce state.
type subscription struct {
	table    Table
	handler  Handler
	debounce time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	pending Event
	dead    bool
}

// fire arms (or re-arms) the debounce timer for ev.
func (s *subscription) fire(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead {
		return
	}
	s.pending = ev
	if s.debounce <= 0 {
		// No coalescing configured; deliver synchronously.
		ev := s.pending
		s.mu.Unlock()
		s.handler(ev)
		s.mu.Lock()
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		if s.dead {
			s.mu.Unlock()
			return
		}
		ev := s.pending
		s.mu.Unlock()
		s.handler(ev)
	})
}

// cancel marks the subscription dead and stops any armed timer. Idempotent.
func (s *subscription) cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dead = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Bus fans events out to per-table subscriptions. The zero value is not
// usable; construct with NewBus. A Bus is safe for concurrent use and is
// meant to be constructed once at application start and injected.
type Bus struct {
	log      zerolog.Logger
	debounce time.Duration

	mu     sync.RWMutex
	subs   map[Table][]*subscription
	closed bool
}

// NewBus builds a bus whose subscriptions coalesce bursts within the given
// debounce window (~100ms in production; 0 delivers synchronously, which
// tests use).
func NewBus(lg zerolog.Logger, debounce time.Duration) *Bus {
	return &Bus{
		log:      lg,
		debounce: debounce,
		subs:     make(map[Table][]*subscription),
	}
}

// Subscribe registers a handler for change events on a table and returns its
// unsubscribe function. Unsubscribing is idempotent and prevents any further
// handler invocation, including debounce timers already in flight.
func (b *Bus) Subscribe(table Table, h Handler) func() {
	sub := &subscription{table: table, handler: h, debounce: b.debounce}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.cancel()
		return func() {}
	}
	b.subs[table] = append(b.subs[table], sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.cancel()
			b.remove(sub)
		})
		// Later calls still hit cancel's idempotent path via dead flag.
		sub.cancel()
	}
}

// Publish delivers ev to every live subscription of its table. Publishing on
// a closed bus is a no-op.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := make([]*subscription, len(b.subs[ev.Table]))
	copy(subs, b.subs[ev.Table])
	b.mu.RUnlock()

	if len(subs) > 0 {
		b.log.Debug().
			Str("table", string(ev.Table)).
			Str("op", string(ev.Op)).
			Int("subscribers", len(subs)).
			Msg("change event")
	}
	for _, s := range subs {
		s.fire(ev)
	}
}

// Close cancels every subscription and rejects further publishes.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var all []*subscription
	for _, subs := range b.subs {
		all = append(all, subs...)
	}
	b.subs = make(map[Table][]*subscription)
	b.mu.Unlock()

	for _, s := range all {
		s.cancel()
	}
}

// remove drops a subscription from the registry.
func (b *Bus) remove(target *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[target.table]
	for i, s := range subs {
		if s == target {
			b.subs[target.table] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}
