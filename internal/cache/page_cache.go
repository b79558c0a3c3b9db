// Package cache implements the time-boxed page cache behind the miniature
// listing views. Entries are keyed by (page, search term) so switching
// filters can never serve stale cross-filter data, and invalidation is
// deliberately coarse: any write clears the whole cache. That trades hit rate
// for correctness simplicity, which is acceptable because writes are
// infrequent relative to reads and the TTL keeps staleness windows short.
package cache

import (
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
)

// KeySeparator delimits the page and search segments of a cache key.
const KeySeparator = "::"

// DefaultTTL is the fallback entry lifetime when the constructor receives a
// non-positive duration.
const DefaultTTL = 5 * time.Minute

var (
	cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "page_cache_hits_total",
			Help: "Total number of page cache hits.",
		},
		[]string{"cache"},
	)
	cacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "page_cache_misses_total",
			Help: "Total number of page cache misses (absent or expired).",
		},
		[]string{"cache"},
	)
	cacheInvalidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "page_cache_invalidations_total",
			Help: "Total number of whole-cache invalidations.",
		},
		[]string{"cache"},
	)
)

func init() {
	prometheus.MustRegister(cacheHits, cacheMisses, cacheInvalidations)
}

// Entry is one cached page: the data slice, the total count of matching rows
// (ignoring pagination), the key parameters it was computed for, and its
// creation time.
type Entry[T any] struct {
	Data       []T
	TotalCount int64
	Page       int
	Search     string
	CreatedAt  time.Time
}

// Pages is a TTL-bounded cache of listing pages. The zero value is not
// usable; construct with New. A Pages value is safe for concurrent use.
//
// Pages is constructed once at application start and injected into consumers
// (never a package-level global) so tests can build a fresh instance each.
type Pages[T any] struct {
	name  string
	ttl   time.Duration
	store *gocache.Cache
}

// New builds a page cache with the given metric name and entry TTL.
func New[T any](name string, ttl time.Duration) *Pages[T] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	// Expiry is checked on access; the janitor just bounds memory for keys
	// that are never touched again.
	return &Pages[T]{
		name:  name,
		ttl:   ttl,
		store: gocache.New(ttl, 2*ttl),
	}
}

// Key derives the cache key for a page/search pair. An absent search term is
// the empty string, so (1, "") and (1, "orc") are distinct keys.
func Key(page int, search string) string {
	return strconv.Itoa(page) + KeySeparator + search
}

// Get returns the cached entry for (page, search) when present and younger
// than the TTL, else (nil, false).
func (p *Pages[T]) Get(page int, search string) (*Entry[T], bool) {
	v, ok := p.store.Get(Key(page, search))
	if !ok {
		cacheMisses.WithLabelValues(p.name).Inc()
		return nil, false
	}
	e, ok := v.(*Entry[T])
	if !ok {
		cacheMisses.WithLabelValues(p.name).Inc()
		return nil, false
	}
	cacheHits.WithLabelValues(p.name).Inc()
	return e, true
}

// Set stores a freshly fetched page under (page, search).
func (p *Pages[T]) Set(page int, search string, data []T, totalCount int64) {
	e := &Entry[T]{
		Data:       data,
		TotalCount: totalCount,
		Page:       page,
		Search:     search,
		CreatedAt:  time.Now(),
	}
	p.store.Set(Key(page, search), e, p.ttl)
}

// Invalidate clears every entry unconditionally. There is no partial
// invalidation by key.
func (p *Pages[T]) Invalidate() {
	p.store.Flush()
	cacheInvalidations.WithLabelValues(p.name).Inc()
}

// TTL reports the configured entry lifetime.
func (p *Pages[T]) TTL() time.Duration { return p.ttl }

// Len reports the number of live entries (expired entries may be counted
// until the janitor runs); intended for tests and diagnostics.
func (p *Pages[T]) Len() int { return p.store.ItemCount() }
