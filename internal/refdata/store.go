// Package refdata maintains an in-memory snapshot of the slow-moving
// reference tables (painters, base sizes, companies, product lines, product
// sets, and the type taxonomy) so request paths can join against them without
// touching the database.
//
// Concurrency contract:
//   - Load is single-flighted: any number of concurrent callers finding the
//     snapshot stale share exactly one underlying refresh.
//   - The six table reads of a refresh run in parallel and the snapshot is
//     swapped atomically only when all of them succeed. A partial failure
//     keeps the previous snapshot (stale data beats a broken page) and
//     surfaces the error to the caller that triggered the refresh.
//   - Invalidate only marks the snapshot stale; the next Load refreshes.
package refdata

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/minivault/inventory-backend/internal/domain"
	"github.com/minivault/inventory-backend/internal/events"
	"github.com/minivault/inventory-backend/internal/repo"
)

// DefaultTTL bounds snapshot age when the constructor receives a non-positive
// duration.
const DefaultTTL = 5 * time.Minute

// Snapshot is one consistent view of the reference tables. Snapshots are
// immutable once published; callers must not mutate the slices.
type Snapshot struct {
	PaintedBy    []domain.PaintedBy     `json:"painted_by"`
	BaseSizes    []domain.BaseSize      `json:"base_sizes"`
	Companies    []domain.Company       `json:"companies"`
	ProductLines []domain.ProductLine   `json:"product_lines"`
	ProductSets  []domain.ProductSet    `json:"product_sets"`
	Types        []domain.MiniatureType `json:"types"`
	FetchedAt    time.Time              `json:"fetched_at"`
}

// Loader fetches the reference tables. The production implementation wraps
// the repository; tests substitute counting fakes.
type Loader interface {
	PaintedBy(ctx context.Context) ([]domain.PaintedBy, error)
	BaseSizes(ctx context.Context) ([]domain.BaseSize, error)
	Companies(ctx context.Context) ([]domain.Company, error)
	ProductLines(ctx context.Context) ([]domain.ProductLine, error)
	ProductSets(ctx context.Context) ([]domain.ProductSet, error)
	Types(ctx context.Context) ([]domain.MiniatureType, error)
}

// dbLoader is the gorm-backed Loader.
type dbLoader struct{ db *gorm.DB }

func (l dbLoader) PaintedBy(ctx context.Context) ([]domain.PaintedBy, error) {
	return repo.ListPaintedBy(ctx, l.db)
}

func (l dbLoader) BaseSizes(ctx context.Context) ([]domain.BaseSize, error) {
	return repo.ListBaseSizes(ctx, l.db)
}

func (l dbLoader) Companies(ctx context.Context) ([]domain.Company, error) {
	return repo.ListCompanies(ctx, l.db)
}

func (l dbLoader) ProductLines(ctx context.Context) ([]domain.ProductLine, error) {
	return repo.ListProductLines(ctx, l.db)
}

func (l dbLoader) ProductSets(ctx context.Context) ([]domain.ProductSet, error) {
	return repo.ListProductSets(ctx, l.db)
}

func (l dbLoader) Types(ctx context.Context) ([]domain.MiniatureType, error) {
	return repo.ListTypes(ctx, l.db)
}

// Store owns the current snapshot. Construct with NewStore (or NewStoreDB)
// and inject; safe for concurrent use.
type Store struct {
	loader Loader
	ttl    time.Duration
	log    zerolog.Logger

	group singleflight.Group

	mu        sync.RWMutex
	snap      *Snapshot
	fetchedAt time.Time
}

// NewStore builds a store over an explicit Loader.
func NewStore(loader Loader, ttl time.Duration, lg zerolog.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{loader: loader, ttl: ttl, log: lg}
}

// NewStoreDB builds a store backed by the repository layer.
func NewStoreDB(db *gorm.DB, ttl time.Duration, lg zerolog.Logger) *Store {
	return NewStore(dbLoader{db: db}, ttl, lg)
}

// Load returns the current snapshot, refreshing first when it is absent or
// older than the TTL. Concurrent callers share one refresh.
func (s *Store) Load(ctx context.Context) (*Snapshot, error) {
	if snap := s.fresh(); snap != nil {
		return snap, nil
	}

	v, err, _ := s.group.Do("refdata", func() (interface{}, error) {
		// A caller queued behind the winning flight may arrive here after
		// the refresh already completed; re-check before hitting the DB.
		if snap := s.fresh(); snap != nil {
			return snap, nil
		}
		return s.refresh(ctx)
	})
	if err != nil {
		// Keep serving the previous snapshot when one exists.
		s.mu.RLock()
		prev := s.snap
		s.mu.RUnlock()
		if prev != nil {
			s.log.Warn().Err(err).Msg("reference data refresh failed; serving stale snapshot")
			return prev, err
		}
		return nil, err
	}
	return v.(*Snapshot), nil
}

// Invalidate marks the snapshot stale so the next Load refetches. The data
// itself is kept as a fallback for refresh failures.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.fetchedAt = time.Time{}
	s.mu.Unlock()
}

// Watch subscribes the store to change events on every table it mirrors and
// returns a function that removes all subscriptions.
func (s *Store) Watch(bus *events.Bus) func() {
	tables := []events.Table{
		events.TableTypes,
		events.TableCategories,
		events.TablePaintedBy,
		events.TableBaseSizes,
		events.TableCompanies,
		events.TableProductLines,
		events.TableProductSets,
	}
	unsubs := make([]func(), 0, len(tables))
	for _, tbl := range tables {
		unsubs = append(unsubs, bus.Subscribe(tbl, func(events.Event) {
			s.Invalidate()
		}))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// fresh returns the snapshot when it is live, else nil.
func (s *Store) fresh() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap != nil && !s.fetchedAt.IsZero() && time.Since(s.fetchedAt) < s.ttl {
		return s.snap
	}
	return nil
}

// refresh loads all six tables in parallel and publishes a new snapshot only
// when every read succeeded.
func (s *Store) refresh(ctx context.Context) (*Snapshot, error) {
	start := time.Now()
	next := &Snapshot{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		next.PaintedBy, err = s.loader.PaintedBy(gctx)
		return err
	})
	g.Go(func() (err error) {
		next.BaseSizes, err = s.loader.BaseSizes(gctx)
		return err
	})
	g.Go(func() (err error) {
		next.Companies, err = s.loader.Companies(gctx)
		return err
	})
	g.Go(func() (err error) {
		next.ProductLines, err = s.loader.ProductLines(gctx)
		return err
	})
	g.Go(func() (err error) {
		next.ProductSets, err = s.loader.ProductSets(gctx)
		return err
	})
	g.Go(func() (err error) {
		next.Types, err = s.loader.Types(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := time.Now()
	next.FetchedAt = now
	s.mu.Lock()
	s.snap = next
	s.fetchedAt = now
	s.mu.Unlock()

	s.log.Debug().
		Dur("elapsed", time.Since(start)).
		Int("types", len(next.Types)).
		Int("product_sets", len(next.ProductSets)).
		Msg("reference data refreshed")
	return next, nil
}
