// Package services – MiniatureService
//
// This file implements the miniature write pipeline and the cached listing
// path. Writes are deliberately issued as three sequential, non-transactional
// steps (scalar row, type links, tag links): a failure mid-pipeline leaves
// the earlier steps persisted and surfaces the error to the caller, with the
// listing cache cleared so readers refetch whatever state actually landed.
package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/cases"
	"gorm.io/gorm"

	"github.com/minivault/inventory-backend/internal/audit"
	"github.com/minivault/inventory-backend/internal/cache"
	"github.com/minivault/inventory-backend/internal/domain"
	"github.com/minivault/inventory-backend/internal/events"
	"github.com/minivault/inventory-backend/internal/images"
	"github.com/minivault/inventory-backend/internal/repo"
)

// DefaultPageSize is the listing page size when the caller passes none.
const DefaultPageSize = 20

// MiniatureRepo defines the repository contract required by MiniatureService.
type MiniatureRepo interface {
	// CountMiniatures returns the total row count matching the search term.
	CountMiniatures(ctx context.Context, db *gorm.DB, search string) (int64, error)

	// ListMiniaturesPage returns one window of the filtered, name-ordered list.
	ListMiniaturesPage(ctx context.Context, db *gorm.DB, search string, offset, limit int) ([]domain.Miniature, error)

	// GetMiniature fetches one miniature with relations preloaded.
	GetMiniature(ctx context.Context, db *gorm.DB, id int64) (*domain.Miniature, error)

	// CreateMiniature inserts the scalar row.
	CreateMiniature(ctx context.Context, db *gorm.DB, m *domain.Miniature) error

	// UpdateMiniatureScalars overwrites the scalar columns, zero values included.
	UpdateMiniatureScalars(ctx context.Context, db *gorm.DB, id int64, m *domain.Miniature) error

	// SetMiniatureInUse sets or clears the in-use timestamp.
	SetMiniatureInUse(ctx context.Context, db *gorm.DB, id int64, inUse interface{}) error

	// ReplaceTypeLinks swaps the full set of type assignments.
	ReplaceTypeLinks(ctx context.Context, db *gorm.DB, miniatureID int64, links []domain.MiniatureTypeLink) error

	// ReplaceTagLinks swaps the full set of tag links.
	ReplaceTagLinks(ctx context.Context, db *gorm.DB, miniatureID int64, tagIDs []int64) error

	// DeleteMiniature removes the row (links cascade).
	DeleteMiniature(ctx context.Context, db *gorm.DB, id int64) error

	// GetOrCreateTag resolves a tag by case-insensitive name, creating it when
	// absent.
	GetOrCreateTag(ctx context.Context, db *gorm.DB, name string) (*domain.Tag, error)
}

// TypeAssignment is one requested type link. At most one assignment per
// miniature is the "main" (non-proxy) type; the service normalizes the set so
// that invariant always holds.
type TypeAssignment struct {
	TypeID    int64
	ProxyType bool
}

// TagInput is one requested tag link. Non-positive ids mark a tag the client
// invented locally; it is resolved (or created) by name before the link write.
type TagInput struct {
	ID   int64
	Name string
}

// MiniatureInput is the full desired state of a miniature submitted by a
// create or update. Associations are replacement sets, not deltas.
type MiniatureInput struct {
	Name         string
	Description  string
	Location     string
	Quantity     int
	PaintedByID  int64 // 0 applies the configured default
	BaseSizeID   int64 // 0 applies the configured default
	ProductSetID *int64
	Types        []TypeAssignment
	Tags         []TagInput
}

// MiniatureService coordinates the write pipeline, the listing cache, change
// events, history rows, and external image storage.
type MiniatureService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the miniature repository used by this service.
	Repo MiniatureRepo
	// Cache holds listing pages; nil disables caching.
	Cache *cache.Pages[domain.Miniature]
	// Bus carries change events to subscribers; nil disables publishing.
	Bus *events.Bus
	// Audit records history rows best-effort; nil disables history.
	Audit *audit.Recorder
	// Images is the external storage client; nil disables image operations.
	Images *images.Client

	// DefaultPaintedByID fills an absent painter on create.
	DefaultPaintedByID int64
	// DefaultBaseSizeID fills an absent base size on create.
	DefaultBaseSizeID int64
	// PageSize is the fixed listing page size served through the cache.
	PageSize int

	Log zerolog.Logger
}

// NewMiniatureService constructs a MiniatureService with default pagination.
func NewMiniatureService(db *gorm.DB, r MiniatureRepo, lg zerolog.Logger) *MiniatureService {
	return &MiniatureService{
		DB:                 db,
		Repo:               r,
		DefaultPaintedByID: 1,
		DefaultBaseSizeID:  1,
		PageSize:           DefaultPageSize,
		Log:                lg,
	}
}

// ListPage returns one page of miniatures matching the search term plus the
// total match count. Pages at the default size are served from the cache when
// a live entry exists; ad-hoc page sizes always hit the database.
func (s *MiniatureService) ListPage(ctx context.Context, page, pageSize int, search string) ([]domain.Miniature, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = s.pageSize()
	}
	search = strings.TrimSpace(search)
	// SQL matching is case-insensitive, so "Goblin" and "goblin" yield the
	// same page. Fold the cache key so they share one entry. Casers are
	// stateful, so build one per call.
	searchKey := cases.Fold().String(search)

	cacheable := s.Cache != nil && pageSize == s.pageSize()
	if cacheable {
		if e, ok := s.Cache.Get(page, searchKey); ok {
			return e.Data, e.TotalCount, nil
		}
	}

	total, err := s.Repo.CountMiniatures(ctx, s.DB, search)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		if cacheable {
			s.Cache.Set(page, searchKey, []domain.Miniature{}, 0)
		}
		return []domain.Miniature{}, 0, nil
	}

	items, err := s.Repo.ListMiniaturesPage(ctx, s.DB, search, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, err
	}
	if cacheable {
		s.Cache.Set(page, searchKey, items, total)
	}
	return items, total, nil
}

// Get fetches one miniature with all relations.
func (s *MiniatureService) Get(ctx context.Context, id int64) (*domain.Miniature, error) {
	m, err := s.Repo.GetMiniature(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrMiniatureNotFound
	}
	return m, err
}

// Create runs the three-step write pipeline for a new miniature: scalar row,
// then type links, then tag links. A later step failing leaves the earlier
// steps persisted and returns the error; the cache is cleared either way so
// readers see whatever landed.
func (s *MiniatureService) Create(ctx context.Context, userID string, in MiniatureInput) (*domain.Miniature, error) {
	ctx, span := otel.Tracer("internal/services").Start(ctx, "MiniatureService.Create")
	defer span.End()

	if err := validateInput(in); err != nil {
		return nil, err
	}

	m := &domain.Miniature{
		Name:         strings.TrimSpace(in.Name),
		Description:  in.Description,
		Location:     in.Location,
		Quantity:     in.Quantity,
		PaintedByID:  in.PaintedByID,
		BaseSizeID:   in.BaseSizeID,
		ProductSetID: in.ProductSetID,
	}
	if m.PaintedByID == 0 {
		m.PaintedByID = s.DefaultPaintedByID
	}
	if m.BaseSizeID == 0 {
		m.BaseSizeID = s.DefaultBaseSizeID
	}

	if err := s.Repo.CreateMiniature(ctx, s.DB, m); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("miniature.id", m.ID))
	defer s.afterWrite(events.OpCreate)

	if len(in.Types) > 0 {
		if err := s.Repo.ReplaceTypeLinks(ctx, s.DB, m.ID, normalizeTypeLinks(m.ID, in.Types)); err != nil {
			return nil, err
		}
	}
	tagIDs, err := s.reconcileTags(ctx, in.Tags)
	if err != nil {
		return nil, err
	}
	if len(tagIDs) > 0 {
		if err := s.Repo.ReplaceTagLinks(ctx, s.DB, m.ID, tagIDs); err != nil {
			return nil, err
		}
	}

	created, err := s.Repo.GetMiniature(ctx, s.DB, m.ID)
	if err != nil {
		return nil, err
	}
	if s.Audit != nil {
		s.Audit.MiniatureCreated(ctx, userID, created)
	}
	return created, nil
}

// Update overwrites a miniature with the submitted state using the same
// three-step pipeline as Create. On success a field-level diff of the
// before/after snapshots is recorded; an update that changed nothing leaves
// no history row.
func (s *MiniatureService) Update(ctx context.Context, userID string, id int64, in MiniatureInput) (*domain.Miniature, error) {
	ctx, span := otel.Tracer("internal/services").Start(ctx, "MiniatureService.Update")
	defer span.End()
	span.SetAttributes(attribute.Int64("miniature.id", id))

	if err := validateInput(in); err != nil {
		return nil, err
	}

	before, err := s.Repo.GetMiniature(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrMiniatureNotFound
	}
	if err != nil {
		return nil, err
	}
	prev := audit.StateOf(before)

	next := &domain.Miniature{
		Name:         strings.TrimSpace(in.Name),
		Description:  in.Description,
		Location:     in.Location,
		Quantity:     in.Quantity,
		PaintedByID:  in.PaintedByID,
		BaseSizeID:   in.BaseSizeID,
		ProductSetID: in.ProductSetID,
		InUse:        before.InUse,
	}
	if next.PaintedByID == 0 {
		next.PaintedByID = before.PaintedByID
	}
	if next.BaseSizeID == 0 {
		next.BaseSizeID = before.BaseSizeID
	}

	// Step 1: scalar columns.
	if err := s.Repo.UpdateMiniatureScalars(ctx, s.DB, id, next); err != nil {
		return nil, err
	}
	defer s.afterWrite(events.OpUpdate)

	// Step 2: type links.
	if err := s.Repo.ReplaceTypeLinks(ctx, s.DB, id, normalizeTypeLinks(id, in.Types)); err != nil {
		return nil, err
	}

	// Step 3: tag links.
	tagIDs, err := s.reconcileTags(ctx, in.Tags)
	if err != nil {
		return nil, err
	}
	if err := s.Repo.ReplaceTagLinks(ctx, s.DB, id, tagIDs); err != nil {
		return nil, err
	}

	updated, err := s.Repo.GetMiniature(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	if s.Audit != nil {
		s.Audit.MiniatureUpdated(ctx, userID, id, audit.DetectChanges(prev, audit.StateOf(updated)))
	}
	return updated, nil
}

// SetInUse sets (non-nil) or clears (nil) the in-use marker.
func (s *MiniatureService) SetInUse(ctx context.Context, userID string, id int64, ts *time.Time) error {
	before, err := s.Repo.GetMiniature(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrMiniatureNotFound
	}
	if err != nil {
		return err
	}

	var value interface{}
	if ts != nil {
		value = *ts
	}
	if err := s.Repo.SetMiniatureInUse(ctx, s.DB, id, value); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrMiniatureNotFound
		}
		return err
	}
	s.afterWrite(events.OpUpdate)

	if s.Audit != nil {
		prev := audit.StateOf(before)
		next := prev
		next.InUse = ts
		s.Audit.MiniatureUpdated(ctx, userID, id, audit.DetectChanges(prev, next))
	}
	return nil
}

// Delete removes a miniature. The stored image is deleted best-effort first:
// a storage failure is logged and the row removal proceeds anyway.
func (s *MiniatureService) Delete(ctx context.Context, userID string, id int64) error {
	ctx, span := otel.Tracer("internal/services").Start(ctx, "MiniatureService.Delete")
	defer span.End()
	span.SetAttributes(attribute.Int64("miniature.id", id))

	before, err := s.Repo.GetMiniature(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrMiniatureNotFound
	}
	if err != nil {
		return err
	}

	if s.Images != nil {
		if err := s.Images.Delete(ctx, id); err != nil {
			s.Log.Warn().Err(err).Int64("miniature_id", id).Msg("image cleanup failed; deleting row anyway")
		}
	}

	if err := s.Repo.DeleteMiniature(ctx, s.DB, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrMiniatureNotFound
		}
		return err
	}
	s.afterWrite(events.OpDelete)

	if s.Audit != nil {
		s.Audit.MiniatureDeleted(ctx, userID, before)
	}
	return nil
}

// UploadImage stores an image for a miniature. replace distinguishes the
// history action; storage semantics are identical (the endpoint overwrites).
func (s *MiniatureService) UploadImage(ctx context.Context, userID string, id int64, filename string, r io.Reader, replace bool) (string, error) {
	if s.Images == nil {
		return "", errors.New("image storage not configured")
	}
	if _, err := s.Repo.GetMiniature(ctx, s.DB, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", ErrMiniatureNotFound
		}
		return "", err
	}
	if err := s.Images.Upload(ctx, id, filename, r); err != nil {
		return "", err
	}

	action := audit.ActionImageUpload
	if replace {
		action = audit.ActionImageReplace
	}
	if s.Audit != nil {
		s.Audit.ImageOperation(ctx, userID, id, action, images.PathFor(id))
	}
	return s.Images.URLFor(id), nil
}

// DeleteImage removes a miniature's stored image.
func (s *MiniatureService) DeleteImage(ctx context.Context, userID string, id int64) error {
	if s.Images == nil {
		return errors.New("image storage not configured")
	}
	if _, err := s.Repo.GetMiniature(ctx, s.DB, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrMiniatureNotFound
		}
		return err
	}
	if err := s.Images.Delete(ctx, id); err != nil {
		return err
	}
	if s.Audit != nil {
		s.Audit.ImageOperation(ctx, userID, id, audit.ActionImageDelete, images.PathFor(id))
	}
	return nil
}

// afterWrite clears cached pages and emits the change event. It runs after
// every pipeline once the first step persisted anything, including pipelines
// that subsequently failed, so cached pages never outlive a partial write.
func (s *MiniatureService) afterWrite(op events.Op) {
	if s.Cache != nil {
		s.Cache.Invalidate()
	}
	if s.Bus != nil {
		s.Bus.Publish(events.Event{Table: events.TableMiniatures, Op: op})
	}
}

// reconcileTags maps tag inputs to persisted ids. Positive ids pass through;
// non-positive ids are resolved by name, creating the tag when no
// case-insensitive match exists. Duplicates collapse.
func (s *MiniatureService) reconcileTags(ctx context.Context, tags []TagInput) ([]int64, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	seen := make(map[int64]struct{}, len(tags))
	out := make([]int64, 0, len(tags))
	for _, in := range tags {
		id := in.ID
		if id <= 0 {
			name := strings.TrimSpace(in.Name)
			if name == "" {
				return nil, ErrTagNameRequired
			}
			tag, err := s.Repo.GetOrCreateTag(ctx, s.DB, name)
			if err != nil {
				return nil, err
			}
			id = tag.ID
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// normalizeTypeLinks converts assignments to link rows while enforcing the
// main-type invariant: when any links exist, exactly one is non-proxy. The
// first non-proxy assignment wins; with none present the first link is
// promoted to main.
func normalizeTypeLinks(miniatureID int64, types []TypeAssignment) []domain.MiniatureTypeLink {
	if len(types) == 0 {
		return nil
	}
	links := make([]domain.MiniatureTypeLink, 0, len(types))
	mainSeen := false
	for _, t := range types {
		proxy := t.ProxyType
		if !proxy {
			if mainSeen {
				proxy = true
			}
			mainSeen = true
		}
		links = append(links, domain.MiniatureTypeLink{
			MiniatureID: miniatureID,
			TypeID:      t.TypeID,
			ProxyType:   proxy,
		})
	}
	if !mainSeen {
		links[0].ProxyType = false
	}
	return links
}

// validateInput enforces the client-side validation rules before any network
// step runs.
func validateInput(in MiniatureInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return ErrNameRequired
	}
	if in.Quantity < 0 {
		return ErrNegativeQuantity
	}
	return nil
}

func (s *MiniatureService) pageSize() int {
	if s.PageSize > 0 {
		return s.PageSize
	}
	return DefaultPageSize
}
