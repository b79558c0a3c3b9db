// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Miniature
// aggregate: the paginated query engine, scalar writes, and wholesale
// replacement of type/tag association sets.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a miniature is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//   - An empty result set is an empty slice, never an error.
//
// Query engine contract (spec of the listing views): pages are bounded by
// offset/limit, filtered by an optional case-insensitive substring over the
// name and location fields, ordered stably by lowercased name then id, and
// fetched with all nested relations (types → categories, tags, lookup rows,
// product set → line → company) in one logical call to avoid N+1 round trips.
package repo

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/minivault/inventory-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// miniatureQuery applies the shared search filter over name and location.
// Matching is case-insensitive substring (ILIKE-style) on both fields.
func miniatureQuery(db *gorm.DB, search string) *gorm.DB {
	q := db.Model(&domain.Miniature{})
	if s := strings.TrimSpace(search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(location) LIKE ?", like, like)
	}
	return q
}

// miniaturePreloads attaches every nested relation needed by the listing and
// detail views in a single logical fetch.
func miniaturePreloads(q *gorm.DB) *gorm.DB {
	return q.
		Preload("Types.Type.Categories").
		Preload("Tags").
		Preload("PaintedBy").
		Preload("BaseSize").
		Preload("ProductSet.ProductLine.Company")
}

// ListMiniaturesPage returns one page of miniatures matching the optional
// search term, ordered by name (case-insensitive) ascending with id as the
// tiebreak. Use CountMiniatures with the same search term for the total.
//
// The caller is responsible for computing offset and limit (e.g., (page-1)*pageSize).
func ListMiniaturesPage(ctx context.Context, db *gorm.DB, search string, offset, limit int) ([]domain.Miniature, error) {
	out := []domain.Miniature{}
	err := miniaturePreloads(miniatureQuery(db.WithContext(ctx), search)).
		Order("LOWER(name) asc, id asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountMiniatures returns the total number of miniatures matching the search
// term, ignoring pagination. On DB error, it returns the error.
func CountMiniatures(ctx context.Context, db *gorm.DB, search string) (int64, error) {
	var total int64
	err := miniatureQuery(db.WithContext(ctx), search).Count(&total).Error
	return total, err
}

// GetMiniature fetches a single miniature by id with all nested relations.
// If the record does not exist, it returns ErrNotFound.
func GetMiniature(ctx context.Context, db *gorm.DB, id int64) (*domain.Miniature, error) {
	var m domain.Miniature
	err := miniaturePreloads(db.WithContext(ctx)).
		Where("id = ?", id).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateMiniature inserts the scalar row for a new miniature. The id is
// assigned by the database and set on the passed struct. Associations are
// written separately by the replace functions below.
func CreateMiniature(ctx context.Context, db *gorm.DB, m *domain.Miniature) error {
	return db.WithContext(ctx).Omit("Types", "Tags", "PaintedBy", "BaseSize", "ProductSet").Create(m).Error
}

// UpdateMiniatureScalars overwrites the mutable scalar fields of a miniature.
// All listed columns are written, including zero values, so a cleared
// description or a nulled product set sticks.
func UpdateMiniatureScalars(ctx context.Context, db *gorm.DB, id int64, m *domain.Miniature) error {
	return db.WithContext(ctx).
		Model(&domain.Miniature{}).
		Where("id = ?", id).
		Select("name", "description", "location", "quantity", "painted_by_id", "base_size_id", "product_set_id", "in_use").
		Updates(map[string]any{
			"name":           m.Name,
			"description":    m.Description,
			"location":       m.Location,
			"quantity":       m.Quantity,
			"painted_by_id":  m.PaintedByID,
			"base_size_id":   m.BaseSizeID,
			"product_set_id": m.ProductSetID,
			"in_use":         m.InUse,
		}).Error
}

// SetMiniatureInUse sets or clears the in-use timestamp only.
func SetMiniatureInUse(ctx context.Context, db *gorm.DB, id int64, inUse interface{}) error {
	res := db.WithContext(ctx).
		Model(&domain.Miniature{}).
		Where("id = ?", id).
		Update("in_use", inUse)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ReplaceTypeLinks replaces the full set of type assignments for a miniature:
// all existing links are deleted, then the given links are inserted. The two
// statements are intentionally issued back to back without a wrapping
// transaction, matching the replace semantics of the write service.
func ReplaceTypeLinks(ctx context.Context, db *gorm.DB, miniatureID int64, links []domain.MiniatureTypeLink) error {
	h := db.WithContext(ctx)
	if err := h.Where("miniature_id = ?", miniatureID).Delete(&domain.MiniatureTypeLink{}).Error; err != nil {
		return err
	}
	if len(links) == 0 {
		return nil
	}
	rows := make([]domain.MiniatureTypeLink, len(links))
	for i, l := range links {
		rows[i] = domain.MiniatureTypeLink{
			MiniatureID: miniatureID,
			TypeID:      l.TypeID,
			ProxyType:   l.ProxyType,
		}
	}
	return h.Create(&rows).Error
}

// ReplaceTagLinks replaces the full set of tag associations for a miniature
// with the given tag ids, using the same delete-then-insert semantics as
// ReplaceTypeLinks.
func ReplaceTagLinks(ctx context.Context, db *gorm.DB, miniatureID int64, tagIDs []int64) error {
	h := db.WithContext(ctx)
	if err := h.Where("miniature_id = ?", miniatureID).Delete(&domain.MiniatureTag{}).Error; err != nil {
		return err
	}
	if len(tagIDs) == 0 {
		return nil
	}
	rows := make([]domain.MiniatureTag, len(tagIDs))
	for i, id := range tagIDs {
		rows[i] = domain.MiniatureTag{MiniatureID: miniatureID, TagID: id}
	}
	return h.Create(&rows).Error
}

// DeleteMiniature removes the miniature row. Association rows are removed by
// the database's cascade rules.
func DeleteMiniature(ctx context.Context, db *gorm.DB, id int64) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Miniature{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
