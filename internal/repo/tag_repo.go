// Package repo — tag repository.
//
// Tags are created lazily by name. Lookup is case-insensitive so "Undead"
// and "undead" resolve to the same row. There is no unique constraint behind
// the name; the read-then-write pattern here leaves a race window under
// concurrent writers (two different rows with the same folded name), which is
// a documented property of the system rather than a bug to fix at this layer.
package repo

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/minivault/inventory-backend/internal/domain"
)

// ListTags returns all tags ordered by name (case-insensitive).
func ListTags(ctx context.Context, db *gorm.DB) ([]domain.Tag, error) {
	out := []domain.Tag{}
	err := db.WithContext(ctx).Order("LOWER(name) asc").Find(&out).Error
	return out, err
}

// FindTagByName returns the tag whose name matches case-insensitively, or
// ErrNotFound.
func FindTagByName(ctx context.Context, db *gorm.DB, name string) (*domain.Tag, error) {
	var t domain.Tag
	err := db.WithContext(ctx).
		Where("LOWER(name) = ?", strings.ToLower(strings.TrimSpace(name))).
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetOrCreateTag resolves a tag name to a persisted row, creating it when no
// case-insensitive match exists. The returned tag always carries a real
// (positive) id.
func GetOrCreateTag(ctx context.Context, db *gorm.DB, name string) (*domain.Tag, error) {
	name = strings.TrimSpace(name)
	t, err := FindTagByName(ctx, db, name)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	created := &domain.Tag{Name: name}
	if err := db.WithContext(ctx).Create(created).Error; err != nil {
		return nil, err
	}
	return created, nil
}

// ListTagsForMiniature returns the tags currently linked to a miniature,
// ordered by name.
func ListTagsForMiniature(ctx context.Context, db *gorm.DB, miniatureID int64) ([]domain.Tag, error) {
	out := []domain.Tag{}
	err := db.WithContext(ctx).
		Joins("JOIN miniature_tags mt ON mt.tag_id = tags.id").
		Where("mt.miniature_id = ?", miniatureID).
		Order("LOWER(tags.name) asc").
		Find(&out).Error
	return out, err
}
