// Package repo — type/category taxonomy repository.
//
// Types and categories share the same persistence patterns: case-insensitive
// name lookup for the service-layer uniqueness pre-check, wholesale
// replacement of the type→category association set, and usage counts that let
// the service block deletes of referenced rows.
package repo

import (
	"context"

	"strings"

	"gorm.io/gorm"

	"github.com/minivault/inventory-backend/internal/domain"
)

// ListTypes returns all types with their categories, ordered by name.
func ListTypes(ctx context.Context, db *gorm.DB) ([]domain.MiniatureType, error) {
	out := []domain.MiniatureType{}
	err := db.WithContext(ctx).
		Preload("Categories").
		Order("LOWER(name) asc").
		Find(&out).Error
	return out, err
}

// GetType fetches one type with its categories, or ErrNotFound.
func GetType(ctx context.Context, db *gorm.DB, id int64) (*domain.MiniatureType, error) {
	var t domain.MiniatureType
	err := db.WithContext(ctx).Preload("Categories").Where("id = ?", id).First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FindTypeByName returns the type whose name matches case-insensitively, or
// ErrNotFound. Used as the uniqueness pre-check before insert/rename.
func FindTypeByName(ctx context.Context, db *gorm.DB, name string) (*domain.MiniatureType, error) {
	var t domain.MiniatureType
	err := db.WithContext(ctx).
		Where("LOWER(name) = ?", strings.ToLower(strings.TrimSpace(name))).
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateType inserts a new type row.
func CreateType(ctx context.Context, db *gorm.DB, t *domain.MiniatureType) error {
	return db.WithContext(ctx).Omit("Categories").Create(t).Error
}

// UpdateTypeName renames a type. Returns ErrNotFound when the row is missing.
func UpdateTypeName(ctx context.Context, db *gorm.DB, id int64, name string) error {
	res := db.WithContext(ctx).
		Model(&domain.MiniatureType{}).
		Where("id = ?", id).
		Update("name", name)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteType removes a type and its category links.
func DeleteType(ctx context.Context, db *gorm.DB, id int64) error {
	h := db.WithContext(ctx)
	if err := h.Where("miniature_type_id = ?", id).Delete(&domain.TypeCategory{}).Error; err != nil {
		return err
	}
	res := h.Where("id = ?", id).Delete(&domain.MiniatureType{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountTypeUsage returns how many miniatures reference the type.
func CountTypeUsage(ctx context.Context, db *gorm.DB, typeID int64) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.MiniatureTypeLink{}).
		Where("type_id = ?", typeID).
		Count(&n).Error
	return n, err
}

// ReplaceTypeCategories replaces the full category set of a type
// (delete all, reinsert), mirroring the association replace semantics used
// for miniatures.
func ReplaceTypeCategories(ctx context.Context, db *gorm.DB, typeID int64, categoryIDs []int64) error {
	h := db.WithContext(ctx)
	if err := h.Where("miniature_type_id = ?", typeID).Delete(&domain.TypeCategory{}).Error; err != nil {
		return err
	}
	if len(categoryIDs) == 0 {
		return nil
	}
	rows := make([]domain.TypeCategory, len(categoryIDs))
	for i, cid := range categoryIDs {
		rows[i] = domain.TypeCategory{MiniatureTypeID: typeID, CategoryID: cid}
	}
	return h.Create(&rows).Error
}

// ListCategories returns all categories ordered by name.
func ListCategories(ctx context.Context, db *gorm.DB) ([]domain.Category, error) {
	out := []domain.Category{}
	err := db.WithContext(ctx).Order("LOWER(name) asc").Find(&out).Error
	return out, err
}

// FindCategoryByName returns the category whose name matches
// case-insensitively, or ErrNotFound.
func FindCategoryByName(ctx context.Context, db *gorm.DB, name string) (*domain.Category, error) {
	var c domain.Category
	err := db.WithContext(ctx).
		Where("LOWER(name) = ?", strings.ToLower(strings.TrimSpace(name))).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateCategory inserts a new category row.
func CreateCategory(ctx context.Context, db *gorm.DB, c *domain.Category) error {
	return db.WithContext(ctx).Create(c).Error
}

// UpdateCategoryName renames a category. Returns ErrNotFound when missing.
func UpdateCategoryName(ctx context.Context, db *gorm.DB, id int64, name string) error {
	res := db.WithContext(ctx).
		Model(&domain.Category{}).
		Where("id = ?", id).
		Update("name", name)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteCategory removes a category row. Callers must check
// CountCategoryUsage first; the repository itself does not guard.
func DeleteCategory(ctx context.Context, db *gorm.DB, id int64) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Category{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountCategoryUsage returns how many types reference the category.
func CountCategoryUsage(ctx context.Context, db *gorm.DB, categoryID int64) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.TypeCategory{}).
		Where("category_id = ?", categoryID).
		Count(&n).Error
	return n, err
}
