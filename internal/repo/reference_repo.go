// Package repo — lookup-table repository.
//
// These functions back the reference data store: the six small, rarely
// changing tables a miniature form needs (painters, base sizes, companies,
// product lines, product sets, and the type taxonomy). Reads return full
// tables ordered by name; the product taxonomy additionally supports the
// simple create/rename/delete operations of the admin screens.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/minivault/inventory-backend/internal/domain"
)

// ListPaintedBy returns all painter rows ordered by name.
func ListPaintedBy(ctx context.Context, db *gorm.DB) ([]domain.PaintedBy, error) {
	out := []domain.PaintedBy{}
	err := db.WithContext(ctx).Order("LOWER(name) asc").Find(&out).Error
	return out, err
}

// ListBaseSizes returns all base-size rows ordered by id (sizes have a
// natural physical ordering that insertion follows).
func ListBaseSizes(ctx context.Context, db *gorm.DB) ([]domain.BaseSize, error) {
	out := []domain.BaseSize{}
	err := db.WithContext(ctx).Order("id asc").Find(&out).Error
	return out, err
}

// ListCompanies returns all companies ordered by name.
func ListCompanies(ctx context.Context, db *gorm.DB) ([]domain.Company, error) {
	out := []domain.Company{}
	err := db.WithContext(ctx).Order("LOWER(name) asc").Find(&out).Error
	return out, err
}

// ListProductLines returns all product lines ordered by name.
func ListProductLines(ctx context.Context, db *gorm.DB) ([]domain.ProductLine, error) {
	out := []domain.ProductLine{}
	err := db.WithContext(ctx).Order("LOWER(name) asc").Find(&out).Error
	return out, err
}

// ListProductSets returns all product sets ordered by name.
func ListProductSets(ctx context.Context, db *gorm.DB) ([]domain.ProductSet, error) {
	out := []domain.ProductSet{}
	err := db.WithContext(ctx).Order("LOWER(name) asc").Find(&out).Error
	return out, err
}

// GetProductSet fetches one set with its line and company chain preloaded,
// or ErrNotFound.
func GetProductSet(ctx context.Context, db *gorm.DB, id int64) (*domain.ProductSet, error) {
	var s domain.ProductSet
	err := db.WithContext(ctx).
		Preload("ProductLine.Company").
		Where("id = ?", id).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateCompany inserts a company row.
func CreateCompany(ctx context.Context, db *gorm.DB, c *domain.Company) error {
	return db.WithContext(ctx).Create(c).Error
}

// CreateProductLine inserts a product line row.
func CreateProductLine(ctx context.Context, db *gorm.DB, l *domain.ProductLine) error {
	return db.WithContext(ctx).Omit("Company").Create(l).Error
}

// CreateProductSet inserts a product set row.
func CreateProductSet(ctx context.Context, db *gorm.DB, s *domain.ProductSet) error {
	return db.WithContext(ctx).Omit("ProductLine").Create(s).Error
}

// DeleteCompany removes a company row; product lines referencing it keep the
// caller honest via CountCompanyUsage.
func DeleteCompany(ctx context.Context, db *gorm.DB, id int64) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Company{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountCompanyUsage returns how many product lines reference the company.
func CountCompanyUsage(ctx context.Context, db *gorm.DB, companyID int64) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.ProductLine{}).
		Where("company_id = ?", companyID).
		Count(&n).Error
	return n, err
}
