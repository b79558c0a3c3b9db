package services

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/minivault/inventory-backend/internal/domain"
	"github.com/minivault/inventory-backend/internal/repo"
)

// gormRepo adapts the repository free functions to the service interfaces,
// mirroring the production wiring.
type gormRepo struct{}

func (gormRepo) CountMiniatures(ctx context.Context, db *gorm.DB, search string) (int64, error) {
	return repo.CountMiniatures(ctx, db, search)
}

func (gormRepo) ListMiniaturesPage(ctx context.Context, db *gorm.DB, search string, offset, limit int) ([]domain.Miniature, error) {
	return repo.ListMiniaturesPage(ctx, db, search, offset, limit)
}

func (gormRepo) GetMiniature(ctx context.Context, db *gorm.DB, id int64) (*domain.Miniature, error) {
	return repo.GetMiniature(ctx, db, id)
}

func (gormRepo) CreateMiniature(ctx context.Context, db *gorm.DB, m *domain.Miniature) error {
	return repo.CreateMiniature(ctx, db, m)
}

func (gormRepo) UpdateMiniatureScalars(ctx context.Context, db *gorm.DB, id int64, m *domain.Miniature) error {
	return repo.UpdateMiniatureScalars(ctx, db, id, m)
}

func (gormRepo) SetMiniatureInUse(ctx context.Context, db *gorm.DB, id int64, inUse interface{}) error {
	return repo.SetMiniatureInUse(ctx, db, id, inUse)
}

func (gormRepo) ReplaceTypeLinks(ctx context.Context, db *gorm.DB, miniatureID int64, links []domain.MiniatureTypeLink) error {
	return repo.ReplaceTypeLinks(ctx, db, miniatureID, links)
}

func (gormRepo) ReplaceTagLinks(ctx context.Context, db *gorm.DB, miniatureID int64, tagIDs []int64) error {
	return repo.ReplaceTagLinks(ctx, db, miniatureID, tagIDs)
}

func (gormRepo) DeleteMiniature(ctx context.Context, db *gorm.DB, id int64) error {
	return repo.DeleteMiniature(ctx, db, id)
}

func (gormRepo) GetOrCreateTag(ctx context.Context, db *gorm.DB, name string) (*domain.Tag, error) {
	return repo.GetOrCreateTag(ctx, db, name)
}

func (gormRepo) ListTypes(ctx context.Context, db *gorm.DB) ([]domain.MiniatureType, error) {
	return repo.ListTypes(ctx, db)
}

func (gormRepo) GetType(ctx context.Context, db *gorm.DB, id int64) (*domain.MiniatureType, error) {
	return repo.GetType(ctx, db, id)
}

func (gormRepo) FindTypeByName(ctx context.Context, db *gorm.DB, name string) (*domain.MiniatureType, error) {
	return repo.FindTypeByName(ctx, db, name)
}

func (gormRepo) CreateType(ctx context.Context, db *gorm.DB, t *domain.MiniatureType) error {
	return repo.CreateType(ctx, db, t)
}

func (gormRepo) UpdateTypeName(ctx context.Context, db *gorm.DB, id int64, name string) error {
	return repo.UpdateTypeName(ctx, db, id, name)
}

func (gormRepo) DeleteType(ctx context.Context, db *gorm.DB, id int64) error {
	return repo.DeleteType(ctx, db, id)
}

func (gormRepo) CountTypeUsage(ctx context.Context, db *gorm.DB, typeID int64) (int64, error) {
	return repo.CountTypeUsage(ctx, db, typeID)
}

func (gormRepo) ReplaceTypeCategories(ctx context.Context, db *gorm.DB, typeID int64, categoryIDs []int64) error {
	return repo.ReplaceTypeCategories(ctx, db, typeID, categoryIDs)
}

func (gormRepo) ListCategories(ctx context.Context, db *gorm.DB) ([]domain.Category, error) {
	return repo.ListCategories(ctx, db)
}

func (gormRepo) FindCategoryByName(ctx context.Context, db *gorm.DB, name string) (*domain.Category, error) {
	return repo.FindCategoryByName(ctx, db, name)
}

func (gormRepo) CreateCategory(ctx context.Context, db *gorm.DB, c *domain.Category) error {
	return repo.CreateCategory(ctx, db, c)
}

func (gormRepo) UpdateCategoryName(ctx context.Context, db *gorm.DB, id int64, name string) error {
	return repo.UpdateCategoryName(ctx, db, id, name)
}

func (gormRepo) DeleteCategory(ctx context.Context, db *gorm.DB, id int64) error {
	return repo.DeleteCategory(ctx, db, id)
}

func (gormRepo) CountCategoryUsage(ctx context.Context, db *gorm.DB, categoryID int64) (int64, error) {
	return repo.CountCategoryUsage(ctx, db, categoryID)
}

func (gormRepo) ListTags(ctx context.Context, db *gorm.DB) ([]domain.Tag, error) {
	return repo.ListTags(ctx, db)
}

func (gormRepo) CreateCompany(ctx context.Context, db *gorm.DB, c *domain.Company) error {
	return repo.CreateCompany(ctx, db, c)
}

func (gormRepo) DeleteCompany(ctx context.Context, db *gorm.DB, id int64) error {
	return repo.DeleteCompany(ctx, db, id)
}

func (gormRepo) CountCompanyUsage(ctx context.Context, db *gorm.DB, companyID int64) (int64, error) {
	return repo.CountCompanyUsage(ctx, db, companyID)
}

func (gormRepo) CreateProductLine(ctx context.Context, db *gorm.DB, l *domain.ProductLine) error {
	return repo.CreateProductLine(ctx, db, l)
}

func (gormRepo) CreateProductSet(ctx context.Context, db *gorm.DB, s *domain.ProductSet) error {
	return repo.CreateProductSet(ctx, db, s)
}

func (gormRepo) GetProductSet(ctx context.Context, db *gorm.DB, id int64) (*domain.ProductSet, error) {
	return repo.GetProductSet(ctx, db, id)
}

func (gormRepo) CountAuditLogs(ctx context.Context, db *gorm.DB, miniatureID int64) (int64, error) {
	return repo.CountAuditLogs(ctx, db, miniatureID)
}

func (gormRepo) ListAuditLogsPage(ctx context.Context, db *gorm.DB, miniatureID int64, offset, limit int) ([]domain.AuditLog, error) {
	return repo.ListAuditLogsPage(ctx, db, miniatureID, offset, limit)
}

// newServiceDB opens a migrated sqlite file with the default lookup rows the
// services assume (painter 1, base size 1).
func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "svc.db"), gormlogger.Discard)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := db.Create(&domain.PaintedBy{ID: 1, Name: "Unpainted"}).Error; err != nil {
		t.Fatalf("seed painter: %v", err)
	}
	if err := db.Create(&domain.BaseSize{ID: 1, Name: "25mm round"}).Error; err != nil {
		t.Fatalf("seed base size: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func nopLogger() zerolog.Logger { return zerolog.Nop() }
