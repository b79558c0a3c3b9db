// Package services – CatalogService
//
// Tags and the product hierarchy (company → product line → product set), plus
// the shared reference-data snapshot that listing screens join against.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/minivault/inventory-backend/internal/domain"
	"github.com/minivault/inventory-backend/internal/events"
	"github.com/minivault/inventory-backend/internal/refdata"
	"github.com/minivault/inventory-backend/internal/repo"
)

// CatalogRepo defines the repository contract required by CatalogService.
type CatalogRepo interface {
	ListTags(ctx context.Context, db *gorm.DB) ([]domain.Tag, error)
	GetOrCreateTag(ctx context.Context, db *gorm.DB, name string) (*domain.Tag, error)

	CreateCompany(ctx context.Context, db *gorm.DB, c *domain.Company) error
	DeleteCompany(ctx context.Context, db *gorm.DB, id int64) error
	CountCompanyUsage(ctx context.Context, db *gorm.DB, companyID int64) (int64, error)
	CreateProductLine(ctx context.Context, db *gorm.DB, l *domain.ProductLine) error
	CreateProductSet(ctx context.Context, db *gorm.DB, s *domain.ProductSet) error
	GetProductSet(ctx context.Context, db *gorm.DB, id int64) (*domain.ProductSet, error)
}

// CatalogService manages tags, the product hierarchy, and the reference-data
// snapshot.
type CatalogService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the catalog repository used by this service.
	Repo CatalogRepo
	// Ref holds the shared reference snapshot; nil disables Reference.
	Ref *refdata.Store
	// Bus carries change events; nil disables publishing.
	Bus *events.Bus
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(db *gorm.DB, r CatalogRepo, ref *refdata.Store, bus *events.Bus) *CatalogService {
	return &CatalogService{DB: db, Repo: r, Ref: ref, Bus: bus}
}

// ListTags returns every tag ordered by name.
func (s *CatalogService) ListTags(ctx context.Context) ([]domain.Tag, error) {
	return s.Repo.ListTags(ctx, s.DB)
}

// EnsureTag resolves a tag by case-insensitive name, creating it when absent.
func (s *CatalogService) EnsureTag(ctx context.Context, name string) (*domain.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrTagNameRequired
	}
	tag, err := s.Repo.GetOrCreateTag(ctx, s.DB, name)
	if err != nil {
		return nil, err
	}
	s.publish(events.TableTags, events.OpCreate)
	return tag, nil
}

// Reference returns the shared reference snapshot, refreshing it when stale.
func (s *CatalogService) Reference(ctx context.Context) (*refdata.Snapshot, error) {
	if s.Ref == nil {
		return nil, errors.New("reference store not configured")
	}
	return s.Ref.Load(ctx)
}

// CreateCompany adds a company.
func (s *CatalogService) CreateCompany(ctx context.Context, name string) (*domain.Company, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	c := &domain.Company{Name: name}
	if err := s.Repo.CreateCompany(ctx, s.DB, c); err != nil {
		return nil, err
	}
	s.publish(events.TableCompanies, events.OpCreate)
	return c, nil
}

// DeleteCompany removes a company unless product lines still reference it.
func (s *CatalogService) DeleteCompany(ctx context.Context, id int64) error {
	n, err := s.Repo.CountCompanyUsage(ctx, s.DB, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrCompanyInUse
	}
	if err := s.Repo.DeleteCompany(ctx, s.DB, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrCompanyNotFound
		}
		return err
	}
	s.publish(events.TableCompanies, events.OpDelete)
	return nil
}

// CreateProductLine adds a product line under a company.
func (s *CatalogService) CreateProductLine(ctx context.Context, companyID int64, name string) (*domain.ProductLine, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	l := &domain.ProductLine{Name: name, CompanyID: companyID}
	if err := s.Repo.CreateProductLine(ctx, s.DB, l); err != nil {
		return nil, err
	}
	s.publish(events.TableProductLines, events.OpCreate)
	return l, nil
}

// CreateProductSet adds a product set under a product line.
func (s *CatalogService) CreateProductSet(ctx context.Context, productLineID int64, name string) (*domain.ProductSet, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	ps := &domain.ProductSet{Name: name, ProductLineID: productLineID}
	if err := s.Repo.CreateProductSet(ctx, s.DB, ps); err != nil {
		return nil, err
	}
	s.publish(events.TableProductSets, events.OpCreate)
	return ps, nil
}

// GetProductSet fetches one product set with its line and company.
func (s *CatalogService) GetProductSet(ctx context.Context, id int64) (*domain.ProductSet, error) {
	ps, err := s.Repo.GetProductSet(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, repo.ErrNotFound
	}
	return ps, err
}

func (s *CatalogService) publish(table events.Table, op events.Op) {
	if s.Bus != nil {
		s.Bus.Publish(events.Event{Table: table, Op: op})
	}
}
