// Package services – TaxonomyService
//
// Types and categories are admin-maintained lookup data. Name uniqueness is
// enforced by a case-insensitive read before the write, not a database
// constraint, so two concurrent creators of the same name can both succeed;
// the race window is accepted and noted in the tests.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/minivault/inventory-backend/internal/domain"
	"github.com/minivault/inventory-backend/internal/events"
	"github.com/minivault/inventory-backend/internal/repo"
)

// TaxonomyRepo defines the repository contract required by TaxonomyService.
type TaxonomyRepo interface {
	ListTypes(ctx context.Context, db *gorm.DB) ([]domain.MiniatureType, error)
	GetType(ctx context.Context, db *gorm.DB, id int64) (*domain.MiniatureType, error)
	FindTypeByName(ctx context.Context, db *gorm.DB, name string) (*domain.MiniatureType, error)
	CreateType(ctx context.Context, db *gorm.DB, t *domain.MiniatureType) error
	UpdateTypeName(ctx context.Context, db *gorm.DB, id int64, name string) error
	DeleteType(ctx context.Context, db *gorm.DB, id int64) error
	CountTypeUsage(ctx context.Context, db *gorm.DB, typeID int64) (int64, error)
	ReplaceTypeCategories(ctx context.Context, db *gorm.DB, typeID int64, categoryIDs []int64) error

	ListCategories(ctx context.Context, db *gorm.DB) ([]domain.Category, error)
	FindCategoryByName(ctx context.Context, db *gorm.DB, name string) (*domain.Category, error)
	CreateCategory(ctx context.Context, db *gorm.DB, c *domain.Category) error
	UpdateCategoryName(ctx context.Context, db *gorm.DB, id int64, name string) error
	DeleteCategory(ctx context.Context, db *gorm.DB, id int64) error
	CountCategoryUsage(ctx context.Context, db *gorm.DB, categoryID int64) (int64, error)
}

// TaxonomyService manages the type/category lookup tables.
type TaxonomyService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the taxonomy repository used by this service.
	Repo TaxonomyRepo
	// Bus carries change events; nil disables publishing.
	Bus *events.Bus
}

// NewTaxonomyService constructs a TaxonomyService.
func NewTaxonomyService(db *gorm.DB, r TaxonomyRepo, bus *events.Bus) *TaxonomyService {
	return &TaxonomyService{DB: db, Repo: r, Bus: bus}
}

// ListTypes returns every type with its categories.
func (s *TaxonomyService) ListTypes(ctx context.Context) ([]domain.MiniatureType, error) {
	return s.Repo.ListTypes(ctx, s.DB)
}

// GetType fetches one type with its categories.
func (s *TaxonomyService) GetType(ctx context.Context, id int64) (*domain.MiniatureType, error) {
	t, err := s.Repo.GetType(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrTypeNotFound
	}
	return t, err
}

// CreateType adds a type after the case-insensitive duplicate pre-check and
// links it to the given categories.
func (s *TaxonomyService) CreateType(ctx context.Context, name string, categoryIDs []int64) (*domain.MiniatureType, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if _, err := s.Repo.FindTypeByName(ctx, s.DB, name); err == nil {
		return nil, ErrDuplicateName
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	t := &domain.MiniatureType{Name: name}
	if err := s.Repo.CreateType(ctx, s.DB, t); err != nil {
		return nil, err
	}
	if len(categoryIDs) > 0 {
		if err := s.Repo.ReplaceTypeCategories(ctx, s.DB, t.ID, categoryIDs); err != nil {
			return nil, err
		}
	}
	s.publish(events.TableTypes, events.OpCreate)
	return s.GetType(ctx, t.ID)
}

// RenameType changes a type's name after the duplicate pre-check. Renaming a
// type to its own current name (any casing) is allowed.
func (s *TaxonomyService) RenameType(ctx context.Context, id int64, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrNameRequired
	}
	if existing, err := s.Repo.FindTypeByName(ctx, s.DB, name); err == nil {
		if existing.ID != id {
			return ErrDuplicateName
		}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return err
	}

	if err := s.Repo.UpdateTypeName(ctx, s.DB, id, name); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrTypeNotFound
		}
		return err
	}
	s.publish(events.TableTypes, events.OpUpdate)
	return nil
}

// SetTypeCategories replaces a type's category links wholesale.
func (s *TaxonomyService) SetTypeCategories(ctx context.Context, id int64, categoryIDs []int64) error {
	if _, err := s.Repo.GetType(ctx, s.DB, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrTypeNotFound
		}
		return err
	}
	if err := s.Repo.ReplaceTypeCategories(ctx, s.DB, id, categoryIDs); err != nil {
		return err
	}
	s.publish(events.TableTypes, events.OpUpdate)
	return nil
}

// DeleteType removes a type unless miniatures still reference it.
func (s *TaxonomyService) DeleteType(ctx context.Context, id int64) error {
	n, err := s.Repo.CountTypeUsage(ctx, s.DB, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrTypeInUse
	}
	if err := s.Repo.DeleteType(ctx, s.DB, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrTypeNotFound
		}
		return err
	}
	s.publish(events.TableTypes, events.OpDelete)
	return nil
}

// ListCategories returns every category.
func (s *TaxonomyService) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.Repo.ListCategories(ctx, s.DB)
}

// CreateCategory adds a category after the duplicate pre-check.
func (s *TaxonomyService) CreateCategory(ctx context.Context, name string) (*domain.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if _, err := s.Repo.FindCategoryByName(ctx, s.DB, name); err == nil {
		return nil, ErrDuplicateName
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	c := &domain.Category{Name: name}
	if err := s.Repo.CreateCategory(ctx, s.DB, c); err != nil {
		return nil, err
	}
	s.publish(events.TableCategories, events.OpCreate)
	return c, nil
}

// RenameCategory changes a category's name after the duplicate pre-check.
func (s *TaxonomyService) RenameCategory(ctx context.Context, id int64, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrNameRequired
	}
	if existing, err := s.Repo.FindCategoryByName(ctx, s.DB, name); err == nil {
		if existing.ID != id {
			return ErrDuplicateName
		}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return err
	}

	if err := s.Repo.UpdateCategoryName(ctx, s.DB, id, name); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrCategoryNotFound
		}
		return err
	}
	s.publish(events.TableCategories, events.OpUpdate)
	return nil
}

// DeleteCategory removes a category unless types still link to it.
func (s *TaxonomyService) DeleteCategory(ctx context.Context, id int64) error {
	n, err := s.Repo.CountCategoryUsage(ctx, s.DB, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrCategoryInUse
	}
	if err := s.Repo.DeleteCategory(ctx, s.DB, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrCategoryNotFound
		}
		return err
	}
	s.publish(events.TableCategories, events.OpDelete)
	return nil
}

func (s *TaxonomyService) publish(table events.Table, op events.Op) {
	if s.Bus != nil {
		s.Bus.Publish(events.Event{Table: table, Op: op})
	}
}
