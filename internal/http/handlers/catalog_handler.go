// Taxonomy, catalog, and audit-trail HTTP handlers.
//
// Types/categories are admin surfaces; tags, the product hierarchy, and the
// reference-data snapshot back the collection forms; the audit trail feeds
// the per-miniature history view.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/minivault/inventory-backend/internal/domain"
	"github.com/minivault/inventory-backend/internal/refdata"
	"github.com/minivault/inventory-backend/internal/services"
)

// TaxonomyService defines type/category operations consumed by HTTP handlers.
type TaxonomyService interface {
	ListTypes(ctx context.Context) ([]domain.MiniatureType, error)
	GetType(ctx context.Context, id int64) (*domain.MiniatureType, error)
	CreateType(ctx context.Context, name string, categoryIDs []int64) (*domain.MiniatureType, error)
	RenameType(ctx context.Context, id int64, name string) error
	SetTypeCategories(ctx context.Context, id int64, categoryIDs []int64) error
	DeleteType(ctx context.Context, id int64) error

	ListCategories(ctx context.Context) ([]domain.Category, error)
	CreateCategory(ctx context.Context, name string) (*domain.Category, error)
	RenameCategory(ctx context.Context, id int64, name string) error
	DeleteCategory(ctx context.Context, id int64) error
}

// CatalogService defines tag, product-hierarchy, and reference-snapshot
// operations consumed by HTTP handlers.
type CatalogService interface {
	ListTags(ctx context.Context) ([]domain.Tag, error)
	EnsureTag(ctx context.Context, name string) (*domain.Tag, error)
	Reference(ctx context.Context) (*refdata.Snapshot, error)
	CreateCompany(ctx context.Context, name string) (*domain.Company, error)
	DeleteCompany(ctx context.Context, id int64) error
	CreateProductLine(ctx context.Context, companyID int64, name string) (*domain.ProductLine, error)
	CreateProductSet(ctx context.Context, productLineID int64, name string) (*domain.ProductSet, error)
	GetProductSet(ctx context.Context, id int64) (*domain.ProductSet, error)
}

// HistoryService defines audit-trail reads consumed by HTTP handlers.
type HistoryService interface {
	ListPage(ctx context.Context, miniatureID int64, page, pageSize int) ([]domain.AuditLog, int64, error)
}

//
// DTOs
//

// NameRequest is the JSON payload for create/rename of a named lookup row.
type NameRequest struct {
	Name string `json:"name" binding:"required,min=1,max=255"`
}

// CreateTypeRequest is the JSON payload for creating a type.
type CreateTypeRequest struct {
	Name        string  `json:"name" binding:"required,min=1,max=255"`
	CategoryIDs []int64 `json:"category_ids"`
}

// TypeCategoriesRequest replaces a type's category links.
type TypeCategoriesRequest struct {
	CategoryIDs []int64 `json:"category_ids"`
}

// CreateProductLineRequest is the JSON payload for creating a product line.
type CreateProductLineRequest struct {
	CompanyID int64  `json:"company_id" binding:"required"`
	Name      string `json:"name" binding:"required,min=1,max=255"`
}

// CreateProductSetRequest is the JSON payload for creating a product set.
type CreateProductSetRequest struct {
	ProductLineID int64  `json:"product_line_id" binding:"required"`
	Name          string `json:"name" binding:"required,min=1,max=255"`
}

// ListAuditResponse wraps a page of audit entries and pagination info.
type ListAuditResponse struct {
	Entries    []domain.AuditLog `json:"entries"`
	Pagination Pagination        `json:"pagination"`
}

// failTaxonomy translates taxonomy/catalog service errors to the envelope.
func failTaxonomy(c *gin.Context, err error, code string) {
	switch {
	case errors.Is(err, services.ErrTypeNotFound),
		errors.Is(err, services.ErrCategoryNotFound),
		errors.Is(err, services.ErrCompanyNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrDuplicateName):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, services.ErrTypeInUse),
		errors.Is(err, services.ErrCategoryInUse),
		errors.Is(err, services.ErrCompanyInUse):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, services.ErrNameRequired),
		errors.Is(err, services.ErrTagNameRequired):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	default:
		fail(c, http.StatusInternalServerError, code, err.Error())
	}
}

//
// Types and categories
//

// ListTypes returns every type with its categories.
func (h *Handlers) ListTypes(c *gin.Context) {
	items, err := h.taxonomy.ListTypes(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, items)
}

// CreateType adds a type, optionally linked to categories.
func (h *Handlers) CreateType(c *gin.Context) {
	var req CreateTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	t, err := h.taxonomy.CreateType(c.Request.Context(), req.Name, req.CategoryIDs)
	if err != nil {
		failTaxonomy(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, t)
}

// RenameType changes a type's name.
func (h *Handlers) RenameType(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	var req NameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if err := h.taxonomy.RenameType(c.Request.Context(), id, req.Name); err != nil {
		failTaxonomy(c, err, ErrCodeUpdateFailed)
		return
	}
	noContent(c)
}

// SetTypeCategories replaces a type's category links.
func (h *Handlers) SetTypeCategories(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	var req TypeCategoriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if err := h.taxonomy.SetTypeCategories(c.Request.Context(), id, req.CategoryIDs); err != nil {
		failTaxonomy(c, err, ErrCodeUpdateFailed)
		return
	}
	noContent(c)
}

// DeleteType removes an unused type.
func (h *Handlers) DeleteType(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	if err := h.taxonomy.DeleteType(c.Request.Context(), id); err != nil {
		failTaxonomy(c, err, ErrCodeDeleteFailed)
		return
	}
	noContent(c)
}

// ListCategories returns every category.
func (h *Handlers) ListCategories(c *gin.Context) {
	items, err := h.taxonomy.ListCategories(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, items)
}

// CreateCategory adds a category.
func (h *Handlers) CreateCategory(c *gin.Context) {
	var req NameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	cat, err := h.taxonomy.CreateCategory(c.Request.Context(), req.Name)
	if err != nil {
		failTaxonomy(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, cat)
}

// RenameCategory changes a category's name.
func (h *Handlers) RenameCategory(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	var req NameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if err := h.taxonomy.RenameCategory(c.Request.Context(), id, req.Name); err != nil {
		failTaxonomy(c, err, ErrCodeUpdateFailed)
		return
	}
	noContent(c)
}

// DeleteCategory removes a category not linked to any type.
func (h *Handlers) DeleteCategory(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	if err := h.taxonomy.DeleteCategory(c.Request.Context(), id); err != nil {
		failTaxonomy(c, err, ErrCodeDeleteFailed)
		return
	}
	noContent(c)
}

//
// Tags, products, reference data
//

// ListTags returns every tag.
func (h *Handlers) ListTags(c *gin.Context) {
	items, err := h.catalog.ListTags(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, items)
}

// EnsureTag resolves or creates a tag by name.
func (h *Handlers) EnsureTag(c *gin.Context) {
	var req NameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	tag, err := h.catalog.EnsureTag(c.Request.Context(), req.Name)
	if err != nil {
		failTaxonomy(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusOK, tag)
}

// GetReference returns the shared reference-data snapshot.
func (h *Handlers) GetReference(c *gin.Context) {
	snap, err := h.catalog.Reference(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, snap)
}

// CreateCompany adds a company.
func (h *Handlers) CreateCompany(c *gin.Context) {
	var req NameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	co, err := h.catalog.CreateCompany(c.Request.Context(), req.Name)
	if err != nil {
		failTaxonomy(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, co)
}

// DeleteCompany removes a company with no product lines.
func (h *Handlers) DeleteCompany(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	if err := h.catalog.DeleteCompany(c.Request.Context(), id); err != nil {
		failTaxonomy(c, err, ErrCodeDeleteFailed)
		return
	}
	noContent(c)
}

// CreateProductLine adds a product line under a company.
func (h *Handlers) CreateProductLine(c *gin.Context) {
	var req CreateProductLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	line, err := h.catalog.CreateProductLine(c.Request.Context(), req.CompanyID, req.Name)
	if err != nil {
		failTaxonomy(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, line)
}

// CreateProductSet adds a product set under a product line.
func (h *Handlers) CreateProductSet(c *gin.Context) {
	var req CreateProductSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	set, err := h.catalog.CreateProductSet(c.Request.Context(), req.ProductLineID, req.Name)
	if err != nil {
		failTaxonomy(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, set)
}

//
// Audit trail
//

// ListMiniatureAudit returns a page of a miniature's history, newest first.
func (h *Handlers) ListMiniatureAudit(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	page, pageSize := clampPagination(c)

	items, total, err := h.history.ListPage(c.Request.Context(), id, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListAuditResponse{
		Entries:    items,
		Pagination: paginationOf(page, pageSize, total),
	})
}
