// Miniature HTTP handlers.
//
// This file exposes REST endpoints for miniature resources:
//   - GET    /miniatures                (list, paginated + searchable)
//   - POST   /miniatures               (create)
//   - GET    /miniatures/{id}          (fetch one)
//   - PUT    /miniatures/{id}          (full update)
//   - PUT    /miniatures/{id}/in-use   (set/clear the in-use marker)
//   - DELETE /miniatures/{id}          (delete)
//   - POST   /miniatures/{id}/image    (upload/replace image)
//   - DELETE /miniatures/{id}/image    (delete image)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/minivault/inventory-backend/internal/domain"
	"github.com/minivault/inventory-backend/internal/services"
	"github.com/minivault/inventory-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// MiniatureService defines miniature lifecycle operations consumed by HTTP
// handlers. Implementations must be safe for concurrent use and honor the
// provided context.
type MiniatureService interface {
	// ListPage returns a page of miniatures plus the total match count.
	ListPage(ctx context.Context, page, pageSize int, search string) ([]domain.Miniature, int64, error)
	// Get fetches one miniature with relations.
	Get(ctx context.Context, id int64) (*domain.Miniature, error)
	// Create runs the multi-step create pipeline.
	Create(ctx context.Context, userID string, in services.MiniatureInput) (*domain.Miniature, error)
	// Update runs the multi-step update pipeline.
	Update(ctx context.Context, userID string, id int64, in services.MiniatureInput) (*domain.Miniature, error)
	// SetInUse sets or clears the in-use marker.
	SetInUse(ctx context.Context, userID string, id int64, ts *time.Time) error
	// Delete removes a miniature and best-effort its stored image.
	Delete(ctx context.Context, userID string, id int64) error
	// UploadImage stores an image and returns its public URL.
	UploadImage(ctx context.Context, userID string, id int64, filename string, r io.Reader, replace bool) (string, error)
	// DeleteImage removes the stored image.
	DeleteImage(ctx context.Context, userID string, id int64) error
}

//
// DTOs
//

// TypeAssignmentDTO is one requested type link.
type TypeAssignmentDTO struct {
	TypeID    int64 `json:"type_id" binding:"required"`
	ProxyType bool  `json:"proxy_type"`
}

// TagDTO is one requested tag link. Non-positive ids denote a tag that only
// exists client-side; Name is then required.
type TagDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// MiniatureRequest is the JSON payload for creating or updating a miniature.
type MiniatureRequest struct {
	Name         string              `json:"name" binding:"required,min=1,max=255"`
	Description  string              `json:"description"`
	Location     string              `json:"location" binding:"max=255"`
	Quantity     int                 `json:"quantity"`
	PaintedByID  int64               `json:"painted_by_id"`
	BaseSizeID   int64               `json:"base_size_id"`
	ProductSetID *int64              `json:"product_set_id"`
	Types        []TypeAssignmentDTO `json:"types"`
	Tags         []TagDTO            `json:"tags"`
}

// InUseRequest is the JSON payload for the in-use toggle. A null timestamp
// clears the marker; an absent one sets it to now.
type InUseRequest struct {
	InUse   bool       `json:"in_use"`
	StartAt *time.Time `json:"start_at"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListMiniaturesResponse wraps a page of miniatures and pagination info.
type ListMiniaturesResponse struct {
	Miniatures []domain.Miniature `json:"miniatures"`
	Pagination Pagination         `json:"pagination"`
}

// ImageResponse reports the public URL after a successful upload.
type ImageResponse struct {
	URL string `json:"url"`
}

//
// Helpers
//

// userID extracts the acting user id from the X-User-ID header. An empty
// result is allowed: writes proceed without audit attribution.
func userID(c *gin.Context) string {
	if c != nil && c.Request != nil {
		return strings.TrimSpace(c.GetHeader("X-User-ID"))
	}
	return ""
}

// pathID parses the :id path parameter.
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// paginationOf assembles the pagination envelope.
func paginationOf(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// toInput maps the request DTO to the service input.
func (r MiniatureRequest) toInput() services.MiniatureInput {
	in := services.MiniatureInput{
		Name:         r.Name,
		Description:  r.Description,
		Location:     r.Location,
		Quantity:     r.Quantity,
		PaintedByID:  r.PaintedByID,
		BaseSizeID:   r.BaseSizeID,
		ProductSetID: r.ProductSetID,
	}
	for _, t := range r.Types {
		in.Types = append(in.Types, services.TypeAssignment{TypeID: t.TypeID, ProxyType: t.ProxyType})
	}
	for _, t := range r.Tags {
		in.Tags = append(in.Tags, services.TagInput{ID: t.ID, Name: t.Name})
	}
	return in
}

// failMiniature translates service errors to the HTTP envelope.
func failMiniature(c *gin.Context, err error, code string) {
	switch {
	case errors.Is(err, services.ErrMiniatureNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrNameRequired),
		errors.Is(err, services.ErrNegativeQuantity),
		errors.Is(err, services.ErrTagNameRequired):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	default:
		fail(c, http.StatusInternalServerError, code, err.Error())
	}
}

//
// Handlers
//

// ListMiniatures returns a searchable page of miniatures.
func (h *Handlers) ListMiniatures(c *gin.Context) {
	page, pageSize := clampPagination(c)
	search := strings.TrimSpace(c.Query("search"))

	items, total, err := h.miniatures.ListPage(c.Request.Context(), page, pageSize, search)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListMiniaturesResponse{
		Miniatures: items,
		Pagination: paginationOf(page, pageSize, total),
	})
}

// GetMiniature returns one miniature with all relations.
func (h *Handlers) GetMiniature(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	m, err := h.miniatures.Get(c.Request.Context(), id)
	if err != nil {
		failMiniature(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, m)
}

// CreateMiniature runs the create pipeline.
func (h *Handlers) CreateMiniature(c *gin.Context) {
	var req MiniatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	m, err := h.miniatures.Create(c.Request.Context(), userID(c), req.toInput())
	if err != nil {
		failMiniature(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, m)
}

// UpdateMiniature runs the update pipeline with the submitted full state.
func (h *Handlers) UpdateMiniature(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	var req MiniatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	m, err := h.miniatures.Update(c.Request.Context(), userID(c), id, req.toInput())
	if err != nil {
		failMiniature(c, err, ErrCodeUpdateFailed)
		return
	}
	ok(c, http.StatusOK, m)
}

// SetMiniatureInUse sets or clears the in-use marker.
func (h *Handlers) SetMiniatureInUse(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	var req InUseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	var ts *time.Time
	if req.InUse {
		when := time.Now().UTC()
		if req.StartAt != nil {
			when = req.StartAt.UTC()
		}
		ts = &when
	}
	if err := h.miniatures.SetInUse(c.Request.Context(), userID(c), id, ts); err != nil {
		failMiniature(c, err, ErrCodeUpdateFailed)
		return
	}
	noContent(c)
}

// DeleteMiniature removes a miniature.
func (h *Handlers) DeleteMiniature(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	if err := h.miniatures.Delete(c.Request.Context(), userID(c), id); err != nil {
		failMiniature(c, err, ErrCodeDeleteFailed)
		return
	}
	noContent(c)
}

// UploadMiniatureImage stores an image from a multipart form. The optional
// replace=true query marks the history entry as a replacement.
func (h *Handlers) UploadMiniatureImage(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "missing file field")
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable file")
		return
	}
	defer f.Close()

	replace := c.Query("replace") == "true"
	url, err := h.miniatures.UploadImage(c.Request.Context(), userID(c), id, fileHeader.Filename, f, replace)
	if err != nil {
		failMiniature(c, err, ErrCodeImageFailed)
		return
	}
	ok(c, http.StatusOK, ImageResponse{URL: url})
}

// DeleteMiniatureImage removes the stored image.
func (h *Handlers) DeleteMiniatureImage(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	if err := h.miniatures.DeleteImage(c.Request.Context(), userID(c), id); err != nil {
		failMiniature(c, err, ErrCodeImageFailed)
		return
	}
	noContent(c)
}
