// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, compression, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/minivault/inventory-backend/internal/audit"
	"github.com/minivault/inventory-backend/internal/cache"
	"github.com/minivault/inventory-backend/internal/config"
	"github.com/minivault/inventory-backend/internal/domain"
	"github.com/minivault/inventory-backend/internal/events"
	"github.com/minivault/inventory-backend/internal/http/handlers"
	"github.com/minivault/inventory-backend/internal/http/middleware"
	"github.com/minivault/inventory-backend/internal/images"
	"github.com/minivault/inventory-backend/internal/refdata"
	"github.com/minivault/inventory-backend/internal/repo"
	"github.com/minivault/inventory-backend/internal/services"
)

// gormRepo adapts the repository free functions to the service interfaces.
// This keeps services decoupled from the concrete repo package while reusing
// the existing functions.
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

// Deps carries the long-lived dependencies the router injects into services.
// All of them are constructed once at application start.
type Deps struct {
	DB     *gorm.DB
	Log    zerolog.Logger
	Cache  *cache.Pages[domain.Miniature]
	Ref    *refdata.Store
	Bus    *events.Bus
	Audit  *audit.Recorder
	Images *images.Client
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), rate limiting, CORS
// and security headers, health and metrics endpoints, and then mounts the
// versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Rate limiter (per user/IP)
//  8. CORS and Security headers
//  9. Response compression
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"X-API-Key",
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (8 MiB; image uploads pass through here)
	r.Use(limitBody(8 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 8) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// 9) Compress JSON list payloads
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← repo/db/cache/bus
	miniSvc := services.NewMiniatureService(deps.DB, gormRepo{}, deps.Log)
	miniSvc.Cache = deps.Cache
	miniSvc.Bus = deps.Bus
	miniSvc.Audit = deps.Audit
	miniSvc.Images = deps.Images
	miniSvc.DefaultPaintedByID = cfg.DefaultPaintedByID
	miniSvc.DefaultBaseSizeID = cfg.DefaultBaseSizeID

	taxSvc := services.NewTaxonomyService(deps.DB, gormRepo{}, deps.Bus)
	catSvc := services.NewCatalogService(deps.DB, gormRepo{}, deps.Ref, deps.Bus)
	histSvc := services.NewHistoryService(deps.DB, gormRepo{})
	h := handlers.New(miniSvc, taxSvc, catSvc, histSvc)

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Miniatures
		api.GET("/miniatures", h.ListMiniatures)
		api.POST("/miniatures", h.CreateMiniature)
		api.GET("/miniatures/:id", h.GetMiniature)
		api.PUT("/miniatures/:id", h.UpdateMiniature)
		api.PUT("/miniatures/:id/in-use", h.SetMiniatureInUse)
		api.DELETE("/miniatures/:id", h.DeleteMiniature)
		api.POST("/miniatures/:id/image", h.UploadMiniatureImage)
		api.DELETE("/miniatures/:id/image", h.DeleteMiniatureImage)
		api.GET("/miniatures/:id/audit", h.ListMiniatureAudit)

		// Types and categories
		api.GET("/types", h.ListTypes)
		api.POST("/types", h.CreateType)
		api.PUT("/types/:id/name", h.RenameType)
		api.PUT("/types/:id/categories", h.SetTypeCategories)
		api.DELETE("/types/:id", h.DeleteType)
		api.GET("/categories", h.ListCategories)
		api.POST("/categories", h.CreateCategory)
		api.PUT("/categories/:id/name", h.RenameCategory)
		api.DELETE("/categories/:id", h.DeleteCategory)

		// Tags
		api.GET("/tags", h.ListTags)
		api.POST("/tags", h.EnsureTag)

		// Product taxonomy and reference data
		api.GET("/reference", h.GetReference)
		api.POST("/companies", h.CreateCompany)
		api.DELETE("/companies/:id", h.DeleteCompany)
		api.POST("/product-lines", h.CreateProductLine)
		api.POST("/product-sets", h.CreateProductSet)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
