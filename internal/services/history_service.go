package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/minivault/inventory-backend/internal/domain"
)

// HistoryRepo defines the repository contract required by HistoryService.
type HistoryRepo interface {
	CountAuditLogs(ctx context.Context, db *gorm.DB, miniatureID int64) (int64, error)
	ListAuditLogsPage(ctx context.Context, db *gorm.DB, miniatureID int64, offset, limit int) ([]domain.AuditLog, error)
}

// HistoryService serves the per-miniature audit trail, newest first.
type HistoryService struct {
	DB   *gorm.DB
	Repo HistoryRepo
}

// NewHistoryService constructs a HistoryService.
func NewHistoryService(db *gorm.DB, r HistoryRepo) *HistoryService {
	return &HistoryService{DB: db, Repo: r}
}

// ListPage returns one page of a miniature's history plus the total count.
func (s *HistoryService) ListPage(ctx context.Context, miniatureID int64, page, pageSize int) ([]domain.AuditLog, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	total, err := s.Repo.CountAuditLogs(ctx, s.DB, miniatureID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.AuditLog{}, 0, nil
	}
	items, err := s.Repo.ListAuditLogsPage(ctx, s.DB, miniatureID, (page-1)*pageSize, pageSize)
	return items, total, err
}
