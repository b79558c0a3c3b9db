// Package repo — audit log repository.
//
// Audit rows are append-only: there are no update or delete functions on
// purpose. The history view reads newest-first pages per miniature.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/minivault/inventory-backend/internal/domain"
)

// InsertAuditLog appends one immutable audit row.
func InsertAuditLog(ctx context.Context, db *gorm.DB, e *domain.AuditLog) error {
	return db.WithContext(ctx).Create(e).Error
}

// CountAuditLogs returns the number of audit rows for a miniature.
func CountAuditLogs(ctx context.Context, db *gorm.DB, miniatureID int64) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.AuditLog{}).
		Where("miniature_id = ?", miniatureID).
		Count(&total).Error
	return total, err
}

// ListAuditLogsPage returns a page of audit rows for a miniature, newest
// first.
func ListAuditLogsPage(ctx context.Context, db *gorm.DB, miniatureID int64, offset, limit int) ([]domain.AuditLog, error) {
	out := []domain.AuditLog{}
	err := db.WithContext(ctx).
		Where("miniature_id = ?", miniatureID).
		Order("created_at desc, id desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
