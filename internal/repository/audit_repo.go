package repository

import (
	"context"

	"gorm.io/gorm"

	"gameshop/internal/model"
)

// AuditRepository is append-only
type AuditRepository interface {
	Append(ctx context.Context, entries []*model.AuditLog) error
	ListByResource(ctx context.Context, resource, resourceID string) ([]*model.AuditLog, error)
}

type auditRepository struct {
	db *gorm.DB
}

// NewAuditRepository creates an audit repository
func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Append(ctx context.Context, entries []*model.AuditLog) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(entries).Error
}

func (r *auditRepository) ListByResource(ctx context.Context, resource, resourceID string) ([]*model.AuditLog, error) {
	var entries []*model.AuditLog
	err := r.db.WithContext(ctx).
		Where("resource = ? AND resource_id = ?", resource, resourceID).
		Order("id ASC").
		Find(&entries).Error
	return entries, err
}
