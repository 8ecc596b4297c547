package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/turtacn/covenantwatch/internal/domain/models"
	"github.com/turtacn/covenantwatch/internal/domain/repository"
	"github.com/turtacn/covenantwatch/internal/domain/service"
	"github.com/turtacn/covenantwatch/pkg/errors"
)

// AuditRepoImpl is the queryable audit trail. It is both an AuditService
// sink and the AuditRepository read side.
type AuditRepoImpl struct {
	db *gorm.DB
}

var (
	_ service.AuditService       = (*AuditRepoImpl)(nil)
	_ repository.AuditRepository = (*AuditRepoImpl)(nil)
)

// NewAuditRepository creates a gorm-backed audit trail.
func NewAuditRepository(db *gorm.DB) *AuditRepoImpl {
	return &AuditRepoImpl{db: db}
}

// LogEvent saves an AuditEvent to the database. Events built without a hash
// are hashed before they are stored.
func (r *AuditRepoImpl) LogEvent(ctx context.Context, event models.AuditEvent) error {
	if event.Hash == "" {
		event.Hash = event.ComputeHash()
	}
	if err := r.db.WithContext(ctx).Create(auditFromDomain(&event)).Error; err != nil {
		return errors.ErrDatabaseOperation("log audit event", err)
	}
	return nil
}

// ListByLoan returns up to limit events for a loan, newest first.
func (r *AuditRepoImpl) ListByLoan(ctx context.Context, loanID string, limit int) ([]*models.AuditEvent, error) {
	return r.Query(ctx, repository.AuditFilter{LoanID: loanID, Limit: limit})
}

// Query returns the events matching filter, newest first. Events logged at
// the same instant come back in reverse insertion order.
func (r *AuditRepoImpl) Query(ctx context.Context, filter repository.AuditFilter) ([]*models.AuditEvent, error) {
	q := r.db.WithContext(ctx).Model(&auditEventDBM{})
	if filter.LoanID != "" {
		q = q.Where("loan_id = ?", filter.LoanID)
	}
	if filter.EventType != "" {
		q = q.Where("event_type = ?", string(filter.EventType))
	}
	if filter.Start != nil {
		q = q.Where("occurred_at >= ?", filter.Start.UTC())
	}
	if filter.End != nil {
		q = q.Where("occurred_at <= ?", filter.End.UTC())
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var rows []auditEventDBM
	if err := q.Order("occurred_at DESC, seq DESC").Find(&rows).Error; err != nil {
		return nil, errors.ErrDatabaseOperation("list audit events", err)
	}
	out := make([]*models.AuditEvent, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}
