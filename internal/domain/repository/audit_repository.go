package repository

import (
	"context"
	"time"

	"github.com/turtacn/covenantwatch/internal/domain/models"
	"github.com/turtacn/covenantwatch/pkg/constants"
)

// AuditFilter narrows an audit trail query. Zero fields do not filter;
// Start and End are inclusive and Limit <= 0 means no limit.
type AuditFilter struct {
	LoanID    string
	EventType constants.AuditEventType
	Start     *time.Time
	End       *time.Time
	Limit     int
}

// AuditRepository reads back the stored audit trail.
type AuditRepository interface {
	// ListByLoan returns events for a loan, newest first.
	ListByLoan(ctx context.Context, loanID string, limit int) ([]*models.AuditEvent, error)
	// Query returns the events matching filter, newest first.
	Query(ctx context.Context, filter AuditFilter) ([]*models.AuditEvent, error)
}
