package audit

import (
	"context"

	"github.com/turtacn/covenantwatch/internal/domain/models"
	"github.com/turtacn/covenantwatch/internal/domain/service"
	"github.com/turtacn/covenantwatch/pkg/logger"
)

// Fanout writes every event to a primary sink and then to secondary sinks.
// Only the primary sink's error is returned; secondary failures are logged.
// Fanout 将事件写入主存储，再写入次级存储（仅返回主存储的错误）。
type Fanout struct {
	primary     service.AuditService
	secondaries []service.AuditService
	logger      logger.Logger
}

var _ service.AuditService = (*Fanout)(nil)

// NewFanout creates a fanout audit service. Nil secondaries are skipped.
func NewFanout(primary service.AuditService, log logger.Logger, secondaries ...service.AuditService) *Fanout {
	f := &Fanout{primary: primary, logger: log.WithComponent("AuditFanout")}
	for _, s := range secondaries {
		if s != nil {
			f.secondaries = append(f.secondaries, s)
		}
	}
	return f
}

// LogEvent implements service.AuditService.
func (f *Fanout) LogEvent(ctx context.Context, event models.AuditEvent) error {
	if err := f.primary.LogEvent(ctx, event); err != nil {
		return err
	}
	for _, s := range f.secondaries {
		if err := s.LogEvent(ctx, event); err != nil {
			f.logger.Warn(ctx, "secondary audit sink failed",
				logger.String("event_id", event.EventID.String()),
				logger.String("loan_id", event.LoanID),
				logger.Err(err),
			)
		}
	}
	return nil
}
