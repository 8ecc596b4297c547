package service

import (
	"context"
	"time"

	"github.com/turtacn/covenantwatch/internal/domain/models"
)

// BreachNotification is sent to the breach ledger when a prediction crosses
// into high or critical risk.
// BreachNotification 在预测风险达到高或严重级别时发送到违约账本。
type BreachNotification struct {
	BreachID       string    `json:"breach_id"`
	LoanID         string    `json:"loan_id"`
	RuleID         string    `json:"rule_id"`
	Severity       int       `json:"severity"`
	PredictedValue float64   `json:"predicted_value"`
	DetectedAt     time.Time `json:"detected_at"`
}

// LedgerReceipt is what the ledger returns for an accepted notification.
type LedgerReceipt struct {
	BreachID string `json:"breach_id"`
	TxHash   string `json:"tx_hash"`
}

// BreachNotifier records predicted breaches in an external ledger.
// BreachNotifier 将预测的违约记录到外部账本中。
//
//go:generate mockery --name BreachNotifier --output mocks --outpkg mocks
type BreachNotifier interface {
	// NotifyBreach submits a notification. Implementations must honour ctx cancellation.
	// NotifyBreach 提交违约通知。实现必须遵守 ctx 的取消。
	NotifyBreach(ctx context.Context, n BreachNotification) (*LedgerReceipt, error)
}

// NoopBreachNotifier accepts every notification without recording it and
// returns no receipt.
type NoopBreachNotifier struct{}

func (NoopBreachNotifier) NotifyBreach(context.Context, BreachNotification) (*LedgerReceipt, error) {
	return nil, nil
}

// AuditService defines the interface for recording loan audit events.
// AuditService 定义了用于记录贷款审计事件的接口。
//
//go:generate mockery --name AuditService --output mocks --outpkg mocks
type AuditService interface {
	// LogEvent records an audit event.
	// LogEvent 记录审计事件。
	LogEvent(ctx context.Context, event models.AuditEvent) error
}

// PredictionCache holds recent assessments keyed by loan and horizon set.
// PredictionCache 按贷款和预测期限集合缓存最近的评估结果。
//
//go:generate mockery --name PredictionCache --output mocks --outpkg mocks
type PredictionCache interface {
	// Get returns a cached assessment. A miss is (nil, nil).
	Get(ctx context.Context, loanID string, horizons []int) (*models.RiskAssessment, error)

	// Set stores an assessment.
	Set(ctx context.Context, assessment *models.RiskAssessment) error

	// InvalidateLoan drops every cached assessment for a loan.
	InvalidateLoan(ctx context.Context, loanID string) error
}
