// Package ledger submits predicted breaches to the governance ledger bridge.
// 包 ledger 将预测的违约提交到治理账本桥接服务。
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/turtacn/covenantwatch/internal/config"
	"github.com/turtacn/covenantwatch/internal/domain/service"
	"github.com/turtacn/covenantwatch/pkg/errors"
	"github.com/turtacn/covenantwatch/pkg/logger"
)

const (
	detectBreachPath = "/api/v1/governance/detect-breach"
	retryWaitMin     = 50 * time.Millisecond
	retryWaitMax     = 250 * time.Millisecond
	maxErrorBody     = 4 << 10
)

type detectBreachRequest struct {
	BreachID       string  `json:"breachId"`
	LoanID         string  `json:"loanId"`
	RuleID         string  `json:"ruleId"`
	Severity       int     `json:"severity"`
	PredictedValue float64 `json:"predictedValue"`
}

type detectBreachResponse struct {
	Success         bool   `json:"success"`
	TransactionHash string `json:"transactionHash"`
	BlockNumber     int64  `json:"blockNumber"`
	Error           string `json:"error"`
}

// HTTPNotifier is a BreachNotifier talking to the ledger bridge over HTTP.
type HTTPNotifier struct {
	baseURL string
	client  *retryablehttp.Client
	logger  logger.Logger
}

var _ service.BreachNotifier = (*HTTPNotifier)(nil)

// NewHTTPNotifier creates a notifier from the ledger configuration.
func NewHTTPNotifier(cfg config.LedgerConfig, log logger.Logger) *HTTPNotifier {
	log = log.WithComponent("LedgerNotifier")

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.RetryWaitMin = retryWaitMin
	client.RetryWaitMax = retryWaitMax
	client.HTTPClient.Timeout = cfg.Timeout()
	client.Logger = leveledLogger{log: log}
	// Hand the final response back so status codes can be mapped below.
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &HTTPNotifier{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
		logger:  log,
	}
}

// NotifyBreach posts the notification and returns the ledger receipt.
// Any non-success answer is reported as ErrLedgerUnavailable.
func (n *HTTPNotifier) NotifyBreach(ctx context.Context, notification service.BreachNotification) (*service.LedgerReceipt, error) {
	body, err := json.Marshal(detectBreachRequest{
		BreachID:       notification.BreachID,
		LoanID:         notification.LoanID,
		RuleID:         notification.RuleID,
		Severity:       notification.Severity,
		PredictedValue: notification.PredictedValue,
	})
	if err != nil {
		return nil, errors.ErrServerError("encode breach notification").WithCause(err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+detectBreachPath, bytes.NewReader(body))
	if err != nil {
		return nil, errors.ErrLedgerUnavailable("build request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, errors.ErrLedgerUnavailable("request failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, errors.ErrLedgerUnavailable(fmt.Sprintf("status %d", resp.StatusCode)).
			WithMetadata("status_code", resp.StatusCode).
			WithMetadata("body", strings.TrimSpace(string(msg)))
	}

	var out detectBreachResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.ErrLedgerUnavailable("malformed response").WithCause(err)
	}
	if !out.Success {
		reason := out.Error
		if reason == "" {
			reason = "rejected"
		}
		return nil, errors.ErrLedgerUnavailable(reason)
	}

	n.logger.Info(ctx, "Breach recorded on ledger",
		logger.String("breach_id", notification.BreachID),
		logger.String("tx_hash", out.TransactionHash),
		logger.Int64("block_number", out.BlockNumber),
	)
	return &service.LedgerReceipt{BreachID: notification.BreachID, TxHash: out.TransactionHash}, nil
}

// leveledLogger adapts logger.Logger to retryablehttp.LeveledLogger.
type leveledLogger struct {
	log logger.Logger
}

func toFields(keysAndValues []interface{}) []logger.Field {
	fields := make([]logger.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields = append(fields, logger.Any(fmt.Sprint(keysAndValues[i]), keysAndValues[i+1]))
	}
	return fields
}

func (l leveledLogger) Error(msg string, kv ...interface{}) {
	l.log.Warn(context.Background(), msg, toFields(kv)...)
}

func (l leveledLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug(context.Background(), msg, toFields(kv)...)
}

func (l leveledLogger) Debug(msg string, kv ...interface{}) {
	l.log.Debug(context.Background(), msg, toFields(kv)...)
}

func (l leveledLogger) Warn(msg string, kv ...interface{}) {
	l.log.Warn(context.Background(), msg, toFields(kv)...)
}

// NoopNotifier stands in for the ledger when it is disabled. It records
// nothing and returns no receipt.
type NoopNotifier struct {
	log logger.Logger
}

func (n NoopNotifier) NotifyBreach(ctx context.Context, notification service.BreachNotification) (*service.LedgerReceipt, error) {
	if n.log != nil {
		n.log.Debug(ctx, "ledger disabled, breach not recorded",
			logger.String("loan_id", notification.LoanID),
			logger.String("breach_id", notification.BreachID),
		)
	}
	return nil, nil
}

// New returns the HTTP notifier, or a NoopNotifier when the ledger is disabled.
func New(cfg config.LedgerConfig, log logger.Logger) service.BreachNotifier {
	if !cfg.Enabled {
		return NoopNotifier{log: log.WithComponent("LedgerNotifier")}
	}
	return NewHTTPNotifier(cfg, log)
}
