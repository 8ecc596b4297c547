package dto

import (
	"github.com/turtacn/covenantwatch/internal/domain/models"
)

// PaginationResponse 分页响应元数据
type PaginationResponse struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Count  int `json:"count"`
}

// LoanListResponse 贷款列表响应
type LoanListResponse struct {
	Loans      []*models.Loan     `json:"loans"`
	Pagination PaginationResponse `json:"pagination"`
}

// CovenantCheckListResponse 契约检查历史响应
type CovenantCheckListResponse struct {
	LoanID string                 `json:"loan_id"`
	Checks []models.CovenantCheck `json:"checks"`
}

// PredictionHistoryResponse 预测历史响应
type PredictionHistoryResponse struct {
	LoanID    string                       `json:"loan_id"`
	Snapshots []*models.PredictionSnapshot `json:"snapshots"`
}

// AuditTrailResponse 审计记录响应
type AuditTrailResponse struct {
	LoanID string               `json:"loan_id"`
	Events []*models.AuditEvent `json:"events"`
}

// AuditEventTypeResponse 审计事件类型
type AuditEventTypeResponse struct {
	Value string `json:"value"`
	Name  string `json:"name"`
}

// ExplainabilityResponse is the single-horizon explanation view.
type ExplainabilityResponse struct {
	LoanID        string             `json:"loan_id"`
	HorizonDays   int                `json:"horizon_days"`
	Probability   float64            `json:"probability"`
	Explanation   models.Explanation `json:"explanation"`
	FeatureVector map[string]float64 `json:"feature_vector"`
	ModelVersion  string             `json:"model_version"`
}

// ModelInfoResponse describes the active model parameters.
type ModelInfoResponse struct {
	Version      string    `json:"version"`
	FeatureOrder []string  `json:"feature_order"`
	Weights      []float64 `json:"weights"`
	Bias         float64   `json:"bias"`
	NoiseStdDev  float64   `json:"noise_std_dev"`
	NoiseMode    string    `json:"noise_mode"`
}
