package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/covenantwatch/internal/application"
	"github.com/turtacn/covenantwatch/internal/application/dto"
	"github.com/turtacn/covenantwatch/pkg/constants"
	"github.com/turtacn/covenantwatch/pkg/logger"
	"github.com/turtacn/covenantwatch/pkg/utils"
)

// PredictionHandler serves breach-risk predictions for stored loans.
// PredictionHandler 提供已存储贷款的违约风险预测。
type PredictionHandler struct {
	oracle         application.RiskOracle
	maxHorizonDays int
	log            logger.Logger
}

// NewPredictionHandler creates a PredictionHandler. A non-positive
// maxHorizonDays falls back to constants.MaxHorizonDays.
func NewPredictionHandler(oracle application.RiskOracle, maxHorizonDays int, log logger.Logger) *PredictionHandler {
	if maxHorizonDays <= 0 {
		maxHorizonDays = constants.MaxHorizonDays
	}
	return &PredictionHandler{
		oracle:         oracle,
		maxHorizonDays: maxHorizonDays,
		log:            log.WithComponent("PredictionHandler"),
	}
}

// AssessLoan returns the multi-horizon assessment.
// GET /api/v1/predictions/:loan_id?horizons=30,60,90
func (h *PredictionHandler) AssessLoan(c *gin.Context) {
	horizons, err := utils.ParseHorizons(c.Query("horizons"), h.maxHorizonDays)
	if err != nil {
		respondError(c, h.log, err, "assess_loan")
		return
	}

	assessment, err := h.oracle.AssessLoan(c.Request.Context(), c.Param("loan_id"), horizons)
	if err != nil {
		respondError(c, h.log, err, "assess_loan")
		return
	}
	c.JSON(http.StatusOK, assessment)
}

// AssessCovenant returns the prediction for one covenant.
// GET /api/v1/predictions/:loan_id/covenant/:covenant_id?horizon_days=30
func (h *PredictionHandler) AssessCovenant(c *gin.Context) {
	horizon, err := utils.ParseHorizon(c.Query("horizon_days"), constants.DefaultCovenantHorizonDays, h.maxHorizonDays)
	if err != nil {
		respondError(c, h.log, err, "assess_covenant")
		return
	}

	pred, err := h.oracle.AssessCovenant(c.Request.Context(), c.Param("loan_id"), c.Param("covenant_id"), horizon)
	if err != nil {
		respondError(c, h.log, err, "assess_covenant")
		return
	}
	c.JSON(http.StatusOK, pred)
}

// Explain returns one horizon's explanation with the features behind it.
// GET /api/v1/predictions/:loan_id/explainability?horizon_days=30
func (h *PredictionHandler) Explain(c *gin.Context) {
	horizon, err := utils.ParseHorizon(c.Query("horizon_days"), constants.DefaultCovenantHorizonDays, h.maxHorizonDays)
	if err != nil {
		respondError(c, h.log, err, "explain")
		return
	}

	resp, err := h.oracle.Explain(c.Request.Context(), c.Param("loan_id"), horizon)
	if err != nil {
		respondError(c, h.log, err, "explain")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// History lists stored assessments, newest first.
// GET /api/v1/predictions/:loan_id/history?limit=20
func (h *PredictionHandler) History(c *gin.Context) {
	loanID := c.Param("loan_id")
	limit, err := queryInt(c, "limit", constants.PredictionHistoryDefaultLimit)
	if err != nil {
		respondError(c, h.log, err, "prediction_history")
		return
	}

	snapshots, err := h.oracle.History(c.Request.Context(), loanID, limit)
	if err != nil {
		respondError(c, h.log, err, "prediction_history")
		return
	}
	c.JSON(http.StatusOK, dto.PredictionHistoryResponse{LoanID: loanID, Snapshots: snapshots})
}
