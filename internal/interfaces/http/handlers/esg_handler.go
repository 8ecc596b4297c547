package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/covenantwatch/internal/application/service"
	"github.com/turtacn/covenantwatch/pkg/constants"
	"github.com/turtacn/covenantwatch/pkg/logger"
	"github.com/turtacn/covenantwatch/pkg/utils"
)

// ESGHandler ESG 评分与合规 HTTP 处理器
type ESGHandler struct {
	esg            service.ESGAppService
	maxHorizonDays int
	log            logger.Logger
}

// NewESGHandler creates an ESGHandler. A non-positive maxHorizonDays falls
// back to constants.MaxHorizonDays.
func NewESGHandler(esg service.ESGAppService, maxHorizonDays int, log logger.Logger) *ESGHandler {
	if maxHorizonDays <= 0 {
		maxHorizonDays = constants.MaxHorizonDays
	}
	return &ESGHandler{esg: esg, maxHorizonDays: maxHorizonDays, log: log.WithComponent("ESGHandler")}
}

// Score ESG 评分
// GET /api/v1/esg/:loan_id/score
func (h *ESGHandler) Score(c *gin.Context) {
	score, err := h.esg.Score(c.Request.Context(), c.Param("loan_id"))
	if err != nil {
		respondError(c, h.log, err, "esg_score")
		return
	}
	c.JSON(http.StatusOK, score)
}

// ComplianceSummary ESG 合规汇总
// GET /api/v1/esg/:loan_id/compliance
func (h *ESGHandler) ComplianceSummary(c *gin.Context) {
	summary, err := h.esg.ComplianceSummary(c.Request.Context(), c.Param("loan_id"))
	if err != nil {
		respondError(c, h.log, err, "esg_compliance")
		return
	}
	c.JSON(http.StatusOK, summary)
}

// BreachRisk ESG 违约风险预测
// GET /api/v1/esg/:loan_id/breach-risk?horizon_days=90
func (h *ESGHandler) BreachRisk(c *gin.Context) {
	horizon, err := utils.ParseHorizon(c.Query("horizon_days"), constants.DefaultESGHorizonDays, h.maxHorizonDays)
	if err != nil {
		respondError(c, h.log, err, "esg_breach_risk")
		return
	}
	risk, err := h.esg.BreachRisk(c.Request.Context(), c.Param("loan_id"), horizon)
	if err != nil {
		respondError(c, h.log, err, "esg_breach_risk")
		return
	}
	c.JSON(http.StatusOK, risk)
}
