package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/covenantwatch/internal/application/dto"
	"github.com/turtacn/covenantwatch/internal/application/service"
	"github.com/turtacn/covenantwatch/pkg/constants"
	"github.com/turtacn/covenantwatch/pkg/logger"
)

// AuditHandler 审计汇总 HTTP 处理器
type AuditHandler struct {
	loans service.LoanAppService
	log   logger.Logger
}

// NewAuditHandler 创建审计处理器
func NewAuditHandler(loans service.LoanAppService, log logger.Logger) *AuditHandler {
	return &AuditHandler{loans: loans, log: log.WithComponent("AuditHandler")}
}

// Summary 审计汇总
// GET /api/v1/audit/:loan_id/summary
func (h *AuditHandler) Summary(c *gin.Context) {
	summary, err := h.loans.AuditSummary(c.Request.Context(), c.Param("loan_id"))
	if err != nil {
		respondError(c, h.log, err, "audit_summary")
		return
	}
	c.JSON(http.StatusOK, summary)
}

// EventTypes 列出审计事件类型
// GET /api/v1/audit/events/types
func (h *AuditHandler) EventTypes(c *gin.Context) {
	types := make([]dto.AuditEventTypeResponse, len(constants.AuditEventTypes))
	for i, t := range constants.AuditEventTypes {
		types[i] = dto.AuditEventTypeResponse{Value: string(t), Name: t.Name()}
	}
	c.JSON(http.StatusOK, types)
}
