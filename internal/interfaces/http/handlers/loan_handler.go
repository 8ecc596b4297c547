package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/covenantwatch/internal/application/dto"
	"github.com/turtacn/covenantwatch/internal/application/service"
	"github.com/turtacn/covenantwatch/internal/domain/repository"
	"github.com/turtacn/covenantwatch/pkg/constants"
	"github.com/turtacn/covenantwatch/pkg/errors"
	"github.com/turtacn/covenantwatch/pkg/logger"
	"github.com/turtacn/covenantwatch/pkg/utils"
)

const (
	defaultPageSize   = 50
	defaultAuditLimit = 100
)

// LoanHandler 贷款数字孪生 HTTP 处理器
type LoanHandler struct {
	loans service.LoanAppService
	log   logger.Logger
}

// NewLoanHandler 创建贷款处理器
func NewLoanHandler(loans service.LoanAppService, log logger.Logger) *LoanHandler {
	return &LoanHandler{loans: loans, log: log.WithComponent("LoanHandler")}
}

// CreateLoan 注册贷款
// POST /api/v1/loans
func (h *LoanHandler) CreateLoan(c *gin.Context) {
	var req dto.CreateLoanRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.log, err, "create_loan")
		return
	}

	loan, err := h.loans.CreateLoan(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.log, err, "create_loan")
		return
	}

	h.log.Info(c.Request.Context(), "Loan registered",
		logger.String("loan_id", loan.ID),
		logger.Int("covenants", len(loan.Covenants)),
		logger.Int("esg_clauses", len(loan.ESGClauses)),
	)
	c.JSON(http.StatusCreated, loan)
}

// ListLoans 分页列出贷款
// GET /api/v1/loans?limit=50&offset=0
func (h *LoanHandler) ListLoans(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultPageSize)
	if err != nil {
		respondError(c, h.log, err, "list_loans")
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		respondError(c, h.log, err, "list_loans")
		return
	}

	loans, err := h.loans.ListLoans(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, h.log, err, "list_loans")
		return
	}
	c.JSON(http.StatusOK, dto.LoanListResponse{
		Loans:      loans,
		Pagination: dto.PaginationResponse{Limit: limit, Offset: offset, Count: len(loans)},
	})
}

// GetLoan 获取贷款
// GET /api/v1/loans/:loan_id
func (h *LoanHandler) GetLoan(c *gin.Context) {
	loan, err := h.loans.GetLoan(c.Request.Context(), c.Param("loan_id"))
	if err != nil {
		respondError(c, h.log, err, "get_loan")
		return
	}
	c.JSON(http.StatusOK, loan)
}

// UpdateStatus 更新贷款状态
// PATCH /api/v1/loans/:loan_id/status
func (h *LoanHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateLoanStatusRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.log, err, "update_loan_status")
		return
	}
	loan, err := h.loans.UpdateStatus(c.Request.Context(), c.Param("loan_id"), &req)
	if err != nil {
		respondError(c, h.log, err, "update_loan_status")
		return
	}
	c.JSON(http.StatusOK, loan)
}

// GetTwinState 获取数字孪生状态
// GET /api/v1/loans/:loan_id/state
func (h *LoanHandler) GetTwinState(c *gin.Context) {
	state, err := h.loans.GetTwinState(c.Request.Context(), c.Param("loan_id"))
	if err != nil {
		respondError(c, h.log, err, "get_twin_state")
		return
	}
	c.JSON(http.StatusOK, state)
}

// RecordCovenantCheck 记录契约检查
// POST /api/v1/loans/:loan_id/covenant-checks
func (h *LoanHandler) RecordCovenantCheck(c *gin.Context) {
	var req dto.RecordCovenantCheckRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.log, err, "record_covenant_check")
		return
	}
	check, err := h.loans.RecordCovenantCheck(c.Request.Context(), c.Param("loan_id"), &req)
	if err != nil {
		respondError(c, h.log, err, "record_covenant_check")
		return
	}
	c.JSON(http.StatusCreated, check)
}

// ListCovenantChecks 列出契约检查历史
// GET /api/v1/loans/:loan_id/covenant-checks
func (h *LoanHandler) ListCovenantChecks(c *gin.Context) {
	loanID := c.Param("loan_id")
	checks, err := h.loans.ListCovenantChecks(c.Request.Context(), loanID)
	if err != nil {
		respondError(c, h.log, err, "list_covenant_checks")
		return
	}
	c.JSON(http.StatusOK, dto.CovenantCheckListResponse{LoanID: loanID, Checks: checks})
}

// RecordESGCompliance 记录 ESG 审查结果
// POST /api/v1/loans/:loan_id/esg-compliance
func (h *LoanHandler) RecordESGCompliance(c *gin.Context) {
	var req dto.RecordESGComplianceRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.log, err, "record_esg_compliance")
		return
	}
	record, err := h.loans.RecordESGCompliance(c.Request.Context(), c.Param("loan_id"), &req)
	if err != nil {
		respondError(c, h.log, err, "record_esg_compliance")
		return
	}
	c.JSON(http.StatusCreated, record)
}

// AuditTrail 获取审计记录
// GET /api/v1/loans/:loan_id/audit?limit=100&event_type=&start_date=&end_date=
func (h *LoanHandler) AuditTrail(c *gin.Context) {
	loanID := c.Param("loan_id")
	filter, err := auditFilterFromQuery(c)
	if err != nil {
		respondError(c, h.log, err, "audit_trail")
		return
	}
	events, err := h.loans.AuditTrail(c.Request.Context(), loanID, filter)
	if err != nil {
		respondError(c, h.log, err, "audit_trail")
		return
	}
	c.JSON(http.StatusOK, dto.AuditTrailResponse{LoanID: loanID, Events: events})
}

func auditFilterFromQuery(c *gin.Context) (repository.AuditFilter, error) {
	var filter repository.AuditFilter
	limit, err := queryInt(c, "limit", defaultAuditLimit)
	if err != nil {
		return filter, err
	}
	filter.Limit = limit

	if raw := c.Query("event_type"); raw != "" {
		eventType := constants.AuditEventType(raw)
		if !eventType.IsValid() {
			return filter, errors.ErrInvalidRequest("invalid event_type: "+raw).WithMetadata("event_type", raw)
		}
		filter.EventType = eventType
	}
	if filter.Start, err = utils.ParseISOTime("start_date", c.Query("start_date")); err != nil {
		return filter, err
	}
	if filter.End, err = utils.ParseISOTime("end_date", c.Query("end_date")); err != nil {
		return filter, err
	}
	return filter, nil
}
