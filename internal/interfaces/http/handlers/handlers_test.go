package handlers_test

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/covenantwatch/internal/application/dto"
	"github.com/turtacn/covenantwatch/internal/application/mocks"
	"github.com/turtacn/covenantwatch/internal/domain/models"
	"github.com/turtacn/covenantwatch/internal/domain/repository"
	"github.com/turtacn/covenantwatch/internal/interfaces/http/handlers"
	"github.com/turtacn/covenantwatch/pkg/constants"
	"github.com/turtacn/covenantwatch/pkg/errors"
	"github.com/turtacn/covenantwatch/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func do(engine *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errors.ErrorResponse {
	t.Helper()
	var body errors.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func loanEngine(svc *mocks.MockLoanAppService) *gin.Engine {
	h := handlers.NewLoanHandler(svc, logger.NewNoopLogger())
	r := gin.New()
	r.POST("/loans", h.CreateLoan)
	r.GET("/loans", h.ListLoans)
	r.GET("/loans/:loan_id", h.GetLoan)
	r.PATCH("/loans/:loan_id/status", h.UpdateStatus)
	r.GET("/loans/:loan_id/state", h.GetTwinState)
	r.POST("/loans/:loan_id/covenant-checks", h.RecordCovenantCheck)
	r.GET("/loans/:loan_id/covenant-checks", h.ListCovenantChecks)
	r.POST("/loans/:loan_id/esg-compliance", h.RecordESGCompliance)
	r.GET("/loans/:loan_id/audit", h.AuditTrail)
	return r
}

const createLoanBody = `{
	"borrower_name": "Acme Manufacturing",
	"loan_amount": "5000000",
	"interest_rate": 6.5,
	"start_date": "2024-01-01T00:00:00Z",
	"maturity_date": "2029-01-01T00:00:00Z",
	"covenants": [{"name": "Leverage", "type": "financial", "threshold": 3.5, "operator": "<="}],
	"esg_clauses": [{"category": "environmental", "requirement": "Scope 1 emissions report"}]
}`

func TestLoanHandler_CreateLoan(t *testing.T) {
	svc := new(mocks.MockLoanAppService)
	svc.On("CreateLoan", mock.Anything, mock.MatchedBy(func(req *dto.CreateLoanRequest) bool {
		return req.BorrowerName == "Acme Manufacturing" &&
			req.LoanAmount.String() == "5000000" &&
			len(req.Covenants) == 1 && req.Covenants[0].Operator == "<="
	})).Return(&models.Loan{ID: "loan-1", BorrowerName: "Acme Manufacturing"}, nil).Once()

	w := do(loanEngine(svc), http.MethodPost, "/loans", createLoanBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var loan models.Loan
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &loan))
	assert.Equal(t, "loan-1", loan.ID)
	svc.AssertExpectations(t)
}

func TestLoanHandler_CreateLoan_Rejected(t *testing.T) {
	cases := map[string]string{
		"malformed":          `{"borrower_name":`,
		"missing borrower":   `{"start_date":"2024-01-01T00:00:00Z","maturity_date":"2029-01-01T00:00:00Z"}`,
		"maturity too early": `{"borrower_name":"A","start_date":"2024-01-01T00:00:00Z","maturity_date":"2023-01-01T00:00:00Z"}`,
		"bad operator": `{"borrower_name":"A","start_date":"2024-01-01T00:00:00Z","maturity_date":"2029-01-01T00:00:00Z",
			"covenants":[{"name":"L","type":"financial","operator":"~"}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			svc := new(mocks.MockLoanAppService)
			w := do(loanEngine(svc), http.MethodPost, "/loans", body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, string(errors.ErrCodeInvalidRequest), decodeError(t, w).Error)
			svc.AssertNotCalled(t, "CreateLoan", mock.Anything, mock.Anything)
		})
	}
}

func TestLoanHandler_GetLoan_NotFound(t *testing.T) {
	svc := new(mocks.MockLoanAppService)
	svc.On("GetLoan", mock.Anything, "ghost").Return(nil, errors.ErrLoanNotFound("ghost"))

	w := do(loanEngine(svc), http.MethodGet, "/loans/ghost", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "not_found", body.Error)
	assert.Equal(t, "ghost", body.Metadata["loan_id"])
}

func TestLoanHandler_ListLoans(t *testing.T) {
	svc := new(mocks.MockLoanAppService)
	svc.On("ListLoans", mock.Anything, 50, 0).Return([]*models.Loan{{ID: "a"}, {ID: "b"}}, nil).Once()
	svc.On("ListLoans", mock.Anything, 10, 20).Return([]*models.Loan{}, nil).Once()
	engine := loanEngine(svc)

	w := do(engine, http.MethodGet, "/loans", "")
	require.Equal(t, http.StatusOK, w.Code)
	var page dto.LoanListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, dto.PaginationResponse{Limit: 50, Offset: 0, Count: 2}, page.Pagination)

	w = do(engine, http.MethodGet, "/loans?limit=10&offset=20", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(engine, http.MethodGet, "/loans?limit=-3", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertExpectations(t)
}

func TestLoanHandler_UpdateStatus(t *testing.T) {
	svc := new(mocks.MockLoanAppService)
	svc.On("UpdateStatus", mock.Anything, "loan-1", &dto.UpdateLoanStatusRequest{Status: "closed"}).
		Return(&models.Loan{ID: "loan-1", Status: constants.LoanStatusClosed}, nil)
	engine := loanEngine(svc)

	w := do(engine, http.MethodPatch, "/loans/loan-1/status", `{"status":"closed"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(engine, http.MethodPatch, "/loans/loan-1/status", `{"status":"paused"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNumberOfCalls(t, "UpdateStatus", 1)
}

func TestLoanHandler_CovenantChecks(t *testing.T) {
	svc := new(mocks.MockLoanAppService)
	actual := 4.1
	svc.On("RecordCovenantCheck", mock.Anything, "loan-1", mock.MatchedBy(func(req *dto.RecordCovenantCheckRequest) bool {
		return req.CovenantID == "lev" && req.ActualValue != nil && *req.ActualValue == actual
	})).Return(&models.CovenantCheck{ID: "chk-1", CovenantID: "lev", IsBreached: true, Status: constants.CovenantStatusBreached}, nil)
	svc.On("ListCovenantChecks", mock.Anything, "loan-1").Return([]models.CovenantCheck{{ID: "chk-1"}}, nil)
	engine := loanEngine(svc)

	w := do(engine, http.MethodPost, "/loans/loan-1/covenant-checks", `{"covenant_id":"lev","actual_value":4.1}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(engine, http.MethodPost, "/loans/loan-1/covenant-checks", `{"covenant_id":"lev"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "actual_value is required")

	w = do(engine, http.MethodGet, "/loans/loan-1/covenant-checks", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list dto.CovenantCheckListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, "loan-1", list.LoanID)
	assert.Len(t, list.Checks, 1)
}

func TestLoanHandler_ESGComplianceAndState(t *testing.T) {
	svc := new(mocks.MockLoanAppService)
	svc.On("RecordESGCompliance", mock.Anything, "loan-1", mock.Anything).
		Return(&models.ESGComplianceRecord{ID: "esg-1", Status: constants.ESGStatusCompliant}, nil)
	svc.On("GetTwinState", mock.Anything, "loan-1").Return(&models.TwinState{HealthScore: 85}, nil)
	engine := loanEngine(svc)

	w := do(engine, http.MethodPost, "/loans/loan-1/esg-compliance", `{"clause_id":"env-1","status":"compliant"}`)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(engine, http.MethodPost, "/loans/loan-1/esg-compliance", `{"clause_id":"env-1","status":"great"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(engine, http.MethodGet, "/loans/loan-1/state", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"health_score":85`)
}

func TestLoanHandler_AuditTrail(t *testing.T) {
	svc := new(mocks.MockLoanAppService)
	event := models.NewAuditEvent("loan-1", constants.AuditEventLoanCreated, "created")
	svc.On("AuditTrail", mock.Anything, "loan-1", repository.AuditFilter{Limit: 100}).Return([]*models.AuditEvent{event}, nil).Once()
	svc.On("AuditTrail", mock.Anything, "loan-1", repository.AuditFilter{Limit: 5}).Return(nil, errors.ErrDatabaseOperation("list audit", stderrors.New("db gone"))).Once()
	engine := loanEngine(svc)

	w := do(engine, http.MethodGet, "/loans/loan-1/audit", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), event.EventID.String())
	assert.Contains(t, w.Body.String(), `"hash":"`+event.Hash+`"`)

	w = do(engine, http.MethodGet, "/loans/loan-1/audit?limit=5", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "server_error", decodeError(t, w).Error)
}

func TestLoanHandler_AuditTrailFilters(t *testing.T) {
	svc := new(mocks.MockLoanAppService)
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, time.January, 31, 12, 0, 0, 0, time.UTC)
	svc.On("AuditTrail", mock.Anything, "loan-1", mock.MatchedBy(func(f repository.AuditFilter) bool {
		return f.EventType == constants.AuditEventCovenantBreached &&
			f.Start != nil && f.Start.Equal(start) &&
			f.End != nil && f.End.Equal(end) &&
			f.Limit == 100
	})).Return([]*models.AuditEvent{}, nil).Once()
	engine := loanEngine(svc)

	w := do(engine, http.MethodGet,
		"/loans/loan-1/audit?event_type=covenant_breached&start_date=2025-01-01&end_date=2025-01-31T12:00:00Z", "")
	require.Equal(t, http.StatusOK, w.Code)

	for _, query := range []string{
		"event_type=bogus",
		"start_date=01/02/2025",
		"end_date=tomorrow",
	} {
		w = do(engine, http.MethodGet, "/loans/loan-1/audit?"+query, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, query)
		assert.Equal(t, "invalid_request", decodeError(t, w).Error, query)
	}
	svc.AssertNumberOfCalls(t, "AuditTrail", 1)
}

func auditEngine(svc *mocks.MockLoanAppService) *gin.Engine {
	h := handlers.NewAuditHandler(svc, logger.NewNoopLogger())
	r := gin.New()
	r.GET("/audit/events/types", h.EventTypes)
	r.GET("/audit/:loan_id/summary", h.Summary)
	return r
}

func TestAuditHandler_Summary(t *testing.T) {
	svc := new(mocks.MockLoanAppService)
	older := models.NewAuditEvent("loan-1", constants.AuditEventLoanCreated, "created")
	newer := models.NewAuditEvent("loan-1", constants.AuditEventCovenantBreached, "breached")
	svc.On("AuditSummary", mock.Anything, "loan-1").
		Return(models.SummarizeAudit("loan-1", []*models.AuditEvent{newer, older}), nil)
	svc.On("AuditSummary", mock.Anything, "ghost").Return(nil, errors.ErrLoanNotFound("ghost"))
	engine := auditEngine(svc)

	w := do(engine, http.MethodGet, "/audit/loan-1/summary", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		TotalEvents int            `json:"total_events"`
		EventCounts map[string]int `json:"event_counts"`
		FirstEvent  struct {
			EventID string `json:"event_id"`
		} `json:"first_event"`
		LastEvent struct {
			EventID string `json:"event_id"`
		} `json:"last_event"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.TotalEvents)
	assert.Equal(t, map[string]int{"loan_created": 1, "covenant_breached": 1}, body.EventCounts)
	assert.Equal(t, older.EventID.String(), body.FirstEvent.EventID)
	assert.Equal(t, newer.EventID.String(), body.LastEvent.EventID)

	w = do(engine, http.MethodGet, "/audit/ghost/summary", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuditHandler_EventTypes(t *testing.T) {
	w := do(auditEngine(new(mocks.MockLoanAppService)), http.MethodGet, "/audit/events/types", "")
	require.Equal(t, http.StatusOK, w.Code)

	var types []dto.AuditEventTypeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &types))
	require.Len(t, types, len(constants.AuditEventTypes))
	assert.Equal(t, dto.AuditEventTypeResponse{Value: "loan_created", Name: "LOAN_CREATED"}, types[0])
	assert.Contains(t, types, dto.AuditEventTypeResponse{Value: "esg_score_calculated", Name: "ESG_SCORE_CALCULATED"})
}

func esgEngine(svc *mocks.MockESGAppService) *gin.Engine {
	h := handlers.NewESGHandler(svc, 3650, logger.NewNoopLogger())
	r := gin.New()
	r.GET("/esg/:loan_id/score", h.Score)
	r.GET("/esg/:loan_id/compliance", h.ComplianceSummary)
	r.GET("/esg/:loan_id/breach-risk", h.BreachRisk)
	return r
}

func TestESGHandler_Score(t *testing.T) {
	svc := new(mocks.MockESGAppService)
	svc.On("Score", mock.Anything, "loan-1").Return(&models.ESGScore{LoanID: "loan-1", OverallScore: 87.5}, nil)
	svc.On("Score", mock.Anything, "ghost").Return(nil, errors.ErrLoanNotFound("ghost"))
	engine := esgEngine(svc)

	w := do(engine, http.MethodGet, "/esg/loan-1/score", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"overall_score":87.5`)

	w = do(engine, http.MethodGet, "/esg/ghost/score", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestESGHandler_ComplianceSummary(t *testing.T) {
	svc := new(mocks.MockESGAppService)
	svc.On("ComplianceSummary", mock.Anything, "loan-1").Return(&models.ESGComplianceSummary{
		LoanID:       "loan-1",
		TotalClauses: 2,
		ComplianceByCategory: map[constants.ESGCategory]models.ESGCategoryCounts{
			constants.ESGCategoryGovernance: {AtRisk: 1},
		},
	}, nil)
	svc.On("ComplianceSummary", mock.Anything, "ghost").Return(nil, errors.ErrLoanNotFound("ghost"))
	engine := esgEngine(svc)

	w := do(engine, http.MethodGet, "/esg/loan-1/compliance", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"governance":{"compliant":0,"at_risk":1,"non_compliant":0}`)

	w = do(engine, http.MethodGet, "/esg/ghost/compliance", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestESGHandler_BreachRisk(t *testing.T) {
	svc := new(mocks.MockESGAppService)
	svc.On("BreachRisk", mock.Anything, "loan-1", 90).
		Return(&models.ESGBreachRisk{LoanID: "loan-1", HorizonDays: 90, BreachProbability: 0.11, RiskLevel: constants.RiskLevelLow}, nil).Once()
	svc.On("BreachRisk", mock.Anything, "loan-1", 365).
		Return(&models.ESGBreachRisk{LoanID: "loan-1", HorizonDays: 365, BreachProbability: 0.12, RiskLevel: constants.RiskLevelLow}, nil).Once()
	svc.On("BreachRisk", mock.Anything, "ghost", 90).Return(nil, errors.ErrLoanNotFound("ghost"))
	engine := esgEngine(svc)

	w := do(engine, http.MethodGet, "/esg/loan-1/breach-risk", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"breach_probability":0.11`)

	w = do(engine, http.MethodGet, "/esg/loan-1/breach-risk?horizon_days=365", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"horizon_days":365`)

	w = do(engine, http.MethodGet, "/esg/loan-1/breach-risk?horizon_days=0", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(engine, http.MethodGet, "/esg/ghost/breach-risk", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	svc.AssertExpectations(t)
}

func predictionEngine(oracle *mocks.MockRiskOracle) *gin.Engine {
	h := handlers.NewPredictionHandler(oracle, 3650, logger.NewNoopLogger())
	r := gin.New()
	r.GET("/predictions/:loan_id", h.AssessLoan)
	r.GET("/predictions/:loan_id/covenant/:covenant_id", h.AssessCovenant)
	r.GET("/predictions/:loan_id/explainability", h.Explain)
	r.GET("/predictions/:loan_id/history", h.History)
	return r
}

func TestPredictionHandler_AssessLoan(t *testing.T) {
	oracle := new(mocks.MockRiskOracle)
	assessment := &models.RiskAssessment{
		LoanID: "loan-1",
		Predictions: models.HorizonPredictions{
			{HorizonDays: 90, Probability: 0.62, RiskLevel: constants.RiskLevelHigh},
			{HorizonDays: 30, Probability: 0.41, RiskLevel: constants.RiskLevelMedium},
		},
		OverallRisk: models.OverallRisk{Level: constants.RiskLevelHigh, MaxProbability: 0.62, Trend: models.TrendStable},
		GeneratedAt: time.Date(2025, time.January, 15, 12, 0, 0, 0, time.UTC),
	}
	oracle.On("AssessLoan", mock.Anything, "loan-1", []int{90, 30}).Return(assessment, nil).Once()
	oracle.On("AssessLoan", mock.Anything, "loan-1", []int(nil)).Return(assessment, nil).Once()
	engine := predictionEngine(oracle)

	w := do(engine, http.MethodGet, "/predictions/loan-1?horizons=90,30,90", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.JSONEq(t, `"loan-1"`, string(body["loan_id"]))
	var preds map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(body["predictions"], &preds))
	assert.Contains(t, preds, "90_days")
	assert.Contains(t, preds, "30_days")
	assert.Contains(t, string(body["overall_risk"]), `"high"`)

	w = do(engine, http.MethodGet, "/predictions/loan-1", "")
	assert.Equal(t, http.StatusOK, w.Code, "empty horizons defer to the configured defaults")
	oracle.AssertExpectations(t)
}

func TestPredictionHandler_InvalidHorizons(t *testing.T) {
	oracle := new(mocks.MockRiskOracle)
	engine := predictionEngine(oracle)

	for _, q := range []string{"abc", "30,-5", "0", "30,,60", "4000"} {
		w := do(engine, http.MethodGet, "/predictions/loan-1?horizons="+q, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
		assert.Equal(t, q, decodeError(t, w).Metadata["horizons"])
	}
	w := do(engine, http.MethodGet, "/predictions/loan-1/explainability?horizon_days=x", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	oracle.AssertNotCalled(t, "AssessLoan", mock.Anything, mock.Anything, mock.Anything)
	oracle.AssertNotCalled(t, "Explain", mock.Anything, mock.Anything, mock.Anything)
}

func TestPredictionHandler_Covenant(t *testing.T) {
	oracle := new(mocks.MockRiskOracle)
	oracle.On("AssessCovenant", mock.Anything, "loan-1", "lev", constants.DefaultCovenantHorizonDays).
		Return(&models.CovenantRiskPrediction{CovenantID: "lev", HorizonDays: 30}, nil).Once()
	oracle.On("AssessCovenant", mock.Anything, "loan-1", "missing", 60).
		Return(nil, errors.ErrCovenantNotFound("loan-1", "missing")).Once()
	engine := predictionEngine(oracle)

	w := do(engine, http.MethodGet, "/predictions/loan-1/covenant/lev", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(engine, http.MethodGet, "/predictions/loan-1/covenant/missing?horizon_days=60", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	oracle.AssertExpectations(t)
}

func TestPredictionHandler_ExplainAndHistory(t *testing.T) {
	oracle := new(mocks.MockRiskOracle)
	oracle.On("Explain", mock.Anything, "loan-1", 45).Return(&dto.ExplainabilityResponse{
		LoanID: "loan-1", HorizonDays: 45, ModelVersion: "v1-seed42",
	}, nil)
	oracle.On("History", mock.Anything, "loan-1", constants.PredictionHistoryDefaultLimit).
		Return([]*models.PredictionSnapshot{{ID: "s1"}}, nil)
	engine := predictionEngine(oracle)

	w := do(engine, http.MethodGet, "/predictions/loan-1/explainability?horizon_days=45", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"model_version":"v1-seed42"`)

	w = do(engine, http.MethodGet, "/predictions/loan-1/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	var hist dto.PredictionHistoryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hist))
	assert.Equal(t, "loan-1", hist.LoanID)
	assert.Len(t, hist.Snapshots, 1)
}

type fakeRegistry struct {
	params *models.ModelParameters
}

func (r *fakeRegistry) Parameters() *models.ModelParameters { return r.params }

func (r *fakeRegistry) SetParameters(p *models.ModelParameters) error {
	if err := p.Validate(); err != nil {
		return errors.ErrInvalidModel(err.Error())
	}
	r.params = p
	return nil
}

type fakeReloader struct {
	ok    bool
	calls int
}

func (r *fakeReloader) Reload(context.Context) bool {
	r.calls++
	return r.ok
}

func modelEngine(reg *fakeRegistry, reloader handlers.ModelReloader) *gin.Engine {
	h := handlers.NewModelHandler(reg, reloader, constants.NoiseModeSeeded, nil, logger.NewNoopLogger())
	r := gin.New()
	r.GET("/model", h.GetModel)
	r.PUT("/_internal/model", h.PublishParameters)
	r.POST("/_internal/model/reload", h.ReloadParameters)
	return r
}

func TestModelHandler_GetModel(t *testing.T) {
	reg := &fakeRegistry{params: models.DefaultModelParameters()}
	w := do(modelEngine(reg, nil), http.MethodGet, "/model", "")
	require.Equal(t, http.StatusOK, w.Code)

	var info dto.ModelInfoResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, models.DefaultModelVersion, info.Version)
	assert.Equal(t, "seeded", info.NoiseMode)
	assert.Len(t, info.Weights, models.FeatureCount)
	assert.Equal(t, models.FeatureNames[0], info.FeatureOrder[0])
}

func TestModelHandler_PublishParameters(t *testing.T) {
	reg := &fakeRegistry{params: models.DefaultModelParameters()}
	engine := modelEngine(reg, nil)

	next := models.DefaultModelParameters()
	next.Version = "v2-retrained"
	next.Bias = -0.1
	payload, err := json.Marshal(next)
	require.NoError(t, err)

	w := do(engine, http.MethodPut, "/_internal/model", string(payload))
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	assert.Equal(t, "v2-retrained", reg.params.Version)

	w = do(engine, http.MethodPut, "/_internal/model", `{"version":"v3","weights":[1,2]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "v2-retrained", reg.params.Version, "rejected sets leave the active model alone")
}

func TestModelHandler_Reload(t *testing.T) {
	reg := &fakeRegistry{params: models.DefaultModelParameters()}

	w := do(modelEngine(reg, nil), http.MethodPost, "/_internal/model/reload", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	ok := &fakeReloader{ok: true}
	w = do(modelEngine(reg, ok), http.MethodPost, "/_internal/model/reload", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), models.DefaultModelVersion)

	bad := &fakeReloader{ok: false}
	w = do(modelEngine(reg, bad), http.MethodPost, "/_internal/model/reload", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 1, bad.calls)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthHandler(t *testing.T) {
	healthy := pingFunc(func(context.Context) error { return nil })
	broken := pingFunc(func(context.Context) error { return stderrors.New("connection refused") })

	build := func(checks map[string]handlers.Pinger) *gin.Engine {
		h := handlers.NewHealthHandler(checks, logger.NewNoopLogger())
		r := gin.New()
		r.GET("/health/live", h.LivenessCheck)
		r.GET("/health/ready", h.ReadinessCheck)
		return r
	}

	engine := build(map[string]handlers.Pinger{"database": healthy, "redis": nil})
	w := do(engine, http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(engine, http.MethodGet, "/health/ready", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, map[string]string{"database": "ok"}, body.Checks)

	w = do(build(map[string]handlers.Pinger{"database": healthy, "redis": broken}), http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}
