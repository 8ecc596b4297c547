package http_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/turtacn/covenantwatch/internal/application/mocks"
	"github.com/turtacn/covenantwatch/internal/config"
	"github.com/turtacn/covenantwatch/internal/domain/models"
	"github.com/turtacn/covenantwatch/internal/domain/service"
	"github.com/turtacn/covenantwatch/internal/infrastructure/monitoring"
	"github.com/turtacn/covenantwatch/internal/infrastructure/ratelimit"
	cwhttp "github.com/turtacn/covenantwatch/internal/interfaces/http"
	"github.com/turtacn/covenantwatch/internal/interfaces/http/handlers"
	"github.com/turtacn/covenantwatch/pkg/constants"
	"github.com/turtacn/covenantwatch/pkg/errors"
	"github.com/turtacn/covenantwatch/pkg/logger"
)

type registry struct{ params *models.ModelParameters }

func (r *registry) Parameters() *models.ModelParameters           { return r.params }
func (r *registry) SetParameters(p *models.ModelParameters) error { r.params = p; return nil }

type fixture struct {
	loans  *mocks.MockLoanAppService
	esg    *mocks.MockESGAppService
	oracle *mocks.MockRiskOracle
	reg    *prometheus.Registry
	router *cwhttp.Router
}

func newFixture(t *testing.T, opts cwhttp.Options) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixture{
		loans:  new(mocks.MockLoanAppService),
		esg:    new(mocks.MockESGAppService),
		oracle: new(mocks.MockRiskOracle),
		reg:    prometheus.NewRegistry(),
	}
	log := logger.NewNoopLogger()
	cfg := &config.Config{
		Server:      config.ServerConfig{Port: 8080, CORSOrigins: []string{"*"}},
		Monitoring:  config.MonitoringConfig{MetricsEnabled: true, MetricsPath: "/metrics"},
		Idempotency: config.IdempotencyConfig{Enabled: true, TTLSeconds: 60},
	}

	opts.Tracer = otel.Tracer("router-test")
	opts.Metrics = monitoring.NewMetrics(f.reg)
	opts.Gatherer = f.reg

	f.router = cwhttp.NewRouter(cfg, log, cwhttp.Handlers{
		Health:     handlers.NewHealthHandler(nil, log),
		Loan:       handlers.NewLoanHandler(f.loans, log),
		Prediction: handlers.NewPredictionHandler(f.oracle, 0, log),
		Model:      handlers.NewModelHandler(&registry{params: models.DefaultModelParameters()}, nil, constants.NoiseModeOff, nil, log),
		ESG:        handlers.NewESGHandler(f.esg, 0, log),
		Audit:      handlers.NewAuditHandler(f.loans, log),
	}, opts)
	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.Engine().ServeHTTP(w, req)
	return w
}

func TestRouter_RequestIDAndActor(t *testing.T) {
	f := newFixture(t, cwhttp.Options{})
	f.oracle.On("History", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Value(constants.ContextKeyActor) == "analyst@bank" &&
			ctx.Value(constants.ContextKeyRequestID) == "req-42"
	}), "loan-1", constants.PredictionHistoryDefaultLimit).Return([]*models.PredictionSnapshot{}, nil).Once()
	f.oracle.On("History", mock.Anything, "loan-2", constants.PredictionHistoryDefaultLimit).
		Return([]*models.PredictionSnapshot{}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/predictions/loan-1/history", nil)
	req.Header.Set(constants.HeaderRequestID, "req-42")
	req.Header.Set(constants.HeaderActor, "analyst@bank")
	w := f.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-42", w.Header().Get(constants.HeaderRequestID))

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/predictions/loan-2/history", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, w.Header().Get(constants.HeaderRequestID), 36, "generated ids are UUIDs")
	f.oracle.AssertExpectations(t)
}

func TestRouter_NotFoundAndMetrics(t *testing.T) {
	f := newFixture(t, cwhttp.Options{})

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/v2/unknown", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"not_found"`)

	w = f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `covenantwatch_http_requests_total{method="GET",path="not_found",status="404"} 1`)
}

func TestRouter_ModelETag(t *testing.T) {
	f := newFixture(t, cwhttp.Options{})

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/model", nil))
	require.Equal(t, http.StatusOK, w.Code)
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)
	assert.Contains(t, w.Body.String(), models.DefaultModelVersion)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/model", nil)
	req.Header.Set("If-None-Match", etag)
	w = f.do(req)
	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestRouter_RecoversFromPanics(t *testing.T) {
	f := newFixture(t, cwhttp.Options{})
	f.oracle.On("Explain", mock.Anything, "loan-1", 30).Run(func(mock.Arguments) { panic("boom") })

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/predictions/loan-1/explainability", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "server_error")
}

func TestRouter_RateLimitsPredictions(t *testing.T) {
	limiter := ratelimit.NewLocalRateLimiter(ratelimit.FromRequestsPerMinute(1, 1), nil)
	f := newFixture(t, cwhttp.Options{RateLimiter: limiter})
	f.oracle.On("AssessLoan", mock.Anything, "loan-1", []int(nil)).Return(&models.RiskAssessment{LoanID: "loan-1"}, nil)

	request := func(actor string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/predictions/loan-1", nil)
		req.Header.Set(constants.HeaderActor, actor)
		return f.do(req)
	}

	w := request("analyst@bank")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))

	w = request("analyst@bank")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), string(errors.ErrCodeRateLimited))

	w = request("auditor@bank")
	assert.Equal(t, http.StatusOK, w.Code, "buckets are per actor")

	// Loan endpoints are not throttled.
	f.loans.On("GetLoan", mock.Anything, "loan-1").Return(&models.Loan{ID: "loan-1"}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/loans/loan-1", nil)
	req.Header.Set(constants.HeaderActor, "analyst@bank")
	assert.Equal(t, http.StatusOK, f.do(req).Code)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (*service.RateLimitDecision, error) {
	return nil, errors.ErrServiceUnavailable("redis down")
}
func (failingLimiter) Reset(context.Context, string) error { return nil }

func TestRouter_RateLimiterFailsOpen(t *testing.T) {
	f := newFixture(t, cwhttp.Options{RateLimiter: failingLimiter{}})
	f.oracle.On("AssessLoan", mock.Anything, "loan-1", []int(nil)).Return(&models.RiskAssessment{LoanID: "loan-1"}, nil)

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/predictions/loan-1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_IdempotentCovenantChecks(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	f := newFixture(t, cwhttp.Options{Redis: client})
	f.loans.On("RecordCovenantCheck", mock.Anything, "loan-1", mock.Anything).
		Return(nil, errors.ErrCovenantNotFound("loan-1", "lev")).Once()
	f.loans.On("RecordCovenantCheck", mock.Anything, "loan-1", mock.Anything).
		Return(&models.CovenantCheck{ID: "chk-1"}, nil).Once()

	post := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/loans/loan-1/covenant-checks",
			strings.NewReader(`{"covenant_id":"lev","actual_value":2.5}`))
		req.Header.Set("Content-Type", "application/json")
		if key != "" {
			req.Header.Set(constants.HeaderIdempotencyKey, key)
		}
		return f.do(req)
	}

	assert.Equal(t, http.StatusNotFound, post("k-1").Code)
	assert.Equal(t, http.StatusCreated, post("k-1").Code, "failed attempts release the key")

	w := post("k-1")
	assert.Equal(t, http.StatusConflict, w.Code)
	f.loans.AssertNumberOfCalls(t, "RecordCovenantCheck", 2)

	mr.FastForward(2 * time.Minute)
	f.loans.On("RecordCovenantCheck", mock.Anything, "loan-1", mock.Anything).
		Return(&models.CovenantCheck{ID: "chk-2"}, nil).Once()
	assert.Equal(t, http.StatusCreated, post("k-1").Code, "keys expire after the TTL")
}

func TestRouter_ESGAndAuditRoutes(t *testing.T) {
	f := newFixture(t, cwhttp.Options{})
	f.esg.On("BreachRisk", mock.Anything, "loan-1", constants.DefaultESGHorizonDays).
		Return(&models.ESGBreachRisk{LoanID: "loan-1", HorizonDays: 90, RiskLevel: constants.RiskLevelLow}, nil)
	f.esg.On("Score", mock.Anything, "ghost").Return(nil, errors.ErrLoanNotFound("ghost"))
	f.loans.On("AuditSummary", mock.Anything, "loan-1").Return(models.SummarizeAudit("loan-1", nil), nil)

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/esg/loan-1/breach-risk", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"horizon_days":90`)

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/esg/ghost/score", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/audit/events/types", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `{"value":"loan_created","name":"LOAN_CREATED"}`)

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/audit/loan-1/summary", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_events":0`)
}
