package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/covenantwatch/internal/config"
	"github.com/turtacn/covenantwatch/internal/domain/service"
	"github.com/turtacn/covenantwatch/pkg/errors"
	"github.com/turtacn/covenantwatch/pkg/logger"
)

func notification() service.BreachNotification {
	return service.BreachNotification{
		BreachID:       "breach-loan-1-1736942400",
		LoanID:         "loan-1",
		RuleID:         "ai-prediction-rule",
		Severity:       3,
		PredictedValue: 0.91,
	}
}

func newNotifier(url string, retryMax int) *HTTPNotifier {
	return NewHTTPNotifier(config.LedgerConfig{
		Enabled:   true,
		BaseURL:   url + "/",
		TimeoutMS: 500,
		RetryMax:  retryMax,
	}, logger.NewNoopLogger())
}

func TestHTTPNotifier_Success(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/governance/detect-breach", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"success":true,"transactionHash":"0xabc","blockNumber":42}`))
	}))
	defer srv.Close()

	receipt, err := newNotifier(srv.URL, 0).NotifyBreach(context.Background(), notification())
	require.NoError(t, err)
	assert.Equal(t, "breach-loan-1-1736942400", receipt.BreachID)
	assert.Equal(t, "0xabc", receipt.TxHash)

	assert.Equal(t, "breach-loan-1-1736942400", got["breachId"])
	assert.Equal(t, "loan-1", got["loanId"])
	assert.Equal(t, "ai-prediction-rule", got["ruleId"])
	assert.Equal(t, float64(3), got["severity"])
	assert.Equal(t, 0.91, got["predictedValue"])
}

func TestHTTPNotifier_Failures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"not initialized", http.StatusServiceUnavailable, `{"error":"not initialized"}`},
		{"bad request", http.StatusBadRequest, `{"error":"severity required"}`},
		{"demo fallback", http.StatusOK, `{"success":false,"error":"Blockchain not connected - demo mode","fallback":true}`},
		{"garbage", http.StatusOK, `<html>`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			receipt, err := newNotifier(srv.URL, 0).NotifyBreach(context.Background(), notification())
			assert.Nil(t, receipt)
			require.Error(t, err)
			appErr, ok := errors.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, errors.ErrCodeServiceUnavailable, appErr.Code())
		})
	}
}

func TestHTTPNotifier_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"transactionHash":"0xdef"}`))
	}))
	defer srv.Close()

	receipt, err := newNotifier(srv.URL, 2).NotifyBreach(context.Background(), notification())
	require.NoError(t, err)
	assert.Equal(t, "0xdef", receipt.TxHash)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestHTTPNotifier_HonoursContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := newNotifier(srv.URL, 0).NotifyBreach(ctx, notification())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestHTTPNotifier_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newNotifier(url, 0).NotifyBreach(context.Background(), notification())
	require.Error(t, err)
	appErr, ok := errors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeServiceUnavailable, appErr.Code())
}

func TestNew(t *testing.T) {
	disabled := New(config.LedgerConfig{Enabled: false}, logger.NewNoopLogger())
	require.IsType(t, NoopNotifier{}, disabled)
	receipt, err := disabled.NotifyBreach(context.Background(), notification())
	assert.NoError(t, err)
	assert.Nil(t, receipt)

	assert.IsType(t, &HTTPNotifier{}, New(config.LedgerConfig{Enabled: true, BaseURL: "http://ledger"}, logger.NewNoopLogger()))
}
