//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/turtacn/covenantwatch/internal/config"
	"github.com/turtacn/covenantwatch/internal/domain/models"
	"github.com/turtacn/covenantwatch/pkg/constants"
	"github.com/turtacn/covenantwatch/pkg/errors"
	"github.com/turtacn/covenantwatch/pkg/logger"
)

// startPostgres runs a throwaway Postgres and returns a migrated connection.
func startPostgres(t *testing.T) *DBConnection {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("covenantwatch"),
		tcpostgres.WithUsername("covenant"),
		tcpostgres.WithPassword("covenant"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	conn, err := NewDBConnection(ctx, &config.DatabaseConfig{
		Driver:          DriverPostgres,
		Host:            host,
		Port:            port.Int(),
		User:            "covenant",
		Password:        "covenant",
		Database:        "covenantwatch",
		SSLMode:         "disable",
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: 5,
		AutoMigrate:     true,
	}, logger.NewNoopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestPostgres_LoanTwinLifecycle(t *testing.T) {
	conn := startPostgres(t)
	ctx := context.Background()
	require.NoError(t, conn.Ping(ctx))

	info, err := conn.HealthCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, info["driver"])

	loans := NewLoanRepository(conn.DB(), logger.NewNoopLogger())
	checks := NewCovenantCheckRepository(conn.DB(), logger.NewNoopLogger())

	require.NoError(t, loans.Create(ctx, fixtureLoan("loan-pg", baseTime)))
	err = loans.Create(ctx, fixtureLoan("loan-pg", baseTime))
	appErr, ok := errors.AsAppError(err)
	require.True(t, ok, "duplicate key maps to an app error: %v", err)
	assert.Equal(t, errors.ErrCodeConflict, appErr.Code())

	got, err := loans.FindByID(ctx, "loan-pg")
	require.NoError(t, err)
	require.Len(t, got.Covenants, 2)
	assert.Equal(t, "z-last", got.Covenants[0].ID)
	assert.Equal(t, "25000000.5", got.PrincipalAmount.String())
	assert.Equal(t, "utilities", got.Metadata["sector"])

	actual := 4.1
	for i := 0; i < 3; i++ {
		require.NoError(t, checks.Append(ctx, &models.CovenantCheck{
			ID:             fmt.Sprintf("pg-chk-%d", i),
			LoanID:         "loan-pg",
			CovenantID:     "z-last",
			CheckDate:      baseTime.AddDate(0, -i, 0),
			Status:         constants.CovenantStatusBreached,
			ActualValue:    &actual,
			ThresholdValue: 3.5,
			IsBreached:     true,
		}))
	}
	history, err := checks.ListByLoan(ctx, "loan-pg")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "pg-chk-2", history[0].ID, "oldest first")

	require.NoError(t, loans.UpdateStatus(ctx, "loan-pg", constants.LoanStatusDefaulted))
	got, err = loans.FindByID(ctx, "loan-pg")
	require.NoError(t, err)
	assert.Equal(t, constants.LoanStatusDefaulted, got.Status)

	_, err = loans.FindByID(ctx, "missing")
	assert.True(t, errors.IsNotFound(err))
}

func TestPostgres_SnapshotsAndAudit(t *testing.T) {
	conn := startPostgres(t)
	ctx := context.Background()

	preds := NewPredictionRepository(conn.DB(), logger.NewNoopLogger())
	assessment := &models.RiskAssessment{
		LoanID: "loan-pg",
		Predictions: models.HorizonPredictions{
			{HorizonDays: 180, Probability: 0.61, RiskLevel: constants.RiskLevelHigh},
			{HorizonDays: 30, Probability: 0.22, RiskLevel: constants.RiskLevelLow},
		},
		OverallRisk:  models.OverallRisk{Level: constants.RiskLevelHigh, MaxProbability: 0.61, Trend: models.TrendIncreasing},
		ModelVersion: "v1-seed42",
	}
	require.NoError(t, preds.Save(ctx, &models.PredictionSnapshot{
		ID:           "pg-snap",
		LoanID:       "loan-pg",
		Horizons:     assessment.Horizons(),
		OverallLevel: constants.RiskLevelHigh,
		MaxProb:      0.61,
		ModelVersion: "v1-seed42",
		Assessment:   assessment,
		CreatedAt:    baseTime,
	}))
	snaps, err := preds.ListByLoan(ctx, "loan-pg", 5)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, []int{180, 30}, snaps[0].Horizons)
	require.NotNil(t, snaps[0].Assessment)
	assert.Equal(t, models.TrendIncreasing, snaps[0].Assessment.OverallRisk.Trend)

	audit := NewAuditRepository(conn.DB())
	event := models.NewAuditEvent("loan-pg", constants.AuditEventCovenantBreached, "Covenant check: Leverage - BREACHED").
		WithMetadata(map[string]interface{}{"covenant_id": "z-last", "actual_value": 4.1, "is_breached": true})
	require.NoError(t, audit.LogEvent(ctx, *event))
	events, err := audit.ListByLoan(ctx, "loan-pg", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.JSONEq(t, `{"covenant_id":"z-last","actual_value":4.1,"is_breached":true}`, string(events[0].Metadata))
	assert.True(t, events[0].Verify(), "jsonb key order must not change the hash")
}
