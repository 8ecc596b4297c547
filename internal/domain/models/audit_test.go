package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/covenantwatch/pkg/constants"
)

func TestAuditEvent_HashCoversContent(t *testing.T) {
	e := NewAuditEvent("loan-1", constants.AuditEventCovenantBreached, "Leverage breached").
		WithMetadata(map[string]interface{}{"threshold": 3.5, "covenant_id": "lev"})

	payload := `{"description":"Leverage breached","event_type":"covenant_breached","loan_id":"loan-1","metadata":{"covenant_id":"lev","threshold":3.5}}`
	sum := sha256.Sum256([]byte(payload))
	assert.Equal(t, hex.EncodeToString(sum[:]), e.Hash)
	assert.True(t, e.Verify())

	// Actor, trace and time are not content.
	e.WithActor("analyst@bank").WithTraceID("abc")
	e.Timestamp = e.Timestamp.Add(time.Hour)
	assert.True(t, e.Verify())

	tampered := *e
	tampered.Message = "Leverage fine"
	assert.False(t, tampered.Verify())

	tampered = *e
	tampered.Metadata = json.RawMessage(`{"covenant_id":"lev","threshold":9}`)
	assert.False(t, tampered.Verify())
}

func TestAuditEvent_HashIgnoresMetadataLayout(t *testing.T) {
	e := NewAuditEvent("loan-1", constants.AuditEventLoanCreated, "created").
		WithMetadata(map[string]interface{}{"esg_count": 1, "loan_amount": "5000000"})

	reordered := *e
	reordered.Metadata = json.RawMessage(`{"loan_amount": "5000000", "esg_count": 1}`)
	assert.Equal(t, e.Hash, reordered.ComputeHash())
}

func TestAuditEvent_MissingMetadataHashesAsEmptyObject(t *testing.T) {
	e := NewAuditEvent("loan-1", constants.AuditEventLoanCreated, "created")
	payload := `{"description":"created","event_type":"loan_created","loan_id":"loan-1","metadata":{}}`
	sum := sha256.Sum256([]byte(payload))
	assert.Equal(t, hex.EncodeToString(sum[:]), e.Hash)

	nullMeta := *e
	nullMeta.Metadata = json.RawMessage("null")
	assert.Equal(t, e.Hash, nullMeta.ComputeHash())

	assert.False(t, (&AuditEvent{LoanID: "loan-1"}).Verify(), "an unhashed event does not verify")
}

func TestSummarizeAudit(t *testing.T) {
	empty := SummarizeAudit("loan-1", nil)
	assert.Equal(t, 0, empty.TotalEvents)
	assert.Empty(t, empty.EventCounts)
	assert.NotNil(t, empty.LatestEvents)
	assert.Nil(t, empty.FirstEvent)
	assert.Nil(t, empty.LastEvent)

	var newestFirst []*AuditEvent
	for i := 0; i < 3; i++ {
		newestFirst = append(newestFirst, NewAuditEvent("loan-1", constants.AuditEventCovenantChecked, "check"))
	}
	newestFirst = append(newestFirst, NewAuditEvent("loan-1", constants.AuditEventLoanCreated, "created"))

	s := SummarizeAudit("loan-1", newestFirst)
	assert.Equal(t, 4, s.TotalEvents)
	assert.Equal(t, map[constants.AuditEventType]int{
		constants.AuditEventCovenantChecked: 3,
		constants.AuditEventLoanCreated:     1,
	}, s.EventCounts)
	require.Len(t, s.LatestEvents, 4)
	assert.Same(t, newestFirst[0], s.LastEvent)
	assert.Same(t, newestFirst[3], s.FirstEvent)
}

func TestAuditEventType_NamesAndValidity(t *testing.T) {
	assert.Equal(t, "COVENANT_BREACHED", constants.AuditEventCovenantBreached.Name())
	assert.True(t, constants.AuditEventESGScoreCalculated.IsValid())
	assert.False(t, constants.AuditEventType("loan_deleted").IsValid())
}

func TestLatestESGByClause(t *testing.T) {
	day := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	latest := LatestESGByClause([]ESGComplianceRecord{
		{ID: "a", ClauseID: "env", CheckDate: day, Status: constants.ESGStatusAtRisk},
		{ID: "b", ClauseID: "env", CheckDate: day.AddDate(0, 0, -10), Status: constants.ESGStatusNonCompliant},
		{ID: "c", ClauseID: "gov", CheckDate: day, Status: constants.ESGStatusCompliant},
		{ID: "d", ClauseID: "gov", CheckDate: day, Status: constants.ESGStatusNonCompliant},
	})
	assert.Equal(t, "a", latest["env"].ID)
	assert.Equal(t, "d", latest["gov"].ID)
}
