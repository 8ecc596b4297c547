package models

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/turtacn/covenantwatch/pkg/constants"
)

// AuditEvent represents a single audit trail entry for a loan.
type AuditEvent struct {
	EventID   uuid.UUID                `json:"event_id"`
	LoanID    string                   `json:"loan_id"`
	EventType constants.AuditEventType `json:"event_type"`
	Actor     string                   `json:"actor"`
	TraceID   string                   `json:"trace_id,omitempty"`
	Message   string                   `json:"message"`
	Metadata  json.RawMessage          `json:"metadata,omitempty"`
	Timestamp time.Time                `json:"timestamp"`
	// Hash is the SHA-256 of the event content, see ComputeHash.
	Hash string `json:"hash"`
}

// NewAuditEvent creates a new audit event attributed to the default actor.
func NewAuditEvent(loanID string, eventType constants.AuditEventType, message string) *AuditEvent {
	a := &AuditEvent{
		EventID:   uuid.New(),
		LoanID:    loanID,
		EventType: eventType,
		Actor:     constants.DefaultActor,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
	a.Hash = a.ComputeHash()
	return a
}

// WithActor sets who performed the action.
func (a *AuditEvent) WithActor(actor string) *AuditEvent {
	if actor != "" {
		a.Actor = actor
	}
	return a
}

// WithTraceID sets the trace correlation id.
func (a *AuditEvent) WithTraceID(traceID string) *AuditEvent {
	a.TraceID = traceID
	return a
}

// WithMetadata sets JSON metadata for the event and refreshes the hash.
// Unmarshalable data is dropped.
func (a *AuditEvent) WithMetadata(data interface{}) *AuditEvent {
	jsonData, err := json.Marshal(data)
	if err == nil {
		a.Metadata = jsonData
		a.Hash = a.ComputeHash()
	}
	return a
}

// ComputeHash returns the hex SHA-256 of the event's content: a JSON object
// with sorted keys description, event_type, loan_id and metadata. Actor,
// trace id and timestamp are not part of the content.
// ComputeHash 计算事件内容的 SHA-256，用于不可篡改性校验。
func (a *AuditEvent) ComputeHash() string {
	content := map[string]interface{}{
		"description": a.Message,
		"event_type":  string(a.EventType),
		"loan_id":     a.LoanID,
		"metadata":    canonicalMetadata(a.Metadata),
	}
	payload, _ := json.Marshal(content)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Verify reports whether the stored hash matches the event content.
func (a *AuditEvent) Verify() bool {
	return a.Hash != "" && a.Hash == a.ComputeHash()
}

// canonicalMetadata decodes metadata so re-encoding yields sorted keys and
// compact spacing whatever form the store returned it in. Missing or null
// metadata hashes as an empty object.
func canonicalMetadata(raw json.RawMessage) interface{} {
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]interface{}{}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil || v == nil {
		return map[string]interface{}{}
	}
	return v
}

// AuditSummary aggregates a loan's audit trail.
type AuditSummary struct {
	LoanID       string                           `json:"loan_id"`
	TotalEvents  int                              `json:"total_events"`
	EventCounts  map[constants.AuditEventType]int `json:"event_counts"`
	LatestEvents []*AuditEvent                    `json:"latest_events"`
	FirstEvent   *AuditEvent                      `json:"first_event"`
	LastEvent    *AuditEvent                      `json:"last_event"`
}

// AuditSummaryLatestEvents caps AuditSummary.LatestEvents.
const AuditSummaryLatestEvents = 10

// SummarizeAudit builds the summary of events ordered newest first.
func SummarizeAudit(loanID string, newestFirst []*AuditEvent) *AuditSummary {
	summary := &AuditSummary{
		LoanID:       loanID,
		TotalEvents:  len(newestFirst),
		EventCounts:  make(map[constants.AuditEventType]int),
		LatestEvents: []*AuditEvent{},
	}
	for _, e := range newestFirst {
		summary.EventCounts[e.EventType]++
	}
	if len(newestFirst) == 0 {
		return summary
	}
	latest := len(newestFirst)
	if latest > AuditSummaryLatestEvents {
		latest = AuditSummaryLatestEvents
	}
	summary.LatestEvents = newestFirst[:latest]
	summary.LastEvent = newestFirst[0]
	summary.FirstEvent = newestFirst[len(newestFirst)-1]
	return summary
}
