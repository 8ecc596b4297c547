package postgres

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/turtacn/covenantwatch/internal/domain/models"
	"github.com/turtacn/covenantwatch/pkg/constants"
)

var lastSeq atomic.Int64

// nextSeq returns a strictly increasing insertion key. It starts from the wall
// clock so keys keep increasing across restarts of a single writer.
func nextSeq() int64 {
	for {
		last := lastSeq.Load()
		next := time.Now().UnixNano()
		if next <= last {
			next = last + 1
		}
		if lastSeq.CompareAndSwap(last, next) {
			return next
		}
	}
}

// loanDBM is the database model for the loans table.
type loanDBM struct {
	ID              string          `gorm:"primaryKey;size:64"`
	BorrowerName    string          `gorm:"size:255;not null"`
	PrincipalAmount decimal.Decimal `gorm:"type:numeric(20,2)"`
	InterestRate    float64
	StartDate       time.Time
	MaturityDate    time.Time
	Status          string `gorm:"size:32;index"`
	Metadata        datatypes.JSON
	CreatedAt       time.Time      `gorm:"index"`
	Covenants       []covenantDBM  `gorm:"foreignKey:LoanID;constraint:OnDelete:CASCADE"`
	ESGClauses      []esgClauseDBM `gorm:"foreignKey:LoanID;constraint:OnDelete:CASCADE"`
}

func (loanDBM) TableName() string { return "loans" }

type covenantDBM struct {
	LoanID        string `gorm:"primaryKey;size:64"`
	ID            string `gorm:"primaryKey;size:64"`
	Position      int
	Name          string `gorm:"size:255"`
	Type          string `gorm:"size:32"`
	Threshold     float64
	Operator      string `gorm:"size:4"`
	Frequency     string `gorm:"size:32"`
	NextCheckDate time.Time
	Description   string
}

func (covenantDBM) TableName() string { return "covenants" }

type esgClauseDBM struct {
	LoanID             string `gorm:"primaryKey;size:64"`
	ID                 string `gorm:"primaryKey;size:64"`
	Position           int
	Category           string `gorm:"size:32"`
	Requirement        string
	ReportingFrequency string `gorm:"size:32"`
	NextReportDate     time.Time
	Description        string
}

func (esgClauseDBM) TableName() string { return "esg_clauses" }

type covenantCheckDBM struct {
	ID             string    `gorm:"primaryKey;size:64"`
	LoanID         string    `gorm:"size:64;index:idx_checks_loan_date"`
	CovenantID     string    `gorm:"size:64"`
	CheckDate      time.Time `gorm:"index:idx_checks_loan_date"`
	Status         string    `gorm:"size:32"`
	ActualValue    *float64
	ThresholdValue float64
	IsBreached     bool
	Notes          string
	Seq            int64 `gorm:"not null;default:0"`
}

func (covenantCheckDBM) TableName() string { return "covenant_checks" }

type esgComplianceDBM struct {
	ID        string    `gorm:"primaryKey;size:64"`
	LoanID    string    `gorm:"size:64;index:idx_esg_loan_date"`
	ClauseID  string    `gorm:"size:64"`
	CheckDate time.Time `gorm:"index:idx_esg_loan_date"`
	Status    string    `gorm:"size:32"`
	Evidence  string
	Notes     string
	Seq       int64 `gorm:"not null;default:0"`
}

func (esgComplianceDBM) TableName() string { return "esg_compliance" }

type predictionSnapshotDBM struct {
	ID           string `gorm:"primaryKey;size:64"`
	LoanID       string `gorm:"size:64;index:idx_snapshots_loan_created"`
	Horizons     datatypes.JSON
	OverallLevel string `gorm:"size:16"`
	MaxProb      float64
	ModelVersion string `gorm:"size:64"`
	Assessment   datatypes.JSON
	CreatedAt    time.Time `gorm:"index:idx_snapshots_loan_created"`
}

func (predictionSnapshotDBM) TableName() string { return "prediction_snapshots" }

type auditEventDBM struct {
	EventID   string `gorm:"primaryKey;size:36"`
	LoanID    string `gorm:"size:64;index:idx_audit_loan_ts"`
	EventType string `gorm:"size:64"`
	Actor     string `gorm:"size:128"`
	TraceID   string `gorm:"size:64"`
	Message   string
	Metadata  datatypes.JSON
	Timestamp time.Time `gorm:"column:occurred_at;index:idx_audit_loan_ts"`
	Hash      string    `gorm:"size:64"`
	Seq       int64     `gorm:"not null;default:0"`
}

func (auditEventDBM) TableName() string { return "audit_events" }

// toDomain converts the database model to a domain model.
func (dbm *loanDBM) toDomain() (*models.Loan, error) {
	loan := &models.Loan{
		ID:              dbm.ID,
		BorrowerName:    dbm.BorrowerName,
		PrincipalAmount: dbm.PrincipalAmount,
		InterestRate:    dbm.InterestRate,
		StartDate:       dbm.StartDate.UTC(),
		MaturityDate:    dbm.MaturityDate.UTC(),
		Status:          constants.LoanStatus(dbm.Status),
		Covenants:       make([]models.Covenant, 0, len(dbm.Covenants)),
		ESGClauses:      make([]models.ESGClause, 0, len(dbm.ESGClauses)),
		CreatedAt:       dbm.CreatedAt.UTC(),
	}
	if len(dbm.Metadata) > 0 {
		if err := json.Unmarshal(dbm.Metadata, &loan.Metadata); err != nil {
			return nil, err
		}
	}
	for _, c := range dbm.Covenants {
		loan.Covenants = append(loan.Covenants, models.Covenant{
			ID:            c.ID,
			Name:          c.Name,
			Type:          constants.CovenantType(c.Type),
			Threshold:     c.Threshold,
			Operator:      constants.Operator(c.Operator),
			Frequency:     c.Frequency,
			NextCheckDate: c.NextCheckDate.UTC(),
			Description:   c.Description,
		})
	}
	for _, e := range dbm.ESGClauses {
		loan.ESGClauses = append(loan.ESGClauses, models.ESGClause{
			ID:                 e.ID,
			Category:           constants.ESGCategory(e.Category),
			Requirement:        e.Requirement,
			ReportingFrequency: e.ReportingFrequency,
			NextReportDate:     e.NextReportDate.UTC(),
			Description:        e.Description,
		})
	}
	return loan, nil
}

// loanFromDomain converts a domain loan, children included, to database models.
func loanFromDomain(loan *models.Loan) (*loanDBM, error) {
	dbm := &loanDBM{
		ID:              loan.ID,
		BorrowerName:    loan.BorrowerName,
		PrincipalAmount: loan.PrincipalAmount,
		InterestRate:    loan.InterestRate,
		StartDate:       loan.StartDate,
		MaturityDate:    loan.MaturityDate,
		Status:          string(loan.Status),
		CreatedAt:       loan.CreatedAt,
	}
	if len(loan.Metadata) > 0 {
		raw, err := json.Marshal(loan.Metadata)
		if err != nil {
			return nil, err
		}
		dbm.Metadata = datatypes.JSON(raw)
	}
	for i, c := range loan.Covenants {
		dbm.Covenants = append(dbm.Covenants, covenantDBM{
			LoanID:        loan.ID,
			ID:            c.ID,
			Position:      i,
			Name:          c.Name,
			Type:          string(c.Type),
			Threshold:     c.Threshold,
			Operator:      string(c.Operator),
			Frequency:     c.Frequency,
			NextCheckDate: c.NextCheckDate,
			Description:   c.Description,
		})
	}
	for i, e := range loan.ESGClauses {
		dbm.ESGClauses = append(dbm.ESGClauses, esgClauseDBM{
			LoanID:             loan.ID,
			ID:                 e.ID,
			Position:           i,
			Category:           string(e.Category),
			Requirement:        e.Requirement,
			ReportingFrequency: e.ReportingFrequency,
			NextReportDate:     e.NextReportDate,
			Description:        e.Description,
		})
	}
	return dbm, nil
}

func (dbm *covenantCheckDBM) toDomain() models.CovenantCheck {
	return models.CovenantCheck{
		ID:             dbm.ID,
		LoanID:         dbm.LoanID,
		CovenantID:     dbm.CovenantID,
		CheckDate:      dbm.CheckDate.UTC(),
		Status:         constants.CovenantStatus(dbm.Status),
		ActualValue:    dbm.ActualValue,
		ThresholdValue: dbm.ThresholdValue,
		IsBreached:     dbm.IsBreached,
		Notes:          dbm.Notes,
	}
}

func checkFromDomain(c *models.CovenantCheck) *covenantCheckDBM {
	return &covenantCheckDBM{
		ID:             c.ID,
		LoanID:         c.LoanID,
		CovenantID:     c.CovenantID,
		CheckDate:      c.CheckDate,
		Status:         string(c.Status),
		ActualValue:    c.ActualValue,
		ThresholdValue: c.ThresholdValue,
		IsBreached:     c.IsBreached,
		Notes:          c.Notes,
		Seq:            nextSeq(),
	}
}

func (dbm *esgComplianceDBM) toDomain() models.ESGComplianceRecord {
	return models.ESGComplianceRecord{
		ID:        dbm.ID,
		LoanID:    dbm.LoanID,
		ClauseID:  dbm.ClauseID,
		CheckDate: dbm.CheckDate.UTC(),
		Status:    constants.ESGStatus(dbm.Status),
		Evidence:  dbm.Evidence,
		Notes:     dbm.Notes,
	}
}

func esgFromDomain(r *models.ESGComplianceRecord) *esgComplianceDBM {
	return &esgComplianceDBM{
		ID:        r.ID,
		LoanID:    r.LoanID,
		ClauseID:  r.ClauseID,
		CheckDate: r.CheckDate,
		Status:    string(r.Status),
		Evidence:  r.Evidence,
		Notes:     r.Notes,
		Seq:       nextSeq(),
	}
}

func (dbm *predictionSnapshotDBM) toDomain() (*models.PredictionSnapshot, error) {
	s := &models.PredictionSnapshot{
		ID:           dbm.ID,
		LoanID:       dbm.LoanID,
		OverallLevel: constants.RiskLevel(dbm.OverallLevel),
		MaxProb:      dbm.MaxProb,
		ModelVersion: dbm.ModelVersion,
		CreatedAt:    dbm.CreatedAt.UTC(),
	}
	if err := json.Unmarshal(dbm.Horizons, &s.Horizons); err != nil {
		return nil, err
	}
	if len(dbm.Assessment) > 0 {
		s.Assessment = &models.RiskAssessment{}
		if err := json.Unmarshal(dbm.Assessment, s.Assessment); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func snapshotFromDomain(s *models.PredictionSnapshot) (*predictionSnapshotDBM, error) {
	horizons, err := json.Marshal(s.Horizons)
	if err != nil {
		return nil, err
	}
	dbm := &predictionSnapshotDBM{
		ID:           s.ID,
		LoanID:       s.LoanID,
		Horizons:     datatypes.JSON(horizons),
		OverallLevel: string(s.OverallLevel),
		MaxProb:      s.MaxProb,
		ModelVersion: s.ModelVersion,
		CreatedAt:    s.CreatedAt,
	}
	if s.Assessment != nil {
		payload, err := json.Marshal(s.Assessment)
		if err != nil {
			return nil, err
		}
		dbm.Assessment = datatypes.JSON(payload)
	}
	return dbm, nil
}

func (dbm *auditEventDBM) toDomain() *models.AuditEvent {
	id, _ := uuid.Parse(dbm.EventID)
	return &models.AuditEvent{
		EventID:   id,
		LoanID:    dbm.LoanID,
		EventType: constants.AuditEventType(dbm.EventType),
		Actor:     dbm.Actor,
		TraceID:   dbm.TraceID,
		Message:   dbm.Message,
		Metadata:  json.RawMessage(dbm.Metadata),
		Timestamp: dbm.Timestamp.UTC(),
		Hash:      dbm.Hash,
	}
}

func auditFromDomain(e *models.AuditEvent) *auditEventDBM {
	return &auditEventDBM{
		EventID:   e.EventID.String(),
		LoanID:    e.LoanID,
		EventType: string(e.EventType),
		Actor:     e.Actor,
		TraceID:   e.TraceID,
		Message:   e.Message,
		Metadata:  datatypes.JSON(e.Metadata),
		Timestamp: e.Timestamp,
		Hash:      e.Hash,
		Seq:       nextSeq(),
	}
}
