package models

import "time"

const (
	IntegrityCheckMissingTicketLink = "MISSING_TICKET_LINK"
	IntegrityCheckDoubleClaim       = "DOUBLE_CLAIM"
	IntegrityCheckSnapshotDrift     = "SNAPSHOT_DRIFT"
	IntegrityCheckTripUpiTotal      = "TRIP_UPI_TOTAL"
)

// IntegrityReport is one drift finding written by RunIntegrityChecks.
type IntegrityReport struct {
	ID            int       `gorm:"primary_key" json:"id"`
	CheckType     string    `gorm:"size:50;index;not null" json:"check_type"`
	EntityType    string    `gorm:"size:50;index;not null" json:"entity_type"`
	EntityId      int       `gorm:"index;not null" json:"entity_id"`
	BusinessDate  string    `gorm:"size:10;index" json:"business_date"`
	Details       string    `gorm:"type:text" json:"details"`
	CorrelationId string    `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}
