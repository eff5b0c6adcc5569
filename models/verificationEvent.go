package models

import "time"

// VerificationEvent is the append-only audit trail of human dispositions.
// The transaction row holds only the latest verifier; history lives here.
type VerificationEvent struct {
	ID                   int                  `gorm:"primary_key" json:"id"`
	TransactionId        int                  `gorm:"not null;index" json:"transaction_id"`
	Action               VerificationAction   `gorm:"size:20;not null" json:"action"`
	FromStatus           VerificationStatus   `gorm:"size:20" json:"from_status"`
	ToStatus             VerificationStatus   `gorm:"size:20" json:"to_status"`
	ReconciliationStatus ReconciliationStatus `gorm:"size:20" json:"reconciliation_status"`
	TicketId             *int                 `json:"ticket_id"`
	Notes                string               `gorm:"type:text" json:"notes"`
	UserId               int                  `gorm:"not null;index" json:"user_id"`
	UserName             string               `gorm:"size:100" json:"user_name"`
	CorrelationId        string               `gorm:"size:64" json:"correlation_id"`
	CreatedAt            time.Time            `gorm:"precision:6;index" json:"created_at"`
}
