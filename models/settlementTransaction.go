package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SettlementTransaction is a payment-gateway settlement post.
// Gateway fields are immutable after ingest; only reconciliation and
// verification fields change, and rows are never deleted.
type SettlementTransaction struct {
	ID                    int              `gorm:"primary_key" json:"id"`
	TransactionID         string           `gorm:"size:100;not null;uniqueIndex" json:"transactionID"`
	MerchantId            string           `gorm:"size:100;not null;index" json:"merchantId"`
	TransactionRRN        string           `gorm:"size:100;not null" json:"transactionRRN"`
	TransactionAmount     decimal.Decimal  `gorm:"type:decimal(15,2);not null" json:"transactionAmount"`
	CashBack              decimal.Decimal  `gorm:"type:decimal(15,2);not null;default:0" json:"cashBack"`
	TipAmount             decimal.Decimal  `gorm:"type:decimal(15,2);not null;default:0" json:"tipAmount"`
	TransactionCardNumber string           `gorm:"size:32" json:"transactionCardNumber"`
	CardType              string           `gorm:"size:30" json:"cardType"`
	TerminalId            string           `gorm:"size:50" json:"terminalId"`
	TransactionDate       string           `gorm:"size:10;not null;index" json:"transaction_date"`
	TransactionTime       string           `gorm:"size:8;not null" json:"transaction_time"`
	TransactionDateTime   time.Time        `gorm:"not null" json:"transaction_datetime"`
	InvoiceNumber         string           `gorm:"size:100;index" json:"invoiceNumber"`
	BillNumber            string           `gorm:"size:100" json:"billNumber"`
	ResponseCode          string           `gorm:"size:10" json:"responseCode"`
	TransactionStatus     string           `gorm:"size:50" json:"transactionStatus"`
	IsChecksumValid       bool             `gorm:"not null;default:false" json:"is_checksum_valid"`
	PaymentStatus         PaymentStatus    `gorm:"size:10;not null;index" json:"payment_status"`
	ProcessingStatus      ProcessingStatus `gorm:"size:30;not null" json:"processing_status"`
	RawRequestData        datatypes.JSON   `json:"-"`
	RepostCount           int              `gorm:"not null;default:0" json:"repost_count"`

	ReconciliationStatus     ReconciliationStatus `gorm:"size:20;not null;default:'PENDING';index" json:"reconciliation_status"`
	ReconciliationError      *string              `gorm:"type:text" json:"reconciliation_error"`
	ReconciledAt             *time.Time           `json:"reconciled_at"`
	ManuallyReconciledBy     *int                 `json:"manually_reconciled_by"`
	ManuallyReconciledByName *string              `gorm:"size:100" json:"manually_reconciled_by_name"`

	VerificationStatus VerificationStatus `gorm:"size:20;not null;default:'UNVERIFIED';index" json:"verification_status"`
	VerificationNotes  string             `gorm:"type:text" json:"verification_notes"`
	VerifiedBy         *int               `json:"verified_by"`
	VerifiedByName     *string            `gorm:"size:100" json:"verified_by_name"`
	VerifiedAt         *time.Time         `json:"verified_at"`

	RelatedTicketId     *int             `gorm:"index" json:"related_ticket_id"`
	RelatedTicketNumber *string          `gorm:"size:50" json:"related_ticket_number"`
	RelatedTicketAmount *decimal.Decimal `gorm:"type:decimal(15,2)" json:"related_ticket_amount"`
	RelatedTicketDate   *string          `gorm:"size:10" json:"related_ticket_date"`

	Version   int       `gorm:"not null;default:1" json:"version"`
	CreatedAt time.Time `gorm:"precision:6;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"precision:6" json:"updated_at"`
}

func (t *SettlementTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ReconciliationStatus == "" {
		t.ReconciliationStatus = ReconciliationStatusPending
	}
	if t.VerificationStatus == "" {
		t.VerificationStatus = VerificationStatusUnverified
	}
	if t.PaymentStatus == "" {
		t.PaymentStatus = PaymentStatusFromResponseCode(t.ResponseCode)
	}
	if t.ProcessingStatus == "" {
		t.ProcessingStatus = ProcessingStatusReceived
	}
	if t.Version == 0 {
		t.Version = 1
	}
	return nil
}

// IsReconcilable: only approved payments with a valid checksum are matched.
func (t *SettlementTransaction) IsReconcilable() bool {
	return t.IsChecksumValid && t.PaymentStatus == PaymentStatusApproved
}

// FeedCreatedAt and FeedID expose the cursor columns for generic feed handling.
func (t SettlementTransaction) FeedCreatedAt() time.Time { return t.CreatedAt }
func (t SettlementTransaction) FeedID() int              { return t.ID }
