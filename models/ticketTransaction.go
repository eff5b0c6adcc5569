package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TicketTransaction is one ticket issued by a ticketing device. Append-only:
// reconciliation tags gateway transactions with it but never mutates it.
type TicketTransaction struct {
	ID              int               `gorm:"primary_key" json:"id"`
	RequestType     string            `gorm:"size:20" json:"request_type"`
	DeviceId        string            `gorm:"size:50;not null;index:uniq_ticket,unique" json:"device_id"`
	TripNumber      string            `gorm:"size:20;not null;index:uniq_ticket,unique" json:"trip_number"`
	TicketNumber    string            `gorm:"size:50;not null;index:uniq_ticket,unique" json:"ticket_number"`
	TicketDate      string            `gorm:"size:10;not null;index:uniq_ticket,unique;index:idx_ticket_ref" json:"ticket_date"`
	TicketTime      string            `gorm:"size:8;not null;index:uniq_ticket,unique" json:"ticket_time"`
	FromStage       int               `json:"from_stage"`
	ToStage         int               `json:"to_stage"`
	FullCount       int               `json:"full_count"`
	HalfCount       int               `json:"half_count"`
	StCount         int               `json:"st_count"`
	PhyCount        int               `json:"phy_count"`
	LuggCount       int               `json:"lugg_count"`
	LadiesCount     int               `json:"ladies_count"`
	SeniorCount     int               `json:"senior_count"`
	TotalTickets    int               `json:"total_tickets"`
	TicketAmount    decimal.Decimal   `gorm:"type:decimal(15,2);not null" json:"ticket_amount"`
	LuggAmount      decimal.Decimal   `gorm:"type:decimal(15,2)" json:"lugg_amount"`
	AdjustAmount    decimal.Decimal   `gorm:"type:decimal(15,2)" json:"adjust_amount"`
	WarrantAmount   decimal.Decimal   `gorm:"type:decimal(15,2)" json:"warrant_amount"`
	RefundStatus    string            `gorm:"size:10" json:"refund_status"`
	RefundAmount    decimal.Decimal   `gorm:"type:decimal(15,2)" json:"refund_amount"`
	TicketType      string            `gorm:"size:10" json:"ticket_type"`
	PassId          string            `gorm:"size:50" json:"pass_id"`
	TransactionId   string            `gorm:"size:100" json:"transaction_id"`
	TicketStatus    TicketPaymentMode `gorm:"not null;default:0" json:"ticket_status"`
	ReferenceNumber string            `gorm:"size:100;index:idx_ticket_ref" json:"reference_number"`
	CompanyCode     string            `gorm:"size:50;not null;index" json:"company_code"`
	BranchCode      string            `gorm:"size:50" json:"branch_code"`
	RawPayload      string            `gorm:"type:text" json:"-"`
	CreatedAt       time.Time         `gorm:"precision:6;index" json:"created_at"`
}

// IsUPI tickets are paid through the gateway and are the only ones a settlement can match.
func (t TicketTransaction) IsUPI() bool { return t.TicketStatus == TicketPaymentUPI }

func (t TicketTransaction) FeedCreatedAt() time.Time { return t.CreatedAt }
func (t TicketTransaction) FeedID() int              { return t.ID }
