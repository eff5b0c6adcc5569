package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TripClose is the end-of-trip summary a device uploads. Append-only.
type TripClose struct {
	ID                 int             `gorm:"primary_key" json:"id"`
	PalmtecId          string          `gorm:"size:50;not null;index:uniq_trip_close,unique" json:"palmtec_id"`
	CompanyCode        string          `gorm:"size:50;not null;index" json:"company_code"`
	BranchCode         string          `gorm:"size:50" json:"branch_code"`
	Schedule           int             `gorm:"not null;index:uniq_trip_close,unique" json:"schedule"`
	TripNo             int             `gorm:"not null;index:uniq_trip_close,unique" json:"trip_no"`
	RouteCode          string          `gorm:"size:50;index" json:"route_code"`
	UpDownTrip         string          `gorm:"size:1" json:"up_down_trip"`
	StartDate          string          `gorm:"size:10;not null;index" json:"start_date"`
	StartTime          string          `gorm:"size:8" json:"start_time"`
	EndDate            string          `gorm:"size:10" json:"end_date"`
	EndTime            string          `gorm:"size:8" json:"end_time"`
	StartDateTime      time.Time       `gorm:"not null;index:uniq_trip_close,unique" json:"start_datetime"`
	EndDateTime        time.Time       `json:"end_datetime"`
	StartTicketNo      int64           `json:"start_ticket_no"`
	EndTicketNo        int64           `json:"end_ticket_no"`
	FullCount          int             `json:"full_count"`
	HalfCount          int             `json:"half_count"`
	St1Count           int             `json:"st1_count"`
	LuggageCount       int             `json:"luggage_count"`
	PhysicalCount      int             `json:"physical_count"`
	PassCount          int             `json:"pass_count"`
	LadiesCount        int             `json:"ladies_count"`
	SeniorCount        int             `json:"senior_count"`
	TotalTickets       int             `json:"total_tickets"`
	TotalCashTickets   int             `json:"total_cash_tickets"`
	FullCollection     decimal.Decimal `gorm:"type:decimal(15,2)" json:"full_collection"`
	HalfCollection     decimal.Decimal `gorm:"type:decimal(15,2)" json:"half_collection"`
	StCollection       decimal.Decimal `gorm:"type:decimal(15,2)" json:"st_collection"`
	LuggageCollection  decimal.Decimal `gorm:"type:decimal(15,2)" json:"luggage_collection"`
	PhysicalCollection decimal.Decimal `gorm:"type:decimal(15,2)" json:"physical_collection"`
	LadiesCollection   decimal.Decimal `gorm:"type:decimal(15,2)" json:"ladies_collection"`
	SeniorCollection   decimal.Decimal `gorm:"type:decimal(15,2)" json:"senior_collection"`
	AdjustCollection   decimal.Decimal `gorm:"type:decimal(15,2)" json:"adjust_collection"`
	ExpenseAmount      decimal.Decimal `gorm:"type:decimal(15,2)" json:"expense_amount"`
	TotalCollection    decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"total_collection"`
	TotalCashAmount    decimal.Decimal `gorm:"type:decimal(15,2)" json:"total_cash_amount"`
	UpiTicketCount     int             `json:"upi_ticket_count"`
	UpiTicketAmount    decimal.Decimal `gorm:"type:decimal(15,2)" json:"upi_ticket_amount"`
	CreatedAt          time.Time       `gorm:"precision:6;index" json:"created_at"`

	TotalPassengers    int `gorm:"-" json:"total_passengers"`
	TotalTicketsIssued int `gorm:"-" json:"total_tickets_issued"`
}

// AfterFind fills the read-only derived counters.
func (t *TripClose) AfterFind(tx *gorm.DB) error {
	t.ComputeDerived()
	return nil
}

func (t *TripClose) ComputeDerived() {
	t.TotalPassengers = t.FullCount + t.HalfCount + t.St1Count + t.PhysicalCount + t.PassCount + t.LadiesCount + t.SeniorCount
	if t.EndTicketNo >= t.StartTicketNo && t.StartTicketNo > 0 {
		t.TotalTicketsIssued = int(t.EndTicketNo-t.StartTicketNo) + 1
	} else {
		t.TotalTicketsIssued = t.TotalTickets
	}
}

func (t TripClose) FeedCreatedAt() time.Time { return t.CreatedAt }
func (t TripClose) FeedID() int              { return t.ID }
