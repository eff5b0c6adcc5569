package workflow

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/settlement_backend/models"
	"bitbucket.org/mmdatafocus/settlement_backend/testutil"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const day = "2025-06-01"

var operator = Actor{UserId: 7, Name: "ops"}

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.OpenDB(t, models.Migrate)
}

func newSettlement(t *testing.T, db *gorm.DB, txId, invoice, amount string, mutate func(*models.SettlementTransaction)) *models.SettlementTransaction {
	t.Helper()
	s := models.SettlementTransaction{
		TransactionID:       txId,
		MerchantId:          "M1",
		TransactionRRN:      "RRN-" + txId,
		TransactionAmount:   decimal.RequireFromString(amount),
		TransactionDate:     day,
		TransactionTime:     "09:00:00",
		TransactionDateTime: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		InvoiceNumber:       invoice,
		ResponseCode:        "00",
		IsChecksumValid:     true,
	}
	if mutate != nil {
		mutate(&s)
	}
	if err := db.Create(&s).Error; err != nil {
		t.Fatalf("create settlement %s: %v", txId, err)
	}
	return &s
}

func newTicket(t *testing.T, db *gorm.DB, number, reference, amount string) *models.TicketTransaction {
	t.Helper()
	tk := models.TicketTransaction{
		DeviceId:        "PT01",
		TripNumber:      "1",
		TicketNumber:    number,
		TicketDate:      day,
		TicketTime:      "09:00:00",
		TicketAmount:    decimal.RequireFromString(amount),
		TicketStatus:    models.TicketPaymentUPI,
		ReferenceNumber: reference,
		CompanyCode:     "C1",
	}
	if err := db.Create(&tk).Error; err != nil {
		t.Fatalf("create ticket %s: %v", number, err)
	}
	return &tk
}
