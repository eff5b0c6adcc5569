package models

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/settlement_backend/config"
	"bitbucket.org/mmdatafocus/settlement_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// IntegrityResult counts findings per check type.
type IntegrityResult struct {
	CorrelationId string         `json:"correlation_id"`
	Findings      map[string]int `json:"findings"`
}

func (r IntegrityResult) Total() int {
	n := 0
	for _, v := range r.Findings {
		n += v
	}
	return n
}

// RunIntegrityChecks scans [fromDate, toDate] for drift between settlements,
// their ticket links and trip-close totals, and writes one IntegrityReport per finding.
// Intended for the nightly backfill or an admin trigger.
func RunIntegrityChecks(ctx context.Context, db *gorm.DB, fromDate, toDate string) (IntegrityResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if db == nil {
		db = config.GetDB()
	}
	if db == nil {
		return IntegrityResult{}, fmt.Errorf("db is nil")
	}
	fromDate, toDate, err := utils.ValidateDateRange(fromDate, toDate)
	if err != nil {
		return IntegrityResult{}, err
	}
	logger := config.GetLogger()

	cid, ok := utils.GetCorrelationIdFromContext(ctx)
	if !ok || cid == "" {
		cid = uuid.NewString()
	}
	res := IntegrityResult{CorrelationId: cid, Findings: map[string]int{}}
	now := time.Now().UTC()
	db = db.WithContext(utils.SetSkipCompanyScopeInContext(ctx, true))

	report := func(check, entityType string, entityId int, date, details string) {
		res.Findings[check]++
		_ = db.Create(&IntegrityReport{
			CheckType:     check,
			EntityType:    entityType,
			EntityId:      entityId,
			BusinessDate:  date,
			Details:       details,
			CorrelationId: cid,
			CreatedAt:     now,
		}).Error
	}

	// 1) Matched statuses without a ticket link
	var unlinked []SettlementTransaction
	if err := db.
		Where("transaction_date BETWEEN ? AND ?", fromDate, toDate).
		Where("reconciliation_status IN ?", []ReconciliationStatus{
			ReconciliationStatusAutoMatched, ReconciliationStatusManualMatch, ReconciliationStatusAmountMismatch,
		}).
		Where("related_ticket_id IS NULL").
		Find(&unlinked).Error; err != nil {
		return res, err
	}
	for _, tx := range unlinked {
		report(IntegrityCheckMissingTicketLink, "SettlementTransaction", tx.ID, tx.TransactionDate,
			fmt.Sprintf("%s without related_ticket_id", tx.ReconciliationStatus))
	}

	// 2) One ticket claimed by more than one transaction
	type claimRow struct {
		RelatedTicketId int
		Claims          int
	}
	var claims []claimRow
	if err := db.Model(&SettlementTransaction{}).
		Select("related_ticket_id, COUNT(*) AS claims").
		Where("transaction_date BETWEEN ? AND ?", fromDate, toDate).
		Where("reconciliation_status IN ?", []ReconciliationStatus{ReconciliationStatusAutoMatched, ReconciliationStatusManualMatch}).
		Where("related_ticket_id IS NOT NULL").
		Group("related_ticket_id").
		Having("COUNT(*) > 1").
		Scan(&claims).Error; err != nil {
		return res, err
	}
	for _, c := range claims {
		report(IntegrityCheckDoubleClaim, "TicketTransaction", c.RelatedTicketId, "",
			fmt.Sprintf("ticket claimed by %d transactions", c.Claims))
	}

	// 3) Snapshot amount drifted from the ticket row
	var linked []SettlementTransaction
	if err := db.
		Where("transaction_date BETWEEN ? AND ?", fromDate, toDate).
		Where("related_ticket_id IS NOT NULL").
		Find(&linked).Error; err != nil {
		return res, err
	}
	if len(linked) > 0 {
		ids := make([]int, 0, len(linked))
		for _, tx := range linked {
			ids = append(ids, *tx.RelatedTicketId)
		}
		var tickets []TicketTransaction
		if err := db.Where("id IN ?", ids).Find(&tickets).Error; err != nil {
			return res, err
		}
		byID := make(map[int]TicketTransaction, len(tickets))
		for _, t := range tickets {
			byID[t.ID] = t
		}
		for _, tx := range linked {
			t, ok := byID[*tx.RelatedTicketId]
			if !ok {
				report(IntegrityCheckSnapshotDrift, "SettlementTransaction", tx.ID, tx.TransactionDate,
					fmt.Sprintf("related ticket %d no longer exists", *tx.RelatedTicketId))
				continue
			}
			if tx.RelatedTicketAmount == nil || !utils.AmountsEqual(*tx.RelatedTicketAmount, t.TicketAmount) {
				snap := "null"
				if tx.RelatedTicketAmount != nil {
					snap = tx.RelatedTicketAmount.StringFixed(2)
				}
				report(IntegrityCheckSnapshotDrift, "SettlementTransaction", tx.ID, tx.TransactionDate,
					fmt.Sprintf("related_ticket_amount=%s != ticket_amount=%s", snap, t.TicketAmount.StringFixed(2)))
			}
		}
	}

	// 4) Trip-close UPI total vs sum of UPI tickets on that trip
	var trips []TripClose
	if err := db.Where("start_date BETWEEN ? AND ?", fromDate, toDate).Find(&trips).Error; err != nil {
		return res, err
	}
	for _, trip := range trips {
		var tickets []TicketTransaction
		if err := db.
			Where("device_id = ? AND trip_number = ? AND ticket_date = ? AND ticket_status = ?",
				trip.PalmtecId, strconv.Itoa(trip.TripNo), trip.StartDate, TicketPaymentUPI).
			Find(&tickets).Error; err != nil {
			return res, err
		}
		if len(tickets) == 0 {
			continue
		}
		sum := decimal.Zero
		for _, t := range tickets {
			sum = sum.Add(t.TicketAmount)
		}
		if !utils.AmountsEqual(sum, trip.UpiTicketAmount) {
			report(IntegrityCheckTripUpiTotal, "TripClose", trip.ID, trip.StartDate,
				fmt.Sprintf("upi_ticket_amount=%s != sum(upi tickets)=%s", trip.UpiTicketAmount.StringFixed(2), sum.StringFixed(2)))
		}
	}

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"field":          "IntegrityChecks",
			"from_date":      fromDate,
			"to_date":        toDate,
			"correlation_id": cid,
			"findings":       res.Total(),
			"trips_checked":  len(trips),
		}).Info("integrity checks completed")
	}
	return res, nil
}
