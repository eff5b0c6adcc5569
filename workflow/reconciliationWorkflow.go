package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/settlement_backend/config"
	"bitbucket.org/mmdatafocus/settlement_backend/models"
	"bitbucket.org/mmdatafocus/settlement_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var tracer = otel.Tracer("settlement-workflow")

const maxConflictRetries = 3

// MatchResult is the outcome of evaluating one settlement against the ticket ledger.
type MatchResult struct {
	Status models.ReconciliationStatus
	Ticket *models.TicketTransaction
	Reason string
}

// EvaluateMatch decides the reconciliation status of s without writing anything.
// MANUAL_MATCH is returned unchanged; the engine never overwrites it.
func EvaluateMatch(tx *gorm.DB, s *models.SettlementTransaction) (MatchResult, error) {
	if s.ReconciliationStatus == models.ReconciliationStatusManualMatch {
		return MatchResult{Status: models.ReconciliationStatusManualMatch}, nil
	}
	if !s.IsChecksumValid {
		return MatchResult{Status: models.ReconciliationStatusPending, Reason: "Checksum validation failed"}, nil
	}
	if s.PaymentStatus != models.PaymentStatusApproved {
		return MatchResult{Status: models.ReconciliationStatusPending, Reason: fmt.Sprintf("Payment declined (responseCode %s)", s.ResponseCode)}, nil
	}

	invoice := strings.TrimSpace(s.InvoiceNumber)
	if invoice == "" {
		return MatchResult{Status: models.ReconciliationStatusNotFound, Reason: "No invoice number provided"}, nil
	}

	// Only UPI tickets are paid through the gateway; cash tickets never match.
	var candidates []models.TicketTransaction
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("reference_number = ? AND ticket_date = ?", invoice, s.TransactionDate).
		Where("ticket_status = ?", models.TicketPaymentUPI).
		Order("id ASC").
		Limit(2).
		Find(&candidates).Error; err != nil {
		return MatchResult{}, err
	}

	switch len(candidates) {
	case 0:
		return MatchResult{
			Status: models.ReconciliationStatusNotFound,
			Reason: fmt.Sprintf("No ticket found for invoice %s on %s", invoice, s.TransactionDate),
		}, nil
	case 1:
	default:
		return MatchResult{
			Status: models.ReconciliationStatusDuplicate,
			Reason: fmt.Sprintf("Multiple tickets found for invoice %s on %s", invoice, s.TransactionDate),
		}, nil
	}

	ticket := candidates[0]
	if !utils.AmountsEqual(ticket.TicketAmount, s.TransactionAmount) {
		return MatchResult{
			Status: models.ReconciliationStatusAmountMismatch,
			Ticket: &ticket,
			Reason: fmt.Sprintf("Amount mismatch: transaction %s, ticket %s",
				s.TransactionAmount.StringFixed(2), ticket.TicketAmount.StringFixed(2)),
		}, nil
	}

	claimedBy, err := ticketClaimedBy(tx, ticket.ID, s.ID)
	if err != nil {
		return MatchResult{}, err
	}
	if claimedBy != "" {
		return MatchResult{
			Status: models.ReconciliationStatusDuplicate,
			Reason: "Ticket already paid by transaction: " + claimedBy,
		}, nil
	}
	return MatchResult{Status: models.ReconciliationStatusAutoMatched, Ticket: &ticket}, nil
}

// ticketClaimedBy returns the gateway transactionID that already holds ticketId, if any.
func ticketClaimedBy(tx *gorm.DB, ticketId, excludeId int) (string, error) {
	var other models.SettlementTransaction
	err := tx.Select("id, transaction_id").
		Where("related_ticket_id = ? AND id <> ?", ticketId, excludeId).
		Where("reconciliation_status IN ?", []models.ReconciliationStatus{
			models.ReconciliationStatusAutoMatched, models.ReconciliationStatusManualMatch,
		}).
		Limit(1).
		Find(&other).Error
	if err != nil || other.ID == 0 {
		return "", err
	}
	return other.TransactionID, nil
}

func matchUpdates(s *models.SettlementTransaction, m MatchResult, now time.Time) map[string]interface{} {
	updates := map[string]interface{}{
		"reconciliation_status": m.Status,
		"version":               gorm.Expr("version + 1"),
	}
	if m.Reason == "" {
		updates["reconciliation_error"] = nil
	} else {
		updates["reconciliation_error"] = m.Reason
	}
	if m.Status == models.ReconciliationStatusAutoMatched {
		updates["reconciled_at"] = now
	} else {
		updates["reconciled_at"] = nil
	}
	if m.Ticket != nil {
		amount := m.Ticket.TicketAmount
		updates["related_ticket_id"] = m.Ticket.ID
		updates["related_ticket_number"] = m.Ticket.TicketNumber
		updates["related_ticket_amount"] = amount
		updates["related_ticket_date"] = m.Ticket.TicketDate
	} else {
		updates["related_ticket_id"] = nil
		updates["related_ticket_number"] = nil
		updates["related_ticket_amount"] = nil
		updates["related_ticket_date"] = nil
	}
	if s.IsReconcilable() {
		updates["processing_status"] = models.ProcessingStatusPendingVerification
	}
	return updates
}

// unchanged reports whether applying m would leave the row as it is.
func unchanged(s *models.SettlementTransaction, m MatchResult) bool {
	if s.ReconciliationStatus != m.Status {
		return false
	}
	current := ""
	if s.ReconciliationError != nil {
		current = *s.ReconciliationError
	}
	if current != m.Reason {
		return false
	}
	switch {
	case m.Ticket == nil:
		return s.RelatedTicketId == nil
	case s.RelatedTicketId == nil:
		return false
	default:
		return *s.RelatedTicketId == m.Ticket.ID
	}
}

// ReconcileTransaction re-evaluates one settlement under the Redis lock and a row lock.
// A lost optimistic version check is returned as a ConflictError.
func ReconcileTransaction(ctx context.Context, db *gorm.DB, transactionId int) (*models.SettlementTransaction, error) {
	out, _, err := reconcileOne(ctx, db, transactionId)
	return out, err
}

func reconcileOne(ctx context.Context, db *gorm.DB, transactionId int) (*models.SettlementTransaction, bool, error) {
	ctx, span := tracer.Start(ctx, "ReconcileTransaction")
	span.SetAttributes(attribute.Int("transaction_id", transactionId))
	defer span.End()

	release := AcquireReconcileLock(ctx, transactionId)
	defer release()

	var out models.SettlementTransaction
	changed := false
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s models.SettlementTransaction
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&s, transactionId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NewNotFoundError("settlement transaction %d not found", transactionId)
			}
			return err
		}

		m, err := EvaluateMatch(tx, &s)
		if err != nil {
			return err
		}
		config.ReconciliationOutcomes.WithLabelValues(string(m.Status)).Inc()
		if s.ReconciliationStatus == models.ReconciliationStatusManualMatch || unchanged(&s, m) {
			out = s
			return nil
		}

		res := tx.Model(&models.SettlementTransaction{}).
			Where("id = ? AND version = ?", s.ID, s.Version).
			Updates(matchUpdates(&s, m, time.Now().UTC()))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			config.ReconciliationConflicts.Inc()
			return utils.NewConflictError("settlement transaction %d was modified concurrently", s.ID)
		}
		changed = true
		return tx.First(&out, s.ID).Error
	})
	if err != nil {
		span.RecordError(err)
		return nil, false, err
	}
	span.SetAttributes(attribute.String("reconciliation_status", string(out.ReconciliationStatus)))
	return &out, changed, nil
}

// ReconcileWithRetry retries ConflictErrors a few times for in-process callers.
func ReconcileWithRetry(ctx context.Context, db *gorm.DB, transactionId int) (*models.SettlementTransaction, error) {
	out, _, err := reconcileWithRetry(ctx, db, transactionId)
	return out, err
}

func reconcileWithRetry(ctx context.Context, db *gorm.DB, transactionId int) (*models.SettlementTransaction, bool, error) {
	var lastErr error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		out, changed, err := reconcileOne(ctx, db, transactionId)
		if err == nil {
			return out, changed, nil
		}
		if !utils.IsConflict(err) {
			return nil, false, err
		}
		lastErr = err
	}
	return nil, false, lastErr
}

// ReconcileForTicket re-evaluates the PENDING and NOT_FOUND settlements that
// share a newly arrived ticket's reference number and business day.
func ReconcileForTicket(ctx context.Context, db *gorm.DB, referenceNumber, ticketDate string) ([]*models.SettlementTransaction, error) {
	logger := config.GetLogger()
	referenceNumber = strings.TrimSpace(referenceNumber)
	if referenceNumber == "" {
		return nil, nil
	}

	var ids []int
	if err := db.WithContext(ctx).Model(&models.SettlementTransaction{}).
		Where("invoice_number = ? AND transaction_date = ?", referenceNumber, ticketDate).
		Where("reconciliation_status IN ?", []models.ReconciliationStatus{
			models.ReconciliationStatusPending, models.ReconciliationStatusNotFound,
		}).
		Order("id ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}

	out := make([]*models.SettlementTransaction, 0, len(ids))
	for _, id := range ids {
		s, err := ReconcileWithRetry(ctx, db, id)
		if err != nil {
			config.LogError(logger, "reconciliationWorkflow.go", "ReconcileForTicket", "ReconcileWithRetry",
				map[string]interface{}{"transaction_id": id, "reference_number": referenceNumber}, err)
			return out, err
		}
		out = append(out, s)
	}
	if len(ids) > 0 {
		logger.WithFields(logrus.Fields{
			"field":            "ReconcileForTicket",
			"reference_number": referenceNumber,
			"ticket_date":      ticketDate,
			"evaluated":        len(ids),
		}).Info("re-evaluated settlements for arrived ticket")
	}
	return out, nil
}

// ReconcileRangeResult summarizes an on-demand or backfill run.
type ReconcileRangeResult struct {
	FromDate  string         `json:"from_date"`
	ToDate    string         `json:"to_date"`
	Evaluated int            `json:"evaluated"`
	Changed   int            `json:"changed"`
	Failed    int            `json:"failed"`
	Outcomes  map[string]int `json:"outcomes"`
}

// ReconcileRange re-runs the engine over every non-manual settlement in [fromDate, toDate].
// A failure on one row is logged and counted; the run continues.
func ReconcileRange(ctx context.Context, db *gorm.DB, fromDate, toDate string) (*ReconcileRangeResult, error) {
	fromDate, toDate, err := utils.ValidateDateRange(fromDate, toDate)
	if err != nil {
		return nil, err
	}
	logger := config.GetLogger()

	var ids []int
	if err := db.WithContext(ctx).Model(&models.SettlementTransaction{}).
		Where("transaction_date BETWEEN ? AND ?", fromDate, toDate).
		Where("reconciliation_status <> ?", models.ReconciliationStatusManualMatch).
		Order("id ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}

	res := &ReconcileRangeResult{FromDate: fromDate, ToDate: toDate, Outcomes: map[string]int{}}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		s, changed, err := reconcileWithRetry(ctx, db, id)
		if err != nil {
			res.Failed++
			config.LogError(logger, "reconciliationWorkflow.go", "ReconcileRange", "reconcileWithRetry",
				map[string]interface{}{"transaction_id": id}, err)
			continue
		}
		res.Evaluated++
		if changed {
			res.Changed++
		}
		res.Outcomes[string(s.ReconciliationStatus)]++
	}

	logger.WithFields(logrus.Fields{
		"field":     "ReconcileRange",
		"from_date": fromDate,
		"to_date":   toDate,
		"evaluated": res.Evaluated,
		"changed":   res.Changed,
		"failed":    res.Failed,
	}).Info("reconciliation run completed")
	return res, nil
}
