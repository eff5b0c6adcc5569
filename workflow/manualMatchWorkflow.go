package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/settlement_backend/models"
	"bitbucket.org/mmdatafocus/settlement_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ManualMatchInput struct {
	TransactionId int
	TicketId      int
	Notes         string
}

// ManualMatch links a ticket chosen by an operator to a settlement. The result
// is MANUAL_MATCH, which the engine never overwrites on later runs.
func ManualMatch(ctx context.Context, db *gorm.DB, in ManualMatchInput, actor Actor) (*models.SettlementTransaction, error) {
	if in.TransactionId <= 0 || in.TicketId <= 0 {
		return nil, utils.NewValidationError("transaction_id and ticket_id are required")
	}
	if actor.UserId <= 0 {
		return nil, utils.NewUnauthorizedError("a signed-in user is required to match manually")
	}
	notes := strings.TrimSpace(in.Notes)

	release := AcquireReconcileLock(ctx, in.TransactionId)
	defer release()

	var updated models.SettlementTransaction
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s models.SettlementTransaction
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&s, in.TransactionId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NewNotFoundError("settlement transaction %d not found", in.TransactionId)
			}
			return err
		}
		// The ticket row lock serializes claims on one ticket across transactions.
		var ticket models.TicketTransaction
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&ticket, in.TicketId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NewNotFoundError("ticket %d not found", in.TicketId)
			}
			return err
		}
		claimedBy, err := ticketClaimedBy(tx, ticket.ID, s.ID)
		if err != nil {
			return err
		}
		if claimedBy != "" {
			return utils.NewValidationError("Ticket already paid by transaction: %s", claimedBy)
		}

		now := time.Now().UTC()
		res := tx.Model(&models.SettlementTransaction{}).
			Where("id = ? AND version = ?", s.ID, s.Version).
			Updates(map[string]interface{}{
				"reconciliation_status":       models.ReconciliationStatusManualMatch,
				"reconciliation_error":        nil,
				"reconciled_at":               now,
				"manually_reconciled_by":      actor.UserId,
				"manually_reconciled_by_name": actor.Name,
				"related_ticket_id":           ticket.ID,
				"related_ticket_number":       ticket.TicketNumber,
				"related_ticket_amount":       ticket.TicketAmount,
				"related_ticket_date":         ticket.TicketDate,
				"processing_status":           models.ProcessingStatusPendingVerification,
				"version":                     gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return utils.NewConflictError("settlement transaction %d was modified concurrently", s.ID)
		}

		cid, _ := utils.GetCorrelationIdFromContext(ctx)
		ticketId := ticket.ID
		if err := tx.Create(&models.VerificationEvent{
			TransactionId:        s.ID,
			Action:               models.VerificationActionManualMatch,
			FromStatus:           s.VerificationStatus,
			ToStatus:             s.VerificationStatus,
			ReconciliationStatus: models.ReconciliationStatusManualMatch,
			TicketId:             &ticketId,
			Notes:                notes,
			UserId:               actor.UserId,
			UserName:             actor.Name,
			CorrelationId:        cid,
			CreatedAt:            now,
		}).Error; err != nil {
			return err
		}
		return tx.First(&updated, s.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}
