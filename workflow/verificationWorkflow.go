package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/settlement_backend/config"
	"bitbucket.org/mmdatafocus/settlement_backend/models"
	"bitbucket.org/mmdatafocus/settlement_backend/utils"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Actor is the authenticated human behind a verification or manual match.
type Actor struct {
	UserId int
	Name   string
}

type VerifyInput struct {
	TransactionId      int
	VerificationStatus string
	VerificationNotes  string
}

// VerifySettlement records a human disposition on one settlement.
//
// The status, notes, verifier and timestamp are written by a single UPDATE
// inside a transaction that holds the row lock, and a VerificationEvent is
// appended in the same transaction. Any failure rolls back both. A later call
// overwrites the current projection; history stays in verification_events.
func VerifySettlement(ctx context.Context, db *gorm.DB, in VerifyInput, actor Actor) (out *models.SettlementTransaction, err error) {
	ctx, span := tracer.Start(ctx, "VerifySettlement")
	span.SetAttributes(attribute.Int("transaction_id", in.TransactionId))
	defer span.End()

	status, perr := models.ParseVerificationStatus(in.VerificationStatus)
	defer func() {
		result := "ok"
		if err != nil {
			span.RecordError(err)
			result = verifyResultLabel(err)
		}
		config.VerificationTotal.WithLabelValues(string(status), result).Inc()
	}()

	if perr != nil || !status.IsDisposition() {
		return nil, utils.NewValidationError("verification_status must be one of VERIFIED, REJECTED, FLAGGED, DISPUTED")
	}
	if in.TransactionId <= 0 {
		return nil, utils.NewValidationError("transaction_id is required")
	}
	if actor.UserId <= 0 {
		return nil, utils.NewUnauthorizedError("a signed-in user is required to verify")
	}
	notes := strings.TrimSpace(in.VerificationNotes)

	var updated models.SettlementTransaction
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s models.SettlementTransaction
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&s, in.TransactionId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NewNotFoundError("settlement transaction %d not found", in.TransactionId)
			}
			return err
		}

		if status == models.VerificationStatusVerified &&
			s.ReconciliationStatus == models.ReconciliationStatusAmountMismatch && notes == "" {
			return utils.NewValidationError("verification_notes are required to verify an AMOUNT_MISMATCH transaction")
		}

		now := time.Now().UTC()
		res := tx.Model(&models.SettlementTransaction{}).
			Where("id = ? AND version = ?", s.ID, s.Version).
			Updates(map[string]interface{}{
				"verification_status": status,
				"verification_notes":  notes,
				"verified_by":         actor.UserId,
				"verified_by_name":    actor.Name,
				"verified_at":         now,
				"version":             gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return utils.NewConflictError("settlement transaction %d was modified concurrently", s.ID)
		}

		cid, _ := utils.GetCorrelationIdFromContext(ctx)
		event := models.VerificationEvent{
			TransactionId:        s.ID,
			Action:               models.VerificationActionVerify,
			FromStatus:           s.VerificationStatus,
			ToStatus:             status,
			ReconciliationStatus: s.ReconciliationStatus,
			TicketId:             s.RelatedTicketId,
			Notes:                notes,
			UserId:               actor.UserId,
			UserName:             actor.Name,
			CorrelationId:        cid,
			CreatedAt:            now,
		}
		if err := tx.Create(&event).Error; err != nil {
			return err
		}
		return tx.First(&updated, s.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func verifyResultLabel(err error) string {
	switch {
	case utils.IsValidation(err):
		return "validation"
	case utils.IsNotFound(err):
		return "not_found"
	case utils.IsConflict(err):
		return "conflict"
	default:
		return "error"
	}
}

// ListVerificationHistory returns the audit trail for one settlement, oldest first.
func ListVerificationHistory(ctx context.Context, db *gorm.DB, transactionId int) ([]models.VerificationEvent, error) {
	var count int64
	if err := db.WithContext(ctx).Model(&models.SettlementTransaction{}).Where("id = ?", transactionId).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, utils.NewNotFoundError("settlement transaction %d not found", transactionId)
	}
	var events []models.VerificationEvent
	err := db.WithContext(ctx).
		Where("transaction_id = ?", transactionId).
		Order("created_at ASC").Order("id ASC").
		Find(&events).Error
	return events, err
}
