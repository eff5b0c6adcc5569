package workflow

import (
	"context"
	"errors"
	"strconv"

	"bitbucket.org/mmdatafocus/settlement_backend/config"
	"bitbucket.org/mmdatafocus/settlement_backend/models"
	"bitbucket.org/mmdatafocus/settlement_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const ticketArrivedHandler = "ticket.arrived"

// ProcessTicketArrivedWorkflow re-evaluates the settlements a new ticket may resolve.
// messageId is the Pub/Sub message id; when set, redeliveries are skipped once
// the first delivery succeeded. ErrIdempotencyInProgress means "retry later".
func ProcessTicketArrivedWorkflow(ctx context.Context, db *gorm.DB, logger *logrus.Logger, msg config.TicketArrivedMessage, messageId string) error {
	// Arrivals reconcile across companies; settlements carry no company.
	ctx = utils.SetSkipCompanyScopeInContext(ctx, true)
	dbCtx := db.WithContext(ctx)

	scope := msg.CompanyCode
	if scope == "" {
		scope = "-"
	}
	if messageId != "" {
		skip, err := BeginIdempotency(dbCtx, scope, ticketArrivedHandler, messageId)
		if err != nil {
			return err
		}
		if skip {
			logger.WithFields(logrus.Fields{
				"field":      "ProcessTicketArrivedWorkflow",
				"message_id": messageId,
				"ticket_id":  msg.TicketId,
			}).Info("duplicate delivery skipped")
			return nil
		}
	}

	err := reconcileArrivedTicket(ctx, dbCtx, msg)
	if messageId != "" {
		if err != nil {
			if markErr := MarkIdempotencyFailed(dbCtx, scope, ticketArrivedHandler, messageId, err); markErr != nil {
				config.LogError(logger, "ticketArrivedWorkflow.go", "ProcessTicketArrivedWorkflow", "MarkIdempotencyFailed",
					map[string]interface{}{"message_id": messageId, "ticket_id": msg.TicketId}, markErr)
			}
			return err
		}
		return MarkIdempotencySucceeded(dbCtx, scope, ticketArrivedHandler, messageId)
	}
	return err
}

func reconcileArrivedTicket(ctx context.Context, db *gorm.DB, msg config.TicketArrivedMessage) error {
	ref, date := msg.ReferenceNumber, msg.TicketDate
	if msg.TicketId > 0 && (ref == "" || date == "") {
		var ticket models.TicketTransaction
		if err := db.First(&ticket, msg.TicketId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NewNotFoundError("ticket %s not found", strconv.Itoa(msg.TicketId))
			}
			return err
		}
		ref, date = ticket.ReferenceNumber, ticket.TicketDate
	}
	_, err := ReconcileForTicket(ctx, db, ref, date)
	return err
}
