package ingest

import (
	"context"

	"bitbucket.org/mmdatafocus/settlement_backend/config"
	"bitbucket.org/mmdatafocus/settlement_backend/models"
	"bitbucket.org/mmdatafocus/settlement_backend/utils"
	"bitbucket.org/mmdatafocus/settlement_backend/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PublishTicketArrived announces a stored ticket.
//
// With PUBSUB_ENABLED the event goes to the ticket topic and the push handler
// re-evaluates settlements. Otherwise, or when publishing fails, the
// re-evaluation runs in-process before returning.
func PublishTicketArrived(ctx context.Context, db *gorm.DB, t *models.TicketTransaction) error {
	logger := config.GetLogger()
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	msg := config.TicketArrivedMessage{
		TicketId:        t.ID,
		ReferenceNumber: t.ReferenceNumber,
		TicketDate:      t.TicketDate,
		CompanyCode:     t.CompanyCode,
		CorrelationId:   cid,
	}

	if config.PubSubEnabled() {
		id, err := config.PublishTicketArrivedWithResult(ctx, msg)
		if err == nil {
			logger.WithFields(logrus.Fields{
				"field":            "PublishTicketArrived",
				"ticket_id":        t.ID,
				"reference_number": t.ReferenceNumber,
				"message_id":       id,
				"correlation_id":   cid,
			}).Info("ticket arrival published")
			return nil
		}
		logger.WithFields(logrus.Fields{
			"field":     "PublishTicketArrived",
			"ticket_id": t.ID,
		}).Warn("publish failed; reconciling in-process: " + err.Error())
	}

	return workflow.ProcessTicketArrivedWorkflow(ctx, db, logger, msg, "")
}
