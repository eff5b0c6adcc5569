package settlement

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"bitbucket.org/mmdatafocus/settlement_backend/config"
	"bitbucket.org/mmdatafocus/settlement_backend/utils"
	"bitbucket.org/mmdatafocus/settlement_backend/workflow"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// PubSubPushEnvelope is the body a Pub/Sub push subscription posts.
// Data is base64 in JSON; unmarshalling into []byte decodes it.
type PubSubPushEnvelope struct {
	Message struct {
		Data       []byte            `json:"data,omitempty"`
		ID         string            `json:"messageId"`
		LegacyID   string            `json:"message_id"`
		Attributes map[string]string `json:"attributes,omitempty"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

func (e PubSubPushEnvelope) MessageID() string {
	if e.Message.ID != "" {
		return e.Message.ID
	}
	return e.Message.LegacyID
}

// POST /pubsub/ticket-arrived
//
// 204 acks the message; any other status makes Pub/Sub redeliver it.
// Poisoned messages (unreadable, or pointing at rows that do not exist) are
// acked so they do not loop.
func ticketArrivedPubSubHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			config.LogError(logger, "settlement", "ticketArrivedPubSubHandler", "io.ReadAll", nil, err)
			c.Status(http.StatusNoContent)
			return
		}

		var env PubSubPushEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			config.LogError(logger, "settlement", "ticketArrivedPubSubHandler", "Unmarshal body", string(body), err)
			c.Status(http.StatusNoContent)
			return
		}

		var m config.TicketArrivedMessage
		if err := json.Unmarshal(env.Message.Data, &m); err != nil {
			config.LogError(logger, "settlement", "ticketArrivedPubSubHandler", "Unmarshal pubsub message", string(env.Message.Data), err)
			c.Status(http.StatusNoContent)
			return
		}
		if m.TicketId <= 0 && (m.ReferenceNumber == "" || m.TicketDate == "") {
			config.LogError(logger, "settlement", "ticketArrivedPubSubHandler", "Invalid pubsub message (missing required fields)", m,
				fmt.Errorf("ticket_id or reference_number/ticket_date required"))
			c.Status(http.StatusNoContent)
			return
		}

		correlationID := m.CorrelationId
		if correlationID == "" {
			correlationID = env.MessageID()
		}
		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), correlationID)

		err = workflow.ProcessTicketArrivedWorkflow(ctx, config.GetDB(), logger, m, env.MessageID())
		if err != nil {
			fields := logrus.Fields{
				"field":            "ticketArrivedPubSubHandler",
				"ticket_id":        m.TicketId,
				"reference_number": m.ReferenceNumber,
				"message_id":       env.MessageID(),
				"correlation_id":   correlationID,
			}
			if utils.IsNotFound(err) || utils.IsValidation(err) {
				logger.WithFields(fields).Warn("dropping ticket arrival: " + err.Error())
				c.Status(http.StatusNoContent)
				return
			}
			if errors.Is(err, workflow.ErrIdempotencyInProgress) {
				logger.WithFields(fields).Info("ticket arrival already in progress; asking for redelivery")
			} else {
				logger.WithFields(fields).Error("pubsub processing failed: " + err.Error())
			}
			c.Status(http.StatusInternalServerError)
			return
		}

		c.Status(http.StatusNoContent)
	}
}
