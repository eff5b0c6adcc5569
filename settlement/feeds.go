package settlement

import (
	"net/http"

	"bitbucket.org/mmdatafocus/settlement_backend/config"
	"bitbucket.org/mmdatafocus/settlement_backend/models"
	"bitbucket.org/mmdatafocus/settlement_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	feedSettlements = "settlements"
	feedTickets     = "tickets"
	feedTripCloses  = "trip_closes"
)

// readCursor parses since/since_id/cursor. ok is false when a since value was
// given but could not be read; the caller then answers with an empty page.
func readCursor(c *gin.Context, feed string) (cursor *models.FeedCursor, ok bool) {
	cursor, err := models.ParseFeedCursor(c.Query("since"), c.Query("since_id"), c.Query("cursor"))
	if err != nil {
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		config.GetLogger().WithFields(logrus.Fields{
			"field":          "readCursor",
			"feed":           feed,
			"since":          c.Query("since"),
			"since_id":       c.Query("since_id"),
			"correlation_id": cid,
		}).Warn("invalid since cursor; returning empty page: " + err.Error())
		return nil, false
	}
	return cursor, true
}

func feedMode(cursor *models.FeedCursor) string {
	if cursor == nil {
		return "full"
	}
	return "since"
}

// respondFeed writes {message, data, count} and, when rows exist, the cursor
// a client sends back on its next since-call.
func respondFeed[T models.FeedRow](c *gin.Context, feed string, cursor *models.FeedCursor, rows []T) {
	if rows == nil {
		rows = []T{}
	}
	config.FeedRowsServed.WithLabelValues(feed, feedMode(cursor)).Add(float64(len(rows)))
	body := gin.H{
		"message": "success",
		"data":    rows,
		"count":   len(rows),
	}
	if next := models.CursorOf(rows); next != nil {
		body["cursor"] = next.String()
	}
	c.JSON(http.StatusOK, body)
}

func serveFeed[T models.FeedRow](c *gin.Context, funcName, feed string, scope func(*gorm.DB) *gorm.DB) {
	cursor, ok := readCursor(c, feed)
	if !ok {
		respondFeed(c, feed, nil, []T{})
		return
	}
	rows, err := models.ListFeed[T](c.Request.Context(), config.GetDB(), scope, cursor, config.FeedPageLimit())
	if err != nil {
		respondError(c, funcName, err)
		return
	}
	respondFeed(c, feed, cursor, rows)
}

// GET /get_settlement_data
func getSettlementDataHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		f, err := models.NewSettlementFilter(
			c.Query("from_date"),
			c.Query("to_date"),
			c.Query("verification_status"),
			c.Query("reconciliation_status"),
			c.Query("payment_status"),
			c.Query("merchant_id"),
		)
		if err != nil {
			respondError(c, "getSettlementDataHandler", err)
			return
		}
		serveFeed[models.SettlementTransaction](c, "getSettlementDataHandler", feedSettlements, f.Scope())
	}
}

// GET /get_all_transaction_data
func getAllTransactionDataHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		from, to, err := utils.ValidateDateRange(c.Query("from_date"), c.Query("to_date"))
		if err != nil {
			respondError(c, "getAllTransactionDataHandler", err)
			return
		}
		serveFeed[models.TicketTransaction](c, "getAllTransactionDataHandler", feedTickets,
			models.DateColumnScope("ticket_date", from, to))
	}
}

// GET /get_all_trip_close_data
func getAllTripCloseDataHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		from, to, err := utils.ValidateDateRange(c.Query("from_date"), c.Query("to_date"))
		if err != nil {
			respondError(c, "getAllTripCloseDataHandler", err)
			return
		}
		serveFeed[models.TripClose](c, "getAllTripCloseDataHandler", feedTripCloses,
			models.DateColumnScope("start_date", from, to))
	}
}
