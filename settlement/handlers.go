package settlement

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"bitbucket.org/mmdatafocus/settlement_backend/config"
	"bitbucket.org/mmdatafocus/settlement_backend/middlewares"
	"bitbucket.org/mmdatafocus/settlement_backend/models"
	"bitbucket.org/mmdatafocus/settlement_backend/workflow"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/singleflight"
)

// Identical summary requests in flight share one GROUP BY query.
var summaryGroup singleflight.Group

func summaryKey(f models.SettlementFilter) string {
	parts := []string{f.FromDate, f.ToDate, "", "", "", f.MerchantId}
	if f.VerificationStatus != nil {
		parts[2] = string(*f.VerificationStatus)
	}
	if f.ReconciliationStatus != nil {
		parts[3] = string(*f.ReconciliationStatus)
	}
	if f.PaymentStatus != nil {
		parts[4] = string(*f.PaymentStatus)
	}
	return strings.Join(parts, "|")
}

// computeSummary detaches from the caller's cancellation so one client going
// away does not fail the other callers sharing the query.
func computeSummary(ctx context.Context, f models.SettlementFilter) (*models.SettlementSummary, error) {
	v, err, _ := summaryGroup.Do(summaryKey(f), func() (interface{}, error) {
		return models.ComputeSettlementSummary(context.WithoutCancel(ctx), config.GetDB(), f)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.SettlementSummary), nil
}

// GET /get_settlement_summary
func getSettlementSummaryHandler() gin.HandlerFunc {
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
			respondError(c, "getSettlementSummaryHandler", err)
			return
		}
		summary, err := computeSummary(c.Request.Context(), f)
		if err != nil {
			respondError(c, "getSettlementSummaryHandler", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "success", "data": summary})
	}
}

type verifySettlementRequest struct {
	TransactionId      int    `json:"transaction_id"`
	VerificationStatus string `json:"verification_status"`
	VerificationNotes  string `json:"verification_notes"`
}

// POST /verify_settlement
//
// Returns the updated transaction and the unfiltered summary for its
// transaction date, so the dashboard can replace both without refetching.
func verifySettlementHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req verifySettlementRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		ctx := c.Request.Context()
		tx, err := workflow.VerifySettlement(ctx, config.GetDB(), workflow.VerifyInput{
			TransactionId:      req.TransactionId,
			VerificationStatus: req.VerificationStatus,
			VerificationNotes:  req.VerificationNotes,
		}, actorFrom(ctx))
		if err != nil {
			respondError(c, "verifySettlementHandler", err)
			return
		}

		body := gin.H{"message": "Transaction verified successfully", "data": tx}
		f := models.SettlementFilter{FromDate: tx.TransactionDate, ToDate: tx.TransactionDate}
		if summary, err := models.ComputeSettlementSummary(ctx, config.GetDB(), f); err == nil {
			body["summary"] = summary
		} else {
			// The verification is committed; a failed summary must not turn it into an error.
			config.LogError(config.GetLogger(), "settlement", "verifySettlementHandler", "ComputeSettlementSummary",
				map[string]interface{}{"transaction_id": tx.ID}, err)
		}
		c.JSON(http.StatusOK, body)
	}
}

type manualMatchRequest struct {
	TransactionId int    `json:"transaction_id"`
	TicketId      int    `json:"ticket_id"`
	Notes         string `json:"notes"`
}

// POST /manual_match
func manualMatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req manualMatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		ctx := c.Request.Context()
		tx, err := workflow.ManualMatch(ctx, config.GetDB(), workflow.ManualMatchInput{
			TransactionId: req.TransactionId,
			TicketId:      req.TicketId,
			Notes:         req.Notes,
		}, actorFrom(ctx))
		if err != nil {
			respondError(c, "manualMatchHandler", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Transaction matched successfully", "data": tx})
	}
}

type reconcileRangeRequest struct {
	FromDate string `json:"from_date"`
	ToDate   string `json:"to_date"`
}

// POST /reconcile_settlements re-runs the engine over a date range.
func reconcileSettlementsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req reconcileRangeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		res, err := workflow.ReconcileRange(c.Request.Context(), config.GetDB(), req.FromDate, req.ToDate)
		if err != nil {
			respondError(c, "reconcileSettlementsHandler", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "success", "data": res})
	}
}

// GET /settlement_history/:id
func settlementHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a positive integer"})
			return
		}
		events, err := workflow.ListVerificationHistory(c.Request.Context(), config.GetDB(), id)
		if err != nil {
			respondError(c, "settlementHistoryHandler", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "success", "data": events, "count": len(events)})
	}
}

// RegisterRoutes mounts the dashboard API. Every route needs a session
// except the Pub/Sub push endpoint, which is authenticated by the push subscription.
func RegisterRoutes(r gin.IRouter) {
	r.POST("/pubsub/ticket-arrived", ticketArrivedPubSubHandler())

	authed := r.Group("/", middlewares.RequireSession())
	authed.GET("/get_settlement_data", getSettlementDataHandler())
	authed.GET("/get_settlement_summary", getSettlementSummaryHandler())
	authed.POST("/verify_settlement", verifySettlementHandler())
	authed.GET("/get_all_transaction_data", getAllTransactionDataHandler())
	authed.GET("/get_all_trip_close_data", getAllTripCloseDataHandler())
	authed.POST("/manual_match", manualMatchHandler())
	authed.POST("/reconcile_settlements", reconcileSettlementsHandler())
	authed.GET("/settlement_history/:id", settlementHistoryHandler())
}
