package ingest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"bitbucket.org/mmdatafocus/settlement_backend/config"
	"bitbucket.org/mmdatafocus/settlement_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// gatewayReply is the body shape the gateway expects, including on errors.
func gatewayReply(c *gin.Context, status int, message string, extra gin.H) {
	body := gin.H{"status": status, "message": message}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(status, body)
}

// POST /postSettlementDetails
func postSettlementDetailsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			gatewayReply(c, http.StatusBadRequest, "Invalid JSON format", nil)
			return
		}
		var post GatewayPost
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&post); err != nil {
			gatewayReply(c, http.StatusBadRequest, "Invalid JSON format", nil)
			return
		}

		out, err := RecordGatewayPost(c.Request.Context(), config.GetDB(), post, raw)
		switch {
		case err == nil:
		case IsChecksumError(err):
			logger.WithFields(logrus.Fields{
				"field":          "postSettlementDetailsHandler",
				"transaction_id": post.TransactionID,
				"merchant_id":    post.MerchantId,
			}).Warn("gateway checksum mismatch")
			gatewayReply(c, http.StatusUnauthorized, "Checksum Error", nil)
			return
		case utils.IsValidation(err):
			gatewayReply(c, http.StatusBadRequest, err.Error(), nil)
			return
		default:
			config.LogError(logger, "ingest", "postSettlementDetailsHandler", "RecordGatewayPost",
				map[string]interface{}{"transaction_id": post.TransactionID}, err)
			gatewayReply(c, http.StatusInternalServerError, "Data Entry failed", nil)
			return
		}

		gatewayReply(c, http.StatusOK, "success", gin.H{"merchant_refTxnId": out.Transaction.BillNumber})
	}
}

func deviceReply(c *gin.Context, status int, body string) {
	c.Data(status, "text/plain; charset=utf-8", []byte(body))
}

func deviceAck(raw string) string {
	return "OK#SUCCESS#fn=" + firstRunes(raw, 32) + "#"
}

func firstRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func respondDeviceError(c *gin.Context, funcName, raw string, err error) {
	if de, ok := asDeviceError(err); ok {
		config.GetLogger().WithFields(logrus.Fields{
			"field": funcName,
			"code":  de.Code,
			"fn":    raw,
		}).Warn("rejected device upload: " + de.Error())
		deviceReply(c, de.Status, de.Code)
		return
	}
	config.LogError(config.GetLogger(), "ingest", funcName, "store", raw, err)
	deviceReply(c, http.StatusInternalServerError, "ERROR")
}

// GET /getTicket?fn=<pipe-delimited ticket>
func getTicketHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Query("fn")
		if raw == "" {
			deviceReply(c, http.StatusBadRequest, "NO_DATA")
			return
		}
		if _, err := RecordTicket(c.Request.Context(), config.GetDB(), raw); err != nil {
			respondDeviceError(c, "getTicketHandler", raw, err)
			return
		}
		deviceReply(c, http.StatusOK, deviceAck(raw))
	}
}

// GET /getTripClose?fn=<pipe-delimited trip close>
func getTripCloseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Query("fn")
		if raw == "" {
			deviceReply(c, http.StatusBadRequest, "NO_DATA")
			return
		}
		created, err := RecordTripClose(c.Request.Context(), config.GetDB(), raw)
		if err != nil {
			respondDeviceError(c, "getTripCloseHandler", raw, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		deviceReply(c, status, deviceAck(raw))
	}
}

// RegisterRoutes mounts the gateway webhook and the device upload endpoints.
// None of them carry a session; the gateway is authenticated by its checksum.
func RegisterRoutes(r gin.IRouter) {
	r.POST("/postSettlementDetails", postSettlementDetailsHandler())
	r.GET("/getTicket", getTicketHandler())
	r.GET("/getTripClose", getTripCloseHandler())
}
