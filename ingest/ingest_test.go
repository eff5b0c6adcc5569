package ingest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/settlement_backend/models"
	"bitbucket.org/mmdatafocus/settlement_backend/testutil"
	"bitbucket.org/mmdatafocus/settlement_backend/utils"
	"bitbucket.org/mmdatafocus/settlement_backend/workflow"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const salt = "test-salt"

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter() *gin.Engine {
	r := gin.New()
	RegisterRoutes(r)
	return r
}

func setup(t *testing.T) (*gorm.DB, *gin.Engine) {
	t.Helper()
	t.Setenv("GATEWAY_SALT", salt)
	t.Setenv("PUBSUB_ENABLED", "false")
	t.Setenv("AUTO_RECONCILE_ON_INGEST", "true")
	return testutil.OpenDB(t, models.Migrate), newRouter()
}

// ticketPayload builds a UPI ticket upload with the given overrides by field index.
func ticketPayload(overrides map[int]string) string {
	f := []string{
		"TKT", "PT01", "1", "T0001", "2025-06-01", "08:30:00", "1", "5",
		"1", "0", "0", "0", "0", "100.00", "0", "F", "0", "", "0", "", "0",
		"0", "0", "TXN1", "1", "INV001", "C1",
	}
	for i, v := range overrides {
		f[i] = v
	}
	return strings.Join(f, "|")
}

func tripClosePayload(overrides map[int]string) string {
	f := []string{
		"TrpCl", "PT01", "C1", "10", "2",
		"2025-06-01", "06:00:00", "2025-06-01", "08:00:00",
		"1001", "1010",
		"8", "2", "0", "0", "0", "0", "0", "0",
		"400", "100", "0", "0", "0", "0", "0",
		"0", "0", "500", "3", "150", "R12", "U",
	}
	for i, v := range overrides {
		f[i] = v
	}
	return strings.Join(f, "|")
}

func get(r http.Handler, path, fn string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path+"?fn="+url.QueryEscape(fn), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestParseTicket(t *testing.T) {
	tk, err := ParseTicket(ticketPayload(map[int]string{9: "2", 12: "1"}))
	if err != nil {
		t.Fatalf("ParseTicket: %v", err)
	}
	if tk.DeviceId != "PT01" || tk.TicketNumber != "T0001" || tk.TicketDate != "2025-06-01" || tk.TicketTime != "08:30:00" {
		t.Fatalf("unexpected identity fields %+v", tk)
	}
	if !tk.IsUPI() || tk.ReferenceNumber != "INV001" || tk.CompanyCode != "C1" {
		t.Fatalf("expected UPI ticket INV001 for C1, got %+v", tk)
	}
	if tk.TotalTickets != 4 || !tk.TicketAmount.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected 4 tickets for 100, got %d for %s", tk.TotalTickets, tk.TicketAmount)
	}

	if tk, _ := ParseTicket(ticketPayload(map[int]string{24: "7"})); tk == nil || tk.IsUPI() {
		t.Fatalf("unknown payment mode should fall back to cash")
	}

	cases := []struct {
		name string
		raw  string
		code string
	}{
		{"no company", ticketPayload(map[int]string{26: ""}), "INVALID_COMPANY"},
		{"short payload", "TKT|PT01|1|T0001", "INVALID_COMPANY"},
		{"bad date", ticketPayload(map[int]string{4: "01-06-2025"}), "INVALID_DATE_TIME"},
		{"bad time", ticketPayload(map[int]string{5: "8.30"}), "INVALID_DATE_TIME"},
		{"bad count", ticketPayload(map[int]string{8: "one"}), "ERROR"},
		{"bad amount", ticketPayload(map[int]string{13: "ten"}), "ERROR"},
	}
	for _, tc := range cases {
		_, err := ParseTicket(tc.raw)
		de, ok := asDeviceError(err)
		if !ok || de.Code != tc.code {
			t.Fatalf("%s: expected %s, got %v", tc.name, tc.code, err)
		}
	}
}

func TestGetTicketHandler(t *testing.T) {
	db, r := setup(t)
	raw := ticketPayload(nil)

	w := get(r, "/getTicket", raw)
	want := "OK#SUCCESS#fn=" + raw[:32] + "#"
	if w.Code != http.StatusOK || w.Body.String() != want {
		t.Fatalf("expected 200 %q, got %d %q", want, w.Code, w.Body.String())
	}
	w = get(r, "/getTicket", raw)
	if w.Code != http.StatusOK || w.Body.String() != want {
		t.Fatalf("duplicate: expected 200 %q, got %d %q", want, w.Code, w.Body.String())
	}
	var n int64
	db.Model(&models.TicketTransaction{}).Count(&n)
	if n != 1 {
		t.Fatalf("expected one stored ticket, got %d", n)
	}

	if w := get(r, "/getTicket", ""); w.Code != http.StatusBadRequest || w.Body.String() != "NO_DATA" {
		t.Fatalf("empty fn: expected 400 NO_DATA, got %d %q", w.Code, w.Body.String())
	}
	if w := get(r, "/getTicket", ticketPayload(map[int]string{26: ""})); w.Code != http.StatusBadRequest || w.Body.String() != "INVALID_COMPANY" {
		t.Fatalf("no company: expected 400 INVALID_COMPANY, got %d %q", w.Code, w.Body.String())
	}
}

func TestGetTicketHandler_ResolvesWaitingSettlement(t *testing.T) {
	db, r := setup(t)
	post := signedPost("TX1", "INV777", "250.00")
	if w := postJSON(r, post); w.Code != http.StatusOK {
		t.Fatalf("post: expected 200, got %d %s", w.Code, w.Body.String())
	}
	var s models.SettlementTransaction
	db.Where("transaction_id = ?", "TX1").First(&s)
	if s.ReconciliationStatus != models.ReconciliationStatusNotFound {
		t.Fatalf("expected NOT_FOUND before the ticket, got %s", s.ReconciliationStatus)
	}

	raw := ticketPayload(map[int]string{3: "T0777", 13: "250.00", 25: "INV777"})
	if w := get(r, "/getTicket", raw); w.Code != http.StatusOK {
		t.Fatalf("ticket: expected 200, got %d", w.Code)
	}
	db.First(&s, s.ID)
	if s.ReconciliationStatus != models.ReconciliationStatusAutoMatched || s.RelatedTicketNumber == nil || *s.RelatedTicketNumber != "T0777" {
		t.Fatalf("expected AUTO_MATCHED to T0777, got %s", s.ReconciliationStatus)
	}
}

func TestGetTicketHandler_CashTicketNeverMatches(t *testing.T) {
	db, r := setup(t)
	if w := postJSON(r, signedPost("TX1", "INV777", "100.00")); w.Code != http.StatusOK {
		t.Fatalf("post: expected 200, got %d %s", w.Code, w.Body.String())
	}
	raw := ticketPayload(map[int]string{3: "T0001", 13: "100.00", 24: "0", 25: "INV777"})
	if w := get(r, "/getTicket", raw); w.Code != http.StatusOK {
		t.Fatalf("ticket: expected 200, got %d", w.Code)
	}

	var s models.SettlementTransaction
	db.Where("transaction_id = ?", "TX1").First(&s)
	if s.ReconciliationStatus != models.ReconciliationStatusNotFound {
		t.Fatalf("after cash ticket arrival: expected NOT_FOUND, got %s", s.ReconciliationStatus)
	}
	got, err := workflow.ReconcileTransaction(testutil.Context(t), db, s.ID)
	if err != nil {
		t.Fatalf("ReconcileTransaction: %v", err)
	}
	if got.ReconciliationStatus != models.ReconciliationStatusNotFound || got.RelatedTicketId != nil {
		t.Fatalf("on-demand run must agree with arrival, got %s", got.ReconciliationStatus)
	}
}

func TestParseTripClose(t *testing.T) {
	tc, err := ParseTripClose(tripClosePayload(nil))
	if err != nil {
		t.Fatalf("ParseTripClose: %v", err)
	}
	if tc.TotalTickets != 10 || tc.TotalCashTickets != 7 || !tc.TotalCashAmount.Equal(decimal.NewFromInt(350)) {
		t.Fatalf("unexpected totals %d/%d/%s", tc.TotalTickets, tc.TotalCashTickets, tc.TotalCashAmount)
	}
	if tc.TotalTicketsIssued != 10 || tc.TotalPassengers != 10 || tc.RouteCode != "R12" || tc.UpDownTrip != "U" {
		t.Fatalf("unexpected derived fields %+v", tc)
	}

	cases := []struct {
		name string
		raw  string
		code string
	}{
		{"short", "TrpCl|PT01|C1", "MISSING_DATA"},
		{"wrong type", tripClosePayload(map[int]string{0: "Trip"}), "INVALID"},
		{"no company", tripClosePayload(map[int]string{2: ""}), "INVALID_COMPANY"},
		{"bad start", tripClosePayload(map[int]string{5: "2025/06/01"}), "INVALID_DATE_TIME"},
		{"bad end time", tripClosePayload(map[int]string{8: "25:00:00"}), "INVALID_DATE_TIME"},
		{"upi over total", tripClosePayload(map[int]string{29: "11"}), "DATA_IRREGULARITY_CASH_TICKETS"},
		{"upi over collection", tripClosePayload(map[int]string{30: "500.01"}), "DATA_IRREGULARITY_CASH_AMOUNT"},
		{"bad count", tripClosePayload(map[int]string{11: "x"}), "ERROR"},
	}
	for _, c := range cases {
		_, err := ParseTripClose(c.raw)
		de, ok := asDeviceError(err)
		if !ok || de.Code != c.code {
			t.Fatalf("%s: expected %s, got %v", c.name, c.code, err)
		}
	}
}

func TestGetTripCloseHandler(t *testing.T) {
	_, r := setup(t)
	raw := tripClosePayload(nil)
	want := "OK#SUCCESS#fn=" + raw[:32] + "#"

	if w := get(r, "/getTripClose", raw); w.Code != http.StatusCreated || w.Body.String() != want {
		t.Fatalf("expected 201 %q, got %d %q", want, w.Code, w.Body.String())
	}
	if w := get(r, "/getTripClose", raw); w.Code != http.StatusOK || w.Body.String() != want {
		t.Fatalf("duplicate: expected 200 %q, got %d %q", want, w.Code, w.Body.String())
	}
	if w := get(r, "/getTripClose", tripClosePayload(map[int]string{29: "11"})); w.Code != http.StatusBadRequest || w.Body.String() != "DATA_IRREGULARITY_CASH_TICKETS" {
		t.Fatalf("irregular: got %d %q", w.Code, w.Body.String())
	}
}

func signedPost(txId, invoice, amount string) map[string]any {
	return map[string]any{
		"transactionID":         txId,
		"merchantId":            "M1",
		"transactionRRN":        "RRN-" + txId,
		"checksum":              strings.ToUpper(utils.GatewayChecksum(txId, "M1", "RRN-"+txId, salt)),
		"transactionAmount":     amount,
		"transactionDate":       "01-06-2025",
		"transactionTime":       "09:15:00",
		"responseCode":          "00",
		"transactionStatus":     "SUCCESS",
		"invoiceNumber":         invoice,
		"billNumber":            "BILL-" + txId,
		"transactionCardNumber": "4111111111111111",
		"cardType":              "UPI",
	}
}

func postJSON(r http.Handler, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/postSettlementDetails", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type gatewayResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	RefTxn  string `json:"merchant_refTxnId"`
}

func decodeGateway(t *testing.T, w *httptest.ResponseRecorder) gatewayResponse {
	t.Helper()
	var out gatewayResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return out
}

func TestPostSettlementDetails(t *testing.T) {
	db, r := setup(t)
	if _, err := RecordTicket(testutil.Context(t), db, ticketPayload(map[int]string{13: "250.00", 25: "INV001"})); err != nil {
		t.Fatalf("seed ticket: %v", err)
	}

	w := postJSON(r, signedPost("TX1", "INV001", "250.00"))
	got := decodeGateway(t, w)
	if w.Code != http.StatusOK || got.Message != "success" || got.RefTxn != "BILL-TX1" {
		t.Fatalf("expected success with BILL-TX1, got %d %+v", w.Code, got)
	}
	var s models.SettlementTransaction
	if err := db.Where("transaction_id = ?", "TX1").First(&s).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if !s.IsChecksumValid || s.TransactionDate != "2025-06-01" || s.TransactionCardNumber != "XXXXXXXXXXXX1111" {
		t.Fatalf("unexpected stored row %+v", s)
	}
	if s.ReconciliationStatus != models.ReconciliationStatusAutoMatched || s.PaymentStatus != models.PaymentStatusApproved {
		t.Fatalf("expected approved AUTO_MATCHED, got %s/%s", s.PaymentStatus, s.ReconciliationStatus)
	}

	w = postJSON(r, signedPost("TX1", "INV001", "250.00"))
	if got := decodeGateway(t, w); w.Code != http.StatusOK || got.RefTxn != "BILL-TX1" {
		t.Fatalf("repost: expected success, got %d %+v", w.Code, got)
	}
	db.First(&s, s.ID)
	if s.RepostCount != 1 || s.ReconciliationStatus != models.ReconciliationStatusAutoMatched {
		t.Fatalf("repost: expected repost_count 1 and unchanged match, got %d %s", s.RepostCount, s.ReconciliationStatus)
	}
}

func TestPostSettlementDetails_Rejects(t *testing.T) {
	_, r := setup(t)

	missing := signedPost("TX2", "INV002", "10")
	delete(missing, "merchantId")
	missing["checksum"] = ""
	w := postJSON(r, missing)
	if got := decodeGateway(t, w); w.Code != http.StatusBadRequest || got.Message != "Missing required fields: merchantId, checksum" {
		t.Fatalf("missing: got %d %+v", w.Code, got)
	}

	badDate := signedPost("TX3", "INV003", "10")
	badDate["transactionDate"] = "2025-06-01"
	w = postJSON(r, badDate)
	if got := decodeGateway(t, w); w.Code != http.StatusBadRequest || !strings.HasPrefix(got.Message, "Invalid date/time format") {
		t.Fatalf("bad date: got %d %+v", w.Code, got)
	}

	req := httptest.NewRequest(http.MethodPost, "/postSettlementDetails", strings.NewReader("{"))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := decodeGateway(t, w); w.Code != http.StatusBadRequest || got.Message != "Invalid JSON format" {
		t.Fatalf("bad json: got %d %+v", w.Code, got)
	}
}

func TestPostSettlementDetails_ChecksumFailureIsFlaggedThenRepaired(t *testing.T) {
	db, r := setup(t)
	if _, err := RecordTicket(testutil.Context(t), db, ticketPayload(map[int]string{3: "T0009", 13: "75.00", 25: "INV009"})); err != nil {
		t.Fatalf("seed ticket: %v", err)
	}
	tampered := signedPost("TX9", "INV009", "1.00")
	tampered["checksum"] = "deadbeef"
	tampered["transactionCardNumber"] = "5500000000000004"

	w := postJSON(r, tampered)
	if got := decodeGateway(t, w); w.Code != http.StatusUnauthorized || got.Message != "Checksum Error" {
		t.Fatalf("expected 401 Checksum Error, got %d %+v", w.Code, got)
	}
	var s models.SettlementTransaction
	if err := db.Where("transaction_id = ?", "TX9").First(&s).Error; err != nil {
		t.Fatalf("tampered post should be stored: %v", err)
	}
	if s.IsChecksumValid || s.ProcessingStatus != models.ProcessingStatusValidationFailed || s.ReconciliationStatus != models.ReconciliationStatusPending {
		t.Fatalf("unexpected tampered row %+v", s)
	}

	w = postJSON(r, signedPost("TX9", "INV009", "75.00"))
	if w.Code != http.StatusOK {
		t.Fatalf("valid repost: expected 200, got %d %s", w.Code, w.Body.String())
	}
	db.First(&s, s.ID)
	if !s.IsChecksumValid || s.ProcessingStatus == models.ProcessingStatusValidationFailed {
		t.Fatalf("expected repaired row, got %+v", s)
	}
	if !s.TransactionAmount.Equal(decimal.RequireFromString("75.00")) || s.TransactionCardNumber != "XXXXXXXXXXXX1111" {
		t.Fatalf("repair must store the valid post's fields, got amount %s card %s", s.TransactionAmount, s.TransactionCardNumber)
	}
	if s.ReconciliationStatus != models.ReconciliationStatusAutoMatched || s.RelatedTicketNumber == nil || *s.RelatedTicketNumber != "T0009" {
		t.Fatalf("expected AUTO_MATCHED to T0009, got %s", s.ReconciliationStatus)
	}

	if w := postJSON(r, tampered); w.Code != http.StatusUnauthorized {
		t.Fatalf("tampered repost: expected 401, got %d", w.Code)
	}
	db.First(&s, s.ID)
	if !s.TransactionAmount.Equal(decimal.RequireFromString("75.00")) || !s.IsChecksumValid {
		t.Fatalf("tampered repost must not change the row: %+v", s)
	}
}
