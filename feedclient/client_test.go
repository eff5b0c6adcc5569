package feedclient

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/settlement_backend/middlewares"
	"bitbucket.org/mmdatafocus/settlement_backend/models"
	"bitbucket.org/mmdatafocus/settlement_backend/settlement"
	"bitbucket.org/mmdatafocus/settlement_backend/testutil"
	"bitbucket.org/mmdatafocus/settlement_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func newServer(t *testing.T) (*gorm.DB, *Client) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.OpenDB(t, models.Migrate)
	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware(), middlewares.AuthMiddleware())
	settlement.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	t.Setenv("API_SECRET", "test-secret")
	token, err := utils.JwtGenerate(utils.JwtCustomClaim{ID: 3, Name: "ops"})
	if err != nil {
		t.Fatalf("JwtGenerate: %v", err)
	}
	return db, NewClient(srv.URL+"/", token, srv.Client())
}

func seed(t *testing.T, db *gorm.DB, n int) *models.SettlementTransaction {
	t.Helper()
	s := models.SettlementTransaction{
		TransactionID:        fmt.Sprintf("TX%03d", n),
		MerchantId:           "M1",
		TransactionRRN:       fmt.Sprintf("RRN%03d", n),
		TransactionAmount:    decimal.NewFromInt(100),
		TransactionDate:      "2025-06-01",
		TransactionTime:      "08:00:00",
		TransactionDateTime:  base,
		InvoiceNumber:        fmt.Sprintf("INV%03d", n),
		ResponseCode:         "00",
		IsChecksumValid:      true,
		ReconciliationStatus: models.ReconciliationStatusAutoMatched,
		CreatedAt:            base.Add(time.Duration(n) * time.Second),
	}
	if err := db.Create(&s).Error; err != nil {
		t.Fatalf("seed %d: %v", n, err)
	}
	return &s
}

func TestClient_PollsSettlementFeed(t *testing.T) {
	db, c := newServer(t)
	seed(t, db, 1)
	seed(t, db, 2)

	q := SettlementQuery{FromDate: "2025-06-01", ToDate: "2025-06-30"}
	store := NewStore[models.SettlementTransaction]()
	p := NewSettlementPoller(c, q, store, PollerOptions{Logger: quietLogger(), Location: time.UTC, Now: fixedNow})
	if err := p.Refresh(testutil.Context(t)); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if store.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", store.Len())
	}

	seed(t, db, 3)
	if !p.Tick(testutil.Context(t)) {
		t.Fatalf("expected a background fetch")
	}
	if got := ids(store.Rows()); len(got) != 3 || got[0] != 3 {
		t.Fatalf("expected row 3 merged at the front, got %v", got)
	}

	page, err := c.Settlements(testutil.Context(t), q, store.Cursor())
	if err != nil {
		t.Fatalf("Settlements: %v", err)
	}
	if page.Count != 0 || len(page.Data) != 0 {
		t.Fatalf("nothing should be newer than the store cursor, got %d", page.Count)
	}
}

func TestClient_VerifyAndHistory(t *testing.T) {
	db, c := newServer(t)
	s := seed(t, db, 1)
	store := NewStore[models.SettlementTransaction]()
	store.Replace([]models.SettlementTransaction{*s})

	res, err := c.Verify(testutil.Context(t), s.ID, "VERIFIED", "ok")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.Summary == nil || res.Summary.Verification.Verified != 1 {
		t.Fatalf("expected a summary with one verified row, got %+v", res.Summary)
	}
	if !store.Apply(res.Data) {
		t.Fatalf("verified row should replace the held copy")
	}
	if got, _ := store.Get(s.ID); got.VerificationStatus != models.VerificationStatusVerified {
		t.Fatalf("store still holds %s", got.VerificationStatus)
	}

	history, err := c.History(testutil.Context(t), s.ID)
	if err != nil || len(history) != 1 {
		t.Fatalf("History: %v %v", history, err)
	}

	summary, err := c.Summary(testutil.Context(t), SettlementQuery{FromDate: "2025-06-01", ToDate: "2025-06-01"})
	if err != nil || summary.Verification.Total != 1 {
		t.Fatalf("Summary: %+v %v", summary, err)
	}
}

func TestClient_Errors(t *testing.T) {
	_, c := newServer(t)

	_, err := c.Settlements(testutil.Context(t), SettlementQuery{FromDate: "2025-06-10", ToDate: "2025-06-01"}, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest || apiErr.Message == "" {
		t.Fatalf("inverted range: expected a 400 APIError, got %v", err)
	}

	_, err = c.Verify(testutil.Context(t), 999, "VERIFIED", "")
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Fatalf("unknown transaction: expected a 404 APIError, got %v", err)
	}

	anon := NewClient(c.baseURL, "", c.httpClient)
	if _, err := anon.Summary(testutil.Context(t), SettlementQuery{FromDate: "2025-06-01", ToDate: "2025-06-01"}); !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("missing token: expected a 401 APIError, got %v", err)
	}

	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()
	down := NewClient(dead.URL, "", nil)
	_, err = down.Tickets(testutil.Context(t), "2025-06-01", "2025-06-01", nil)
	if !errors.Is(err, utils.ErrTransientNetwork) {
		t.Fatalf("closed server: expected a transient network error, got %v", err)
	}
	if errors.As(err, &apiErr) {
		t.Fatalf("an unreachable server must not look like an API response")
	}
}
