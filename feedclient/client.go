// Package feedclient is the polling side of the settlement dashboard: a typed
// HTTP client, a client-held row store and a background poller that keeps the
// store current through since-calls.
package feedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/settlement_backend/models"
	"bitbucket.org/mmdatafocus/settlement_backend/utils"
)

// APIError is a response the server did send, with a non-2xx status.
// A request that got no response is a TransientNetworkError instead.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient builds a client for the API at baseURL. httpClient may be nil.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

// SettlementQuery is the settlement feed and summary scope. Empty filters mean ALL.
type SettlementQuery struct {
	FromDate             string
	ToDate               string
	VerificationStatus   string
	ReconciliationStatus string
	PaymentStatus        string
	MerchantId           string
}

func (q SettlementQuery) values() url.Values {
	v := url.Values{}
	v.Set("from_date", q.FromDate)
	v.Set("to_date", q.ToDate)
	for k, s := range map[string]string{
		"verification_status":   q.VerificationStatus,
		"reconciliation_status": q.ReconciliationStatus,
		"payment_status":        q.PaymentStatus,
		"merchant_id":           q.MerchantId,
	} {
		if s != "" {
			v.Set(k, s)
		}
	}
	return v
}

func withCursor(v url.Values, cursor *models.FeedCursor) url.Values {
	if cursor != nil {
		v.Set("since", utils.FormatCursorTime(cursor.Since))
		if cursor.ID > 0 {
			v.Set("since_id", strconv.Itoa(cursor.ID))
		}
	}
	return v
}

// FeedPage is one list response, newest first.
type FeedPage[T any] struct {
	Message string `json:"message"`
	Data    []T    `json:"data"`
	Count   int    `json:"count"`
	Cursor  string `json:"cursor"`
}

type dataEnvelope[T any] struct {
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// VerifyResult is the verified transaction plus the summary for its date.
type VerifyResult struct {
	Message string                       `json:"message"`
	Data    models.SettlementTransaction `json:"data"`
	Summary *models.SettlementSummary    `json:"summary"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if cid, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		req.Header.Set("x-correlation-id", cid)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return utils.NewTransientNetworkError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return utils.NewTransientNetworkError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// Settlements fetches the settlement feed. A nil cursor fetches the full range.
func (c *Client) Settlements(ctx context.Context, q SettlementQuery, cursor *models.FeedCursor) (*FeedPage[models.SettlementTransaction], error) {
	var page FeedPage[models.SettlementTransaction]
	if err := c.do(ctx, http.MethodGet, "/get_settlement_data", withCursor(q.values(), cursor), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func dateRange(from, to string) url.Values {
	return url.Values{"from_date": {from}, "to_date": {to}}
}

func (c *Client) Tickets(ctx context.Context, fromDate, toDate string, cursor *models.FeedCursor) (*FeedPage[models.TicketTransaction], error) {
	var page FeedPage[models.TicketTransaction]
	if err := c.do(ctx, http.MethodGet, "/get_all_transaction_data", withCursor(dateRange(fromDate, toDate), cursor), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) TripCloses(ctx context.Context, fromDate, toDate string, cursor *models.FeedCursor) (*FeedPage[models.TripClose], error) {
	var page FeedPage[models.TripClose]
	if err := c.do(ctx, http.MethodGet, "/get_all_trip_close_data", withCursor(dateRange(fromDate, toDate), cursor), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) Summary(ctx context.Context, q SettlementQuery) (*models.SettlementSummary, error) {
	var env dataEnvelope[models.SettlementSummary]
	if err := c.do(ctx, http.MethodGet, "/get_settlement_summary", q.values(), nil, &env); err != nil {
		return nil, err
	}
	return &env.Data, nil
}

func (c *Client) Verify(ctx context.Context, transactionId int, status, notes string) (*VerifyResult, error) {
	body := map[string]any{
		"transaction_id":      transactionId,
		"verification_status": status,
		"verification_notes":  notes,
	}
	var res VerifyResult
	if err := c.do(ctx, http.MethodPost, "/verify_settlement", nil, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) ManualMatch(ctx context.Context, transactionId, ticketId int, notes string) (*models.SettlementTransaction, error) {
	body := map[string]any{"transaction_id": transactionId, "ticket_id": ticketId, "notes": notes}
	var env dataEnvelope[models.SettlementTransaction]
	if err := c.do(ctx, http.MethodPost, "/manual_match", nil, body, &env); err != nil {
		return nil, err
	}
	return &env.Data, nil
}

func (c *Client) History(ctx context.Context, transactionId int) ([]models.VerificationEvent, error) {
	var page FeedPage[models.VerificationEvent]
	if err := c.do(ctx, http.MethodGet, "/settlement_history/"+strconv.Itoa(transactionId), nil, nil, &page); err != nil {
		return nil, err
	}
	return page.Data, nil
}
