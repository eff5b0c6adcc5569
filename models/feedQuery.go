package models

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/settlement_backend/utils"
	"gorm.io/gorm"
)

// FeedRow is implemented by every append-only ledger row served through a since-feed.
type FeedRow interface {
	FeedCreatedAt() time.Time
	FeedID() int
}

// SettlementFilter is the scope shared by the settlement feed and the summary,
// so listed rows and dashboard counts always agree.
type SettlementFilter struct {
	FromDate             string
	ToDate               string
	VerificationStatus   *VerificationStatus
	ReconciliationStatus *ReconciliationStatus
	PaymentStatus        *PaymentStatus
	MerchantId           string
}

func isAll(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, "ALL")
}

// NewSettlementFilter validates the query parameters. Empty or ALL means unfiltered.
func NewSettlementFilter(fromDate, toDate, verificationStatus, reconciliationStatus, paymentStatus, merchantId string) (SettlementFilter, error) {
	from, to, err := utils.ValidateDateRange(fromDate, toDate)
	if err != nil {
		return SettlementFilter{}, err
	}
	f := SettlementFilter{FromDate: from, ToDate: to}
	if !isAll(verificationStatus) {
		v, err := ParseVerificationStatus(verificationStatus)
		if err != nil {
			return SettlementFilter{}, utils.NewValidationError("%s", err.Error())
		}
		f.VerificationStatus = &v
	}
	if !isAll(reconciliationStatus) {
		v, err := ParseReconciliationStatus(reconciliationStatus)
		if err != nil {
			return SettlementFilter{}, utils.NewValidationError("%s", err.Error())
		}
		f.ReconciliationStatus = &v
	}
	if !isAll(paymentStatus) {
		v, err := ParsePaymentStatus(paymentStatus)
		if err != nil {
			return SettlementFilter{}, utils.NewValidationError("%s", err.Error())
		}
		f.PaymentStatus = &v
	}
	if !isAll(merchantId) {
		f.MerchantId = strings.TrimSpace(merchantId)
	}
	return f, nil
}

func (f SettlementFilter) Scope() func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		db = db.Where("transaction_date BETWEEN ? AND ?", f.FromDate, f.ToDate)
		if f.VerificationStatus != nil {
			db = db.Where("verification_status = ?", *f.VerificationStatus)
		}
		if f.ReconciliationStatus != nil {
			db = db.Where("reconciliation_status = ?", *f.ReconciliationStatus)
		}
		if f.PaymentStatus != nil {
			db = db.Where("payment_status = ?", *f.PaymentStatus)
		}
		if f.MerchantId != "" {
			db = db.Where("merchant_id = ?", f.MerchantId)
		}
		return db
	}
}

// DateColumnScope bounds the ticket and trip-close feeds by their business-day column.
func DateColumnScope(column, fromDate, toDate string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(column+" BETWEEN ? AND ?", fromDate, toDate)
	}
}

func cursorScope(c *FeedCursor) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if c.ID > 0 {
			return db.Where("(created_at > ? OR (created_at = ? AND id > ?))", c.Since, c.Since, c.ID)
		}
		return db.Where("created_at > ?", c.Since)
	}
}

// ListFeed returns rows in scope, newest first.
//
// Without a cursor it is the full set. With a cursor it selects the oldest
// rows past the cursor, then reverses them. limit applies only when the cursor
// carries an id: a bare since is a strict created_at bound, so a page cut
// inside one timestamp would lose the rest of that timestamp for good.
func ListFeed[T FeedRow](ctx context.Context, db *gorm.DB, scope func(*gorm.DB) *gorm.DB, cursor *FeedCursor, limit int) ([]T, error) {
	var rows []T
	q := db.WithContext(ctx).Scopes(scope)
	if cursor == nil {
		err := q.Order("created_at DESC").Order("id DESC").Find(&rows).Error
		return rows, err
	}
	q = q.Scopes(cursorScope(cursor)).Order("created_at ASC").Order("id ASC")
	if limit > 0 && cursor.ID > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}
