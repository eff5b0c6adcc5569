package models

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type VerificationCounts struct {
	Total      int `json:"total"`
	Unverified int `json:"unverified"`
	Verified   int `json:"verified"`
	Rejected   int `json:"rejected"`
	Flagged    int `json:"flagged"`
	Disputed   int `json:"disputed"`
}

type ReconciliationCounts struct {
	Pending        int `json:"pending"`
	AutoMatched    int `json:"auto_matched"`
	AmountMismatch int `json:"amount_mismatch"`
	NotFound       int `json:"not_found"`
	Duplicate      int `json:"duplicate"`
	ManualMatch    int `json:"manual_match"`
	Issues         int `json:"issues"`
}

type PaymentCounts struct {
	Approved int `json:"approved"`
	Declined int `json:"declined"`
}

type AmountTotals struct {
	TotalApproved    decimal.Decimal `json:"total_amount"`
	VerifiedApproved decimal.Decimal `json:"verified_amount"`
	PendingApproved  decimal.Decimal `json:"pending_amount"`
}

type SecurityCounts struct {
	ChecksumValid   int `json:"checksum_valid"`
	ChecksumInvalid int `json:"checksum_invalid"`
}

// SettlementSummary is the dashboard snapshot for one SettlementFilter scope.
type SettlementSummary struct {
	FromDate       string               `json:"from_date"`
	ToDate         string               `json:"to_date"`
	Verification   VerificationCounts   `json:"verification_summary"`
	Reconciliation ReconciliationCounts `json:"reconciliation_summary"`
	Payment        PaymentCounts        `json:"payment_summary"`
	Amounts        AmountTotals         `json:"amount_summary"`
	Security       SecurityCounts       `json:"security_summary"`
}

type summaryGroup struct {
	VerificationStatus   VerificationStatus
	ReconciliationStatus ReconciliationStatus
	PaymentStatus        PaymentStatus
	IsChecksumValid      bool
	Cnt                  int
	Amount               decimal.Decimal
}

// ComputeSettlementSummary runs one GROUP BY over the filter scope and folds it.
func ComputeSettlementSummary(ctx context.Context, db *gorm.DB, f SettlementFilter) (*SettlementSummary, error) {
	var groups []summaryGroup
	err := db.WithContext(ctx).Model(&SettlementTransaction{}).
		Scopes(f.Scope()).
		Select("verification_status, reconciliation_status, payment_status, is_checksum_valid, COUNT(*) AS cnt, COALESCE(SUM(transaction_amount), 0) AS amount").
		Group("verification_status, reconciliation_status, payment_status, is_checksum_valid").
		Scan(&groups).Error
	if err != nil {
		return nil, err
	}
	return foldSummary(f, groups), nil
}

func foldSummary(f SettlementFilter, groups []summaryGroup) *SettlementSummary {
	s := &SettlementSummary{FromDate: f.FromDate, ToDate: f.ToDate}
	s.Amounts.TotalApproved = decimal.Zero
	s.Amounts.VerifiedApproved = decimal.Zero

	for _, g := range groups {
		s.Verification.Total += g.Cnt
		switch g.VerificationStatus {
		case VerificationStatusUnverified:
			s.Verification.Unverified += g.Cnt
		case VerificationStatusVerified:
			s.Verification.Verified += g.Cnt
		case VerificationStatusRejected:
			s.Verification.Rejected += g.Cnt
		case VerificationStatusFlagged:
			s.Verification.Flagged += g.Cnt
		case VerificationStatusDisputed:
			s.Verification.Disputed += g.Cnt
		}

		switch g.ReconciliationStatus {
		case ReconciliationStatusPending:
			s.Reconciliation.Pending += g.Cnt
		case ReconciliationStatusAutoMatched:
			s.Reconciliation.AutoMatched += g.Cnt
		case ReconciliationStatusAmountMismatch:
			s.Reconciliation.AmountMismatch += g.Cnt
		case ReconciliationStatusNotFound:
			s.Reconciliation.NotFound += g.Cnt
		case ReconciliationStatusDuplicate:
			s.Reconciliation.Duplicate += g.Cnt
		case ReconciliationStatusManualMatch:
			s.Reconciliation.ManualMatch += g.Cnt
		}

		if g.PaymentStatus == PaymentStatusApproved {
			s.Payment.Approved += g.Cnt
			s.Amounts.TotalApproved = s.Amounts.TotalApproved.Add(g.Amount)
			if g.VerificationStatus == VerificationStatusVerified {
				s.Amounts.VerifiedApproved = s.Amounts.VerifiedApproved.Add(g.Amount)
			}
		} else {
			s.Payment.Declined += g.Cnt
		}

		if g.IsChecksumValid {
			s.Security.ChecksumValid += g.Cnt
		} else {
			s.Security.ChecksumInvalid += g.Cnt
		}
	}

	s.Reconciliation.Issues = s.Reconciliation.AmountMismatch + s.Reconciliation.NotFound + s.Reconciliation.Duplicate
	s.Amounts.TotalApproved = s.Amounts.TotalApproved.Round(2)
	s.Amounts.VerifiedApproved = s.Amounts.VerifiedApproved.Round(2)
	s.Amounts.PendingApproved = s.Amounts.TotalApproved.Sub(s.Amounts.VerifiedApproved)
	return s
}
