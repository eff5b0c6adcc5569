package models

import (
	"fmt"
	"strings"
)

type ReconciliationStatus string

const (
	ReconciliationStatusPending        ReconciliationStatus = "PENDING"
	ReconciliationStatusAutoMatched    ReconciliationStatus = "AUTO_MATCHED"
	ReconciliationStatusAmountMismatch ReconciliationStatus = "AMOUNT_MISMATCH"
	ReconciliationStatusNotFound       ReconciliationStatus = "NOT_FOUND"
	ReconciliationStatusDuplicate      ReconciliationStatus = "DUPLICATE"
	ReconciliationStatusManualMatch    ReconciliationStatus = "MANUAL_MATCH"
)

var reconciliationStatuses = map[string]ReconciliationStatus{
	"PENDING":         ReconciliationStatusPending,
	"AUTO_MATCHED":    ReconciliationStatusAutoMatched,
	"AMOUNT_MISMATCH": ReconciliationStatusAmountMismatch,
	"NOT_FOUND":       ReconciliationStatusNotFound,
	"DUPLICATE":       ReconciliationStatusDuplicate,
	"MANUAL_MATCH":    ReconciliationStatusManualMatch,
}

func ParseReconciliationStatus(s string) (ReconciliationStatus, error) {
	if v, ok := reconciliationStatuses[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return v, nil
	}
	return "", fmt.Errorf("invalid reconciliation_status %q", s)
}

// HasTicket reports whether the status carries a related_ticket snapshot.
func (s ReconciliationStatus) HasTicket() bool {
	return s == ReconciliationStatusAutoMatched || s == ReconciliationStatusAmountMismatch || s == ReconciliationStatusManualMatch
}

// ClaimsTicket reports whether the status means the linked ticket is paid by this transaction.
func (s ReconciliationStatus) ClaimsTicket() bool {
	return s == ReconciliationStatusAutoMatched || s == ReconciliationStatusManualMatch
}

// Reopenable statuses are re-evaluated when a matching ticket arrives.
func (s ReconciliationStatus) Reopenable() bool {
	return s == ReconciliationStatusPending || s == ReconciliationStatusNotFound
}

type VerificationStatus string

const (
	VerificationStatusUnverified VerificationStatus = "UNVERIFIED"
	VerificationStatusVerified   VerificationStatus = "VERIFIED"
	VerificationStatusRejected   VerificationStatus = "REJECTED"
	VerificationStatusFlagged    VerificationStatus = "FLAGGED"
	VerificationStatusDisputed   VerificationStatus = "DISPUTED"
)

var verificationStatuses = map[string]VerificationStatus{
	"UNVERIFIED": VerificationStatusUnverified,
	"VERIFIED":   VerificationStatusVerified,
	"REJECTED":   VerificationStatusRejected,
	"FLAGGED":    VerificationStatusFlagged,
	"DISPUTED":   VerificationStatusDisputed,
}

func ParseVerificationStatus(s string) (VerificationStatus, error) {
	if v, ok := verificationStatuses[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return v, nil
	}
	return "", fmt.Errorf("invalid verification_status %q", s)
}

// IsDisposition is true for the statuses a human may set.
func (s VerificationStatus) IsDisposition() bool {
	return s == VerificationStatusVerified || s == VerificationStatusRejected ||
		s == VerificationStatusFlagged || s == VerificationStatusDisputed
}

type PaymentStatus string

const (
	PaymentStatusApproved PaymentStatus = "approved"
	PaymentStatusDeclined PaymentStatus = "declined"
)

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approved":
		return PaymentStatusApproved, nil
	case "declined":
		return PaymentStatusDeclined, nil
	}
	return "", fmt.Errorf("invalid payment_status %q", s)
}

// PaymentStatusFromResponseCode: the gateway approves with 0, 00 or 000.
func PaymentStatusFromResponseCode(code string) PaymentStatus {
	switch strings.TrimSpace(code) {
	case "0", "00", "000":
		return PaymentStatusApproved
	}
	return PaymentStatusDeclined
}

type ProcessingStatus string

const (
	ProcessingStatusReceived            ProcessingStatus = "RECEIVED"
	ProcessingStatusValidated           ProcessingStatus = "VALIDATED"
	ProcessingStatusValidationFailed    ProcessingStatus = "VALIDATION_FAILED"
	ProcessingStatusReconciling         ProcessingStatus = "RECONCILING"
	ProcessingStatusPendingVerification ProcessingStatus = "PENDING_VERIFICATION"
)

type VerificationAction string

const (
	VerificationActionVerify      VerificationAction = "VERIFY"
	VerificationActionManualMatch VerificationAction = "MANUAL_MATCH"
)

// TicketPaymentMode is the device's ticket_status field.
type TicketPaymentMode int

const (
	TicketPaymentCash TicketPaymentMode = 0
	TicketPaymentUPI  TicketPaymentMode = 1
)
