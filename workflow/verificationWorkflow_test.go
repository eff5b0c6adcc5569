package workflow

import (
	"context"
	"sync"
	"testing"

	"bitbucket.org/mmdatafocus/settlement_backend/models"
	"bitbucket.org/mmdatafocus/settlement_backend/utils"
)

func TestVerifySettlement_NotesRequiredOnMismatch(t *testing.T) {
	db := openDB(t)
	newTicket(t, db, "T1", "INV1", "450")
	s := newSettlement(t, db, "TX1", "INV1", "500", nil)
	if _, err := ReconcileTransaction(context.Background(), db, s.ID); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	_, err := VerifySettlement(context.Background(), db, VerifyInput{TransactionId: s.ID, VerificationStatus: "VERIFIED", VerificationNotes: "  "}, operator)
	if !utils.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	var after models.SettlementTransaction
	db.First(&after, s.ID)
	if after.VerificationStatus != models.VerificationStatusUnverified || after.VerifiedBy != nil {
		t.Fatalf("failed verify must leave prior state intact, got %s", after.VerificationStatus)
	}
	var events int64
	db.Model(&models.VerificationEvent{}).Count(&events)
	if events != 0 {
		t.Fatalf("failed verify must not append an event, got %d", events)
	}

	got, err := VerifySettlement(context.Background(), db, VerifyInput{TransactionId: s.ID, VerificationStatus: "VERIFIED", VerificationNotes: "fare revised"}, operator)
	if err != nil {
		t.Fatalf("verify with notes: %v", err)
	}
	if got.VerificationStatus != models.VerificationStatusVerified || got.VerificationNotes != "fare revised" {
		t.Fatalf("unexpected result %+v", got)
	}
}

// Scenario: NOT_FOUND, late ticket, verify without notes, then reject.
func TestVerifySettlement_Scenario(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	s := newSettlement(t, db, "TX1", "INV100", "500.00", nil)
	if got, _ := ReconcileTransaction(ctx, db, s.ID); got.ReconciliationStatus != models.ReconciliationStatusNotFound {
		t.Fatalf("expected NOT_FOUND, got %s", got.ReconciliationStatus)
	}
	newTicket(t, db, "T55", "INV100", "500.00")
	if _, err := ReconcileForTicket(ctx, db, "INV100", day); err != nil {
		t.Fatalf("ReconcileForTicket: %v", err)
	}

	got, err := VerifySettlement(ctx, db, VerifyInput{TransactionId: s.ID, VerificationStatus: "VERIFIED"}, operator)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.ReconciliationStatus != models.ReconciliationStatusAutoMatched || *got.RelatedTicketNumber != "T55" {
		t.Fatalf("expected AUTO_MATCHED with T55, got %s", got.ReconciliationStatus)
	}
	if got.VerifiedBy == nil || *got.VerifiedBy != operator.UserId || got.VerifiedAt == nil {
		t.Fatalf("verifier fields not set atomically: %+v", got)
	}

	got, err = VerifySettlement(ctx, db, VerifyInput{TransactionId: s.ID, VerificationStatus: "REJECTED", VerificationNotes: "duplicate charge"}, Actor{UserId: 9, Name: "lead"})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if got.VerificationStatus != models.VerificationStatusRejected || got.VerificationNotes != "duplicate charge" || *got.VerifiedBy != 9 {
		t.Fatalf("expected REJECTED overwrite, got %+v", got)
	}

	history, err := ListVerificationHistory(ctx, db, s.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[0].ToStatus != models.VerificationStatusVerified || history[1].FromStatus != models.VerificationStatusVerified {
		t.Fatalf("unexpected history %+v", history)
	}
}

func TestVerifySettlement_Rejects(t *testing.T) {
	db := openDB(t)
	s := newSettlement(t, db, "TX1", "INV1", "500", nil)
	cases := []struct {
		name  string
		in    VerifyInput
		actor Actor
		check func(error) bool
	}{
		{"unknown status", VerifyInput{TransactionId: s.ID, VerificationStatus: "DONE"}, operator, utils.IsValidation},
		{"unverified is not a disposition", VerifyInput{TransactionId: s.ID, VerificationStatus: "UNVERIFIED"}, operator, utils.IsValidation},
		{"unknown id", VerifyInput{TransactionId: 999, VerificationStatus: "FLAGGED"}, operator, utils.IsNotFound},
		{"no actor", VerifyInput{TransactionId: s.ID, VerificationStatus: "FLAGGED"}, Actor{}, func(err error) bool { return utils.HTTPStatus(err) == 401 }},
	}
	for _, tc := range cases {
		_, err := VerifySettlement(context.Background(), db, tc.in, tc.actor)
		if !tc.check(err) {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
	}
	if _, err := ListVerificationHistory(context.Background(), db, 999); !utils.IsNotFound(err) {
		t.Fatalf("history of unknown id should be NotFound, got %v", err)
	}
}

func TestManualMatch(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	tk := newTicket(t, db, "T9", "REF9", "480")
	s := newSettlement(t, db, "TX1", "INV1", "500", nil)
	other := newSettlement(t, db, "TX2", "INV2", "480", nil)

	got, err := ManualMatch(ctx, db, ManualMatchInput{TransactionId: s.ID, TicketId: tk.ID, Notes: "conductor typo"}, operator)
	if err != nil {
		t.Fatalf("ManualMatch: %v", err)
	}
	if got.ReconciliationStatus != models.ReconciliationStatusManualMatch || got.ManuallyReconciledBy == nil || *got.ManuallyReconciledBy != operator.UserId {
		t.Fatalf("unexpected manual match %+v", got)
	}
	if got.RelatedTicketId == nil || *got.RelatedTicketId != tk.ID {
		t.Fatalf("ticket not linked")
	}

	if _, err := ManualMatch(ctx, db, ManualMatchInput{TransactionId: other.ID, TicketId: tk.ID}, operator); !utils.IsValidation(err) {
		t.Fatalf("second claim on the same ticket should fail validation, got %v", err)
	}
	if _, err := ManualMatch(ctx, db, ManualMatchInput{TransactionId: s.ID, TicketId: 999}, operator); !utils.IsNotFound(err) {
		t.Fatalf("unknown ticket should be NotFound, got %v", err)
	}

	history, _ := ListVerificationHistory(ctx, db, s.ID)
	if len(history) != 1 || history[0].Action != models.VerificationActionManualMatch {
		t.Fatalf("expected one MANUAL_MATCH event, got %+v", history)
	}
}

func TestManualMatch_ConcurrentClaimsOnOneTicket(t *testing.T) {
	db := openDB(t)
	tk := newTicket(t, db, "T9", "REF9", "480")
	ids := []int{
		newSettlement(t, db, "TX1", "INV1", "480", nil).ID,
		newSettlement(t, db, "TX2", "INV2", "480", nil).ID,
	}

	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i, id int) {
			defer wg.Done()
			_, errs[i] = ManualMatch(context.Background(), db, ManualMatchInput{TransactionId: id, TicketId: tk.ID}, operator)
		}(i, id)
	}
	wg.Wait()

	won, rejected := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case utils.IsValidation(err):
			rejected++
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if won != 1 || rejected != 1 {
		t.Fatalf("expected one winner and one rejection, got %d/%d", won, rejected)
	}
	var claims int64
	db.Model(&models.SettlementTransaction{}).Where("related_ticket_id = ?", tk.ID).Count(&claims)
	if claims != 1 {
		t.Fatalf("ticket claimed %d times", claims)
	}
}
