package feedclient

import (
	"fmt"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/settlement_backend/models"
)

var base = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func row(id int, secs int) models.SettlementTransaction {
	return models.SettlementTransaction{
		ID:            id,
		TransactionID: fmt.Sprintf("TX%03d", id),
		CreatedAt:     base.Add(time.Duration(secs) * time.Second),
	}
}

func ids(rows []models.SettlementTransaction) []int {
	out := make([]int, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestStore_ReplaceOrdersNewestFirst(t *testing.T) {
	s := NewStore[models.SettlementTransaction]()
	if s.Cursor() != nil {
		t.Fatalf("empty store must have no cursor")
	}
	s.Replace([]models.SettlementTransaction{row(1, 1), row(3, 2), row(2, 2)})
	if got := ids(s.Rows()); !equalInts(got, []int{3, 2, 1}) {
		t.Fatalf("expected [3 2 1], got %v", got)
	}
	c := s.Cursor()
	if c == nil || c.ID != 3 || !c.Since.Equal(base.Add(2*time.Second)) {
		t.Fatalf("unexpected cursor %+v", c)
	}

	s.Replace([]models.SettlementTransaction{row(9, 9)})
	if s.Len() != 1 {
		t.Fatalf("replace must drop previous rows, got %d", s.Len())
	}
	if _, ok := s.Get(3); ok {
		t.Fatalf("row 3 should be gone after replace")
	}
}

func TestStore_MergeSkipsKnownIds(t *testing.T) {
	s := NewStore[models.SettlementTransaction]()
	s.Replace([]models.SettlementTransaction{row(2, 2), row(1, 1)})

	stale := row(2, 2)
	stale.VerificationNotes = "from a since page"
	added := s.Merge([]models.SettlementTransaction{row(4, 4), stale, row(3, 3), row(4, 4)})
	if added != 2 {
		t.Fatalf("expected 2 new rows, got %d", added)
	}
	if got := ids(s.Rows()); !equalInts(got, []int{4, 3, 2, 1}) {
		t.Fatalf("expected [4 3 2 1], got %v", got)
	}
	if r, _ := s.Get(2); r.VerificationNotes != "" {
		t.Fatalf("merge must not overwrite a held row")
	}
	if s.Merge(nil) != 0 {
		t.Fatalf("empty merge should add nothing")
	}
}

func TestStore_ApplyReplacesWholeRow(t *testing.T) {
	s := NewStore[models.SettlementTransaction]()
	s.Replace([]models.SettlementTransaction{row(1, 1), row(2, 2)})

	updated := row(1, 1)
	updated.VerificationStatus = models.VerificationStatusVerified
	updated.Version = 2
	if !s.Apply(updated) {
		t.Fatalf("expected Apply to find row 1")
	}
	got, _ := s.Get(1)
	if got.VerificationStatus != models.VerificationStatusVerified || got.Version != 2 {
		t.Fatalf("row not replaced: %+v", got)
	}
	if s.Apply(row(7, 7)) {
		t.Fatalf("Apply must not insert unknown rows")
	}
	if s.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", s.Len())
	}
}
