package stats

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vanshika/payrecon/backend/internal/domain"
)

func tx(uid string, status domain.Status, amount, commission string) domain.Transaction {
	return domain.Transaction{
		UID:              uid,
		StatusNormalized: status,
		Amount:           decimal.RequireFromString(amount),
		Commission:       decimal.RequireFromString(commission),
	}
}

func TestAggregate(t *testing.T) {
	fee := tx("f", domain.StatusSuccessful, "0.5", "0")
	fee.IsFee = true
	txs := []domain.Transaction{
		tx("a", domain.StatusSuccessful, "100.50", "2.01"),
		tx("b", domain.StatusSuccessful, "50", "1"),
		tx("c", domain.StatusRefund, "-20", "0"),
		tx("d", domain.StatusCancel, "10", "0"),
		tx("e", domain.StatusFailed, "15", "0"),
		tx("g", domain.StatusPending, "5", "0"),
		fee,
	}

	s := Aggregate(txs)
	if s.Total != 7 {
		t.Fatalf("expected total 7, got %d", s.Total)
	}
	if s.Successful.Count != 2 || !s.Successful.Amount.Equal(decimal.RequireFromString("150.50")) {
		t.Fatalf("unexpected successful bucket %+v", s.Successful)
	}
	if s.Refunded.Count != 1 || !s.Refunded.Amount.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("unexpected refunded bucket %+v", s.Refunded)
	}
	if s.Cancelled.Count != 1 || s.Failed.Count != 1 || s.Pending.Count != 1 || s.Fees.Count != 1 {
		t.Fatalf("unexpected buckets %+v", s)
	}
	if !s.Commission.Equal(decimal.RequireFromString("3.01")) {
		t.Fatalf("unexpected commission %s", s.Commission)
	}
	if !Net(s).Equal(decimal.RequireFromString("120.50")) {
		t.Fatalf("unexpected net %s", Net(s))
	}
}

func TestAggregateIsOrderIndependent(t *testing.T) {
	txs := []domain.Transaction{
		tx("a", domain.StatusSuccessful, "1.10", "0.1"),
		tx("b", domain.StatusRefund, "2.20", "0"),
		tx("c", domain.StatusSuccessful, "3.30", "0.2"),
	}
	reversed := []domain.Transaction{txs[2], txs[1], txs[0]}

	a, b := Aggregate(txs), Aggregate(reversed)
	if a.Total != b.Total || !a.Successful.Amount.Equal(b.Successful.Amount) || !a.Commission.Equal(b.Commission) {
		t.Fatalf("aggregate depends on order: %+v vs %+v", a, b)
	}
	if c := Aggregate(txs); !c.Successful.Amount.Equal(a.Successful.Amount) {
		t.Fatal("aggregate is not idempotent")
	}
}

func TestProject(t *testing.T) {
	internal := []domain.Transaction{
		tx("keep", domain.StatusSuccessful, "10", "0"),
		tx("upd", domain.StatusPending, "20", "0"),
		tx("del", domain.StatusSuccessful, "30", "0"),
	}
	created := tx("new", domain.StatusSuccessful, "40", "0")
	updated := tx("upd", domain.StatusSuccessful, "20", "0")
	changes := []domain.SyncChange{
		{UID: "new", Action: domain.ActionCreate, Statement: &created},
		{UID: "upd", Action: domain.ActionUpdate, Statement: &updated, Internal: &internal[1]},
		{UID: "del", Action: domain.ActionDelete, Internal: &internal[2]},
	}

	all := Project(internal, changes, []string{"new", "upd", "del"})
	if all.Total != 3 || all.Successful.Count != 3 || !all.Successful.Amount.Equal(decimal.NewFromInt(70)) {
		t.Fatalf("unexpected projection %+v", all)
	}

	none := Project(internal, changes, nil)
	if none.Total != 3 || none.Pending.Count != 1 || !none.Successful.Amount.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("unexpected projection without selection %+v", none)
	}
}
