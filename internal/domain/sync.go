package domain

// SyncAction is the kind of change a statement reconciliation proposes.
type SyncAction string

const (
	ActionCreate SyncAction = "create"
	ActionUpdate SyncAction = "update"
	ActionDelete SyncAction = "delete"
)

// Difference is one tracked field that differs between statement and internal record.
type Difference struct {
	Field  string
	Before string
	After  string
}

// Cascade lists downstream entities affected when a change is applied.
type Cascade struct {
	OrdersToUpdate        []string
	OrdersToCancel        []string
	SubscriptionsToCancel []string
	EntitlementsToRevoke  []string
	RevokesChannelAccess  bool
}

// Empty reports whether applying the change touches nothing downstream.
func (c Cascade) Empty() bool {
	return len(c.OrdersToUpdate) == 0 &&
		len(c.OrdersToCancel) == 0 &&
		len(c.SubscriptionsToCancel) == 0 &&
		len(c.EntitlementsToRevoke) == 0 &&
		!c.RevokesChannelAccess
}

// SyncChange is one computed diff entry. It is rebuilt on every preview.
type SyncChange struct {
	UID         string
	Action      SyncAction
	Statement   *Transaction
	Internal    *Transaction
	Differences []Difference
	Cascade     Cascade
	IsDangerous bool
}
