package domain

import "time"

// MatchMethod names the identity strategy that resolved a transaction.
type MatchMethod string

const (
	MatchByEmail MatchMethod = "email"
	MatchByCard  MatchMethod = "card"
	MatchByName  MatchMethod = "name"
	MatchNone    MatchMethod = "none"
)

// MatchResult is attached to a transaction after identity resolution.
// ProfileID is empty when MatchedBy is MatchNone.
type MatchResult struct {
	ProfileID string
	MatchedBy MatchMethod
}

// Matched reports whether a profile was resolved.
func (m MatchResult) Matched() bool {
	return m.ProfileID != "" && m.MatchedBy != MatchNone && m.MatchedBy != ""
}

// RecordSource names where a queued transaction came from.
type RecordSource string

const (
	SourceImport  RecordSource = "import"
	SourceWebhook RecordSource = "webhook"
	SourcePoll    RecordSource = "poll"
)

// JobStatus is the lifecycle of a queue item. It is deliberately separate from
// the payment status of the transaction it carries.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobMatched   JobStatus = "matched"
	JobProcessed JobStatus = "processed"
	JobSkipped   JobStatus = "skipped"
	JobCancelled JobStatus = "cancelled"
)

// QueueItem is a provider transaction waiting to be promoted into a Payment.
type QueueItem struct {
	ID            string
	Transaction   Transaction
	Source        RecordSource
	JobStatus     JobStatus
	Match         MatchResult
	ImportBatchID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ProcessedAt   *time.Time
}

// StatusOverride is an admin-set status for one provider uid that supersedes the classifier.
type StatusOverride struct {
	Provider  string
	UID       string
	Status    Status
	Reason    string
	CreatedAt time.Time
}
