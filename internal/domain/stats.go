package domain

import "github.com/shopspring/decimal"

// Bucket is a count and a summed amount for one status group.
type Bucket struct {
	Count  int
	Amount decimal.Decimal
}

// Stats is the rollup used for previews and post-sync reports.
type Stats struct {
	Total      int
	Successful Bucket
	Refunded   Bucket
	Cancelled  Bucket
	Failed     Bucket
	Pending    Bucket
	Fees       Bucket
	Commission decimal.Decimal
}

// MergedRecord is one row of the combined queue + payments view.
type MergedRecord struct {
	Transaction   Transaction
	Source        string
	RecordID      string
	Match         MatchResult
	JobStatus     JobStatus
	DisplayAmount decimal.Decimal
}

// MergedListResult captures a paginated page of the merged view.
type MergedListResult struct {
	Items []MergedRecord
	Total int64
}
