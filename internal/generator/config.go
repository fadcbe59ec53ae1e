package generator

import "time"

// Config drives the synthetic statement generator.
type Config struct {
	NumProfiles      int
	NumTransactions  int
	RefundChance     float64
	FailureChance    float64
	FeeChance        float64
	GuestEmailChance float64
	Currency         string
	Start            time.Time
	Days             int
	Seed             int64
}

// DefaultConfig returns settings that produce a month of mixed provider activity.
func DefaultConfig() Config {
	return Config{
		NumProfiles:      200,
		NumTransactions:  2000,
		RefundChance:     0.05,
		FailureChance:    0.1,
		FeeChance:        0.05,
		GuestEmailChance: 0.3,
		Currency:         "BYN",
		Days:             30,
		Seed:             42,
	}
}
