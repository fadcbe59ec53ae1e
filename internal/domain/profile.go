package domain

import "time"

// Profile is a customer identity known to the platform.
type Profile struct {
	ID        string
	FullName  string
	Email     string
	Phone     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CardLink remembers which profile used a card, identified by last4 and holder name.
type CardLink struct {
	ProfileID  string
	CardLast4  string
	CardHolder string
	LastUsedAt *time.Time
}
