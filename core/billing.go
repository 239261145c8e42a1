package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// DayLayout formats the day component of daily usage keys
const DayLayout = "2006-01-02"

// Day truncates t to its UTC calendar day key
func Day(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// DailyUsage counts matches consumed by a wallet on one UTC day
type DailyUsage struct {
	WalletAddress string
	Day           string
	Matches       int
	Bonus         int // extra matches granted by confirmed payments
}

// Allowance is the number of matches permitted for the day given a base limit
func (u DailyUsage) Allowance(limit int) int {
	return limit + u.Bonus
}

// Remaining is never negative
func (u DailyUsage) Remaining(limit int) int {
	r := u.Allowance(limit) - u.Matches
	if r < 0 {
		return 0
	}
	return r
}

// PaymentStatus is the lifecycle of a payment reference
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentFailed    PaymentStatus = "failed"
)

// Valid reports whether s is a known status
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentConfirmed, PaymentFailed:
		return true
	}
	return false
}

// PaymentReference tracks a purchase of extra matches
type PaymentReference struct {
	ID            string
	WalletAddress string
	Amount        decimal.Decimal
	Credits       int
	Status        PaymentStatus
	TransactionID string
	Granted       bool // credits of a confirmed payment were applied
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
