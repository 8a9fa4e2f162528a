package model

import "time"

// DayLayout is the calendar-date key format of daily statistics documents.
const DayLayout = "2006-01-02"

// DailyStats aggregates confirmed payments for one calendar day.
type DailyStats struct {
	Date              string                   `json:"date" firestore:"date"`
	TotalCents        int64                    `json:"totalCents" firestore:"totalCents"`
	TotalTransactions int64                    `json:"totalTransactions" firestore:"totalTransactions"`
	Accounts          map[string]AccountTotals `json:"accounts" firestore:"accounts"`
	UpdatedAt         time.Time                `json:"updatedAt" firestore:"updatedAt"`
}

// AccountTotals is the per-account slice of a DailyStats document.
type AccountTotals struct {
	TotalCents       int64 `json:"totalCents" firestore:"totalCents"`
	TransactionCount int64 `json:"transactionCount" firestore:"transactionCount"`
}

// Add folds one confirmed payment into the aggregate.
func (d *DailyStats) Add(account string, cents int64, at time.Time) {
	if d.Accounts == nil {
		d.Accounts = make(map[string]AccountTotals)
	}
	t := d.Accounts[account]
	t.TotalCents += cents
	t.TransactionCount++
	d.Accounts[account] = t
	d.TotalCents += cents
	d.TotalTransactions++
	d.UpdatedAt = at
}

// DayKey returns the stats document key for t in UTC.
func DayKey(t time.Time) string {
	return t.UTC().Format(DayLayout)
}
