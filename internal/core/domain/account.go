package domain

import "time"

// Account is a tenant with its own monthly scan quota. The usage counter is
// only meaningful within the calendar month of ScanCountResetAt; once the
// wall clock leaves that month the counter is stale and must be reset before
// any read or write.
type Account struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Code             string    `json:"code"`
	MonthlyScanLimit int       `json:"monthly_scan_limit"`
	CurrentScanCount int       `json:"current_scan_count"`
	ScanCountResetAt time.Time `json:"scan_count_reset_at"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// UsageStale reports whether the counter belongs to an earlier calendar
// month/year than now.
func (a *Account) UsageStale(now time.Time) bool {
	return a.ScanCountResetAt.Month() != now.Month() || a.ScanCountResetAt.Year() != now.Year()
}

// QuotaStats is the rollover-corrected usage view of one account.
type QuotaStats struct {
	Name            string    `json:"name"`
	Code            string    `json:"code"`
	MonthlyLimit    int       `json:"monthly_limit"`
	CurrentUsage    int       `json:"current_month_usage"`
	UsagePercentage int       `json:"usage_percentage"`
	RemainingScans  int       `json:"remaining_scans"`
	LastResetAt     time.Time `json:"last_reset_date"`
}

func NewQuotaStats(a *Account) QuotaStats {
	pct := 0
	if a.MonthlyScanLimit > 0 {
		pct = int(float64(a.CurrentScanCount)/float64(a.MonthlyScanLimit)*100 + 0.5)
	}
	remaining := a.MonthlyScanLimit - a.CurrentScanCount
	if remaining < 0 {
		remaining = 0
	}
	return QuotaStats{
		Name:            a.Name,
		Code:            a.Code,
		MonthlyLimit:    a.MonthlyScanLimit,
		CurrentUsage:    a.CurrentScanCount,
		UsagePercentage: pct,
		RemainingScans:  remaining,
		LastResetAt:     a.ScanCountResetAt,
	}
}
