package schedule

import (
	"math"

	"debts/internal/core"
)

// maxInstallments bounds the due-date walk; terms never exceed 50 years.
const maxInstallments = 50*12 + 1

// dueDates returns the monthly due dates aligned to maturity's day of month
// that fall strictly after anchor, oldest first. A debt past maturity that
// still carries a balance gets a single balloon date of today.
func dueDates(debt core.Debt, history []core.Payment, today core.Date) []core.Date {
	if debt.MaturityDate == nil || debt.BalanceCents <= 0 {
		return nil
	}
	anchor := debt.StartDate
	if n := len(history); n > 0 && history[n-1].PaymentDate.IsAfter(anchor) {
		anchor = history[n-1].PaymentDate
	}

	maturity := *debt.MaturityDate
	var dates []core.Date
	for j := 0; j < maxInstallments; j++ {
		d := maturity.AddMonths(-j)
		if !d.IsAfter(anchor) {
			break
		}
		dates = append(dates, d)
	}
	if len(dates) == 0 {
		return []core.Date{today}
	}
	for i, k := 0, len(dates)-1; i < k; i, k = i+1, k-1 {
		dates[i], dates[k] = dates[k], dates[i]
	}
	return dates
}

// roundCents rounds half away from zero.
func roundCents(x float64) int64 {
	return int64(math.Round(x))
}

// splitEven divides total into n parts that differ by at most one cent. The
// first total%n parts carry the extra cent.
func splitEven(total int64, n int) []int64 {
	if n <= 0 {
		return nil
	}
	parts := make([]int64, n)
	base, rem := total/int64(n), total%int64(n)
	for i := range parts {
		parts[i] = base
		if int64(i) < rem {
			parts[i]++
		}
	}
	return parts
}

func sumInterest(history []core.Payment) int64 {
	var total int64
	for _, p := range history {
		total += p.InterestCents
	}
	return total
}
