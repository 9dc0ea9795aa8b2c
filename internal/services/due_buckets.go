package services

import (
	"fmt"
	"math"
	"sort"

	"debts/internal/core"
)

// DueBucket groups an upcoming payment by how far its due date is from today.
type DueBucket string

const (
	BucketOverdue      DueBucket = "overdue"
	BucketDueToday     DueBucket = "dueToday"
	BucketDueThisWeek  DueBucket = "dueThisWeek"
	BucketDueThisMonth DueBucket = "dueThisMonth"
)

// dueWindow is an inclusive range of days until the due date.
type dueWindow struct {
	bucket  DueBucket
	minDays int
	maxDays int
}

// dueWindows is ordered and non-overlapping. Dates further than 30 days out
// fall in no bucket.
var dueWindows = []dueWindow{
	{BucketOverdue, math.MinInt, -1},
	{BucketDueToday, 0, 0},
	{BucketDueThisWeek, 1, 7},
	{BucketDueThisMonth, 8, 30},
}

// ClassifyDue returns the bucket of a due date relative to today.
func ClassifyDue(due, today core.Date) (DueBucket, bool) {
	days := today.DaysUntil(due)
	for _, w := range dueWindows {
		if days >= w.minDays && days <= w.maxDays {
			return w.bucket, true
		}
	}
	return "", false
}

// bucketSlot returns the list of u that holds bucket b.
func bucketSlot(u *core.UpcomingPayments, b DueBucket) (*[]core.UpcomingPayment, error) {
	switch b {
	case BucketOverdue:
		return &u.Overdue, nil
	case BucketDueToday:
		return &u.DueToday, nil
	case BucketDueThisWeek:
		return &u.DueThisWeek, nil
	case BucketDueThisMonth:
		return &u.DueThisMonth, nil
	default:
		return nil, fmt.Errorf("unsupported due bucket: %s", b)
	}
}

// groupUpcoming buckets next-due payments, earliest first within a bucket.
// Every bucket is non-nil so an empty household serializes as empty lists.
func groupUpcoming(next []core.UpcomingPayment, today core.Date) (core.UpcomingPayments, error) {
	out := core.UpcomingPayments{
		Overdue:      []core.UpcomingPayment{},
		DueToday:     []core.UpcomingPayment{},
		DueThisWeek:  []core.UpcomingPayment{},
		DueThisMonth: []core.UpcomingPayment{},
	}
	for _, p := range next {
		b, ok := ClassifyDue(p.DueDate, today)
		if !ok {
			continue
		}
		slot, err := bucketSlot(&out, b)
		if err != nil {
			return core.UpcomingPayments{}, err
		}
		*slot = append(*slot, p)
	}
	for _, list := range [][]core.UpcomingPayment{out.Overdue, out.DueToday, out.DueThisWeek, out.DueThisMonth} {
		sort.SliceStable(list, func(i, j int) bool {
			if !list[i].DueDate.Same(list[j].DueDate) {
				return list[i].DueDate.IsBefore(list[j].DueDate)
			}
			return list[i].Name < list[j].Name
		})
	}
	return out, nil
}
