package expenses

import (
	"context"
	"fmt"
	"time"

	"github.com/jinzhu/now"
	"golang.org/x/sync/singleflight"
)

const (
	minSummaryYear = 1970
	maxSummaryYear = 9999

	summaryQueryTimeout = 10 * time.Second
)

// MonthBounds returns the first and last calendar day of month/year.
func MonthBounds(month, year int) (time.Time, time.Time, error) {
	if month < 1 || month > 12 || year < minSummaryYear || year > maxSummaryYear {
		return time.Time{}, time.Time{}, ErrInvalidPeriod
	}
	anchor := now.With(time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC))
	start := anchor.BeginningOfMonth()
	last := anchor.EndOfMonth()
	end := time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, time.UTC)
	return start, end, nil
}

// MonthlySummary totals the owner's expenses per category for the month.
// Uncategorised expenses are not included. An empty period yields ErrNoData.
// Identical concurrent requests share one query, which is detached from the
// first caller's cancellation so it cannot fail the others.
func (s *Service) MonthlySummary(ctx context.Context, ownerID int64, month, year int) ([]CategoryTotal, error) {
	start, end, err := MonthBounds(month, year)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%d:%04d-%02d", ownerID, year, month)
	ch := s.group.DoChan(key, func() (any, error) {
		qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), summaryQueryTimeout)
		defer cancel()
		return s.repo.MonthlyTotals(qctx, ownerID, start, end)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		return nil, res.Err
	}
	totals := res.Val.([]CategoryTotal)
	if len(totals) == 0 {
		return nil, ErrNoData
	}
	out := make([]CategoryTotal, len(totals))
	copy(out, totals)
	return out, nil
}
