// Package expenses manages user-owned expenses and their monthly summaries.
package expenses

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the expense is missing, deleted or not owned.
	ErrNotFound = errors.New("expense not found")
	// ErrCategoryNotOwned indicates the referenced category does not exist
	// for the owner.
	ErrCategoryNotOwned = errors.New("category not found")
	// ErrNoData is returned by MonthlySummary for a period with no
	// categorised expenses.
	ErrNoData = errors.New("no expenses found for this period")
	// ErrInvalidPeriod indicates an out-of-range month or year.
	ErrInvalidPeriod = errors.New("month must be 1-12 and year must be 1970-9999")
	// ErrInvalidExpense indicates a blank title, a missing amount or an
	// amount outside the stored precision.
	ErrInvalidExpense = errors.New("title and amount are required and amount must fit 12 digits")
	// ErrInvalidRange indicates start_date after end_date.
	ErrInvalidRange = errors.New("start_date must not be after end_date")
)

// CategoryRef is the embedded category of an expense.
type CategoryRef struct {
	ID   int64
	Name string
}

// Expense is a single spend record.
type Expense struct {
	ID          int64
	Title       string
	Amount      float64
	Date        time.Time
	Description *string
	CategoryID  *int64
	Category    *CategoryRef
	UserID      int64
	IsDeleted   bool
	DeletedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewExpense carries the fields of an insert.
type NewExpense struct {
	Title       string
	Amount      float64
	Date        time.Time
	Description *string
	CategoryID  *int64
}

// Changes lists fields to update; nil fields are left unchanged.
type Changes struct {
	Title       *string
	Amount      *float64
	Date        *time.Time
	Description *string
	CategoryID  *int64
}

// Empty reports whether no field is set.
func (c Changes) Empty() bool {
	return c.Title == nil && c.Amount == nil && c.Date == nil && c.Description == nil && c.CategoryID == nil
}

// ListFilter narrows a listing. Dates are inclusive.
type ListFilter struct {
	Skip       int
	Limit      int
	CategoryID *int64
	StartDate  *time.Time
	EndDate    *time.Time
}

// CategoryTotal is one row of a monthly summary.
type CategoryTotal struct {
	Category string  `json:"category"`
	Total    float64 `json:"total"`
}
