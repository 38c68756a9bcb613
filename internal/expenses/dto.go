package expenses

import (
	"errors"
	"strings"
	"time"

	"github.com/pocketledger/pocketledger/internal/platform/httpx"
)

var errDateFormat = errors.New("date must be YYYY-MM-DD")

// Date is a calendar date carried as YYYY-MM-DD on the wire.
type Date struct {
	time.Time
}

// UnmarshalJSON parses a quoted YYYY-MM-DD value.
func (d *Date) UnmarshalJSON(b []byte) error {
	raw := strings.Trim(string(b), `"`)
	if raw == "" || raw == "null" {
		return errDateFormat
	}
	t, err := time.Parse(httpx.DateLayout, raw)
	if err != nil {
		return errDateFormat
	}
	d.Time = t
	return nil
}

// MarshalJSON renders the date as YYYY-MM-DD.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format(httpx.DateLayout) + `"`), nil
}

// CreateExpenseRequest is the body of POST /expenses/.
type CreateExpenseRequest struct {
	Title       string   `json:"title" validate:"required,max=255"`
	Amount      *float64 `json:"amount" validate:"required,gte=-999999999999.99,lte=999999999999.99"`
	Date        *Date    `json:"date" validate:"required"`
	Description *string  `json:"description"`
	CategoryID  *int64   `json:"category_id" validate:"omitempty,gt=0"`
}

// Normalize trims the title so whitespace-only values fail validation.
func (r *CreateExpenseRequest) Normalize() {
	r.Title = strings.TrimSpace(r.Title)
}

// UpdateExpenseRequest is the body of PUT /expenses/{id}. Omitted fields are
// left unchanged.
type UpdateExpenseRequest struct {
	Title       *string  `json:"title" validate:"omitnil,min=1,max=255"`
	Amount      *float64 `json:"amount" validate:"omitnil,gte=-999999999999.99,lte=999999999999.99"`
	Date        *Date    `json:"date"`
	Description *string  `json:"description"`
	CategoryID  *int64   `json:"category_id" validate:"omitempty,gt=0"`
}

// Normalize trims the title when present.
func (r *UpdateExpenseRequest) Normalize() {
	if r.Title != nil {
		t := strings.TrimSpace(*r.Title)
		r.Title = &t
	}
}

// CategoryResponse is the category embedded in an expense.
type CategoryResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ExpenseResponse is the public view of an expense.
type ExpenseResponse struct {
	ID          int64             `json:"id"`
	Title       string            `json:"title"`
	Amount      float64           `json:"amount"`
	Date        Date              `json:"date"`
	Description *string           `json:"description"`
	CategoryID  *int64            `json:"category_id"`
	Category    *CategoryResponse `json:"category"`
}

// ToResponse maps an Expense to its public view.
func ToResponse(e Expense) ExpenseResponse {
	resp := ExpenseResponse{
		ID:          e.ID,
		Title:       e.Title,
		Amount:      e.Amount,
		Date:        Date{e.Date},
		Description: e.Description,
		CategoryID:  e.CategoryID,
	}
	if e.Category != nil {
		resp.Category = &CategoryResponse{ID: e.Category.ID, Name: e.Category.Name}
	}
	return resp
}
