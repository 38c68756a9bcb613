package expenses

import (
	"context"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pocketledger/pocketledger/internal/shared"
)

// Service implements expense use cases. Every method takes the owner id
// explicitly and never reads or writes another user's rows.
type Service struct {
	repo    RepositoryPort
	auditor shared.Auditor
	logger  *slog.Logger
	group   singleflight.Group
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, auditor shared.Auditor, logger *slog.Logger) *Service {
	if auditor == nil {
		auditor = shared.NopAuditor{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, auditor: auditor, logger: logger}
}

// Create inserts an expense after confirming the category, if any, belongs
// to the owner. Both happen in one transaction.
func (s *Service) Create(ctx context.Context, ownerID int64, req CreateExpenseRequest) (Expense, error) {
	req.Normalize()
	if req.Title == "" || req.Amount == nil {
		return Expense{}, ErrInvalidExpense
	}
	amount, err := checkedAmount(*req.Amount)
	if err != nil {
		return Expense{}, err
	}
	in := NewExpense{
		Title:       req.Title,
		Amount:      amount,
		Description: req.Description,
		CategoryID:  req.CategoryID,
	}
	if req.Date != nil {
		in.Date = req.Date.Time
	}
	var created Expense
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if in.CategoryID != nil {
			if err := requireCategory(ctx, tx, ownerID, *in.CategoryID); err != nil {
				return err
			}
		}
		e, err := tx.Insert(ctx, ownerID, in)
		if err != nil {
			return err
		}
		created = e
		return nil
	})
	if err != nil {
		return Expense{}, err
	}
	s.audit(ctx, ownerID, "expense.create", created.ID, map[string]any{"new": auditView(created)})
	return created, nil
}

// Get returns one owned expense.
func (s *Service) Get(ctx context.Context, ownerID, id int64) (Expense, error) {
	return s.repo.Get(ctx, ownerID, id)
}

// List returns the owner's expenses matching filter.
func (s *Service) List(ctx context.Context, ownerID int64, filter ListFilter) ([]Expense, error) {
	if filter.StartDate != nil && filter.EndDate != nil && filter.StartDate.After(*filter.EndDate) {
		return nil, ErrInvalidRange
	}
	page := shared.NewPage(filter.Skip, filter.Limit)
	filter.Skip, filter.Limit = page.Skip, page.Limit
	return s.repo.List(ctx, ownerID, filter)
}

// Update applies a partial update to an owned expense.
func (s *Service) Update(ctx context.Context, ownerID, id int64, req UpdateExpenseRequest) (Expense, error) {
	req.Normalize()
	if req.Title != nil && *req.Title == "" {
		return Expense{}, ErrInvalidExpense
	}
	changes := Changes{
		Title:       req.Title,
		Description: req.Description,
		CategoryID:  req.CategoryID,
	}
	if req.Amount != nil {
		v, err := checkedAmount(*req.Amount)
		if err != nil {
			return Expense{}, err
		}
		changes.Amount = &v
	}
	if req.Date != nil {
		d := req.Date.Time
		changes.Date = &d
	}

	var before, after Expense
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, ownerID, id)
		if err != nil {
			return err
		}
		before, after = current, current
		if changes.Empty() {
			return nil
		}
		if changes.CategoryID != nil {
			if err := requireCategory(ctx, tx, ownerID, *changes.CategoryID); err != nil {
				return err
			}
		}
		after, err = tx.Update(ctx, ownerID, id, changes)
		return err
	})
	if err != nil {
		return Expense{}, err
	}
	if !changes.Empty() {
		s.audit(ctx, ownerID, "expense.update", id, map[string]any{
			"old": auditView(before),
			"new": auditView(after),
		})
	}
	return after, nil
}

// Delete soft-deletes an owned expense.
func (s *Service) Delete(ctx context.Context, ownerID, id int64) error {
	var deleted Expense
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, ownerID, id)
		if err != nil {
			return err
		}
		deleted = current
		return tx.SoftDelete(ctx, ownerID, id)
	})
	if err != nil {
		return err
	}
	s.audit(ctx, ownerID, "expense.delete", id, map[string]any{"old": auditView(deleted)})
	return nil
}

func requireCategory(ctx context.Context, tx TxRepository, ownerID, categoryID int64) error {
	ok, err := tx.CategoryOwned(ctx, ownerID, categoryID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCategoryNotOwned
	}
	return nil
}

func (s *Service) audit(ctx context.Context, ownerID int64, action string, targetID int64, data map[string]any) {
	entry := shared.AuditLog{
		UserID:     ownerID,
		Action:     action,
		TargetType: "expense",
		TargetID:   targetID,
		Data:       data,
	}
	if err := s.auditor.Record(ctx, entry); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func auditView(e Expense) map[string]any {
	view := map[string]any{
		"title":  e.Title,
		"amount": e.Amount,
		"date":   e.Date.Format(time.DateOnly),
	}
	if e.Description != nil {
		view["description"] = *e.Description
	}
	if e.CategoryID != nil {
		view["category_id"] = *e.CategoryID
	}
	return view
}

// amountLimit is the first magnitude NUMERIC(14,2) cannot store.
const amountLimit = 1e12

// roundCents matches the NUMERIC(14,2) storage precision.
func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// checkedAmount rounds to cents and rejects values the column cannot hold.
func checkedAmount(v float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrInvalidExpense
	}
	v = roundCents(v)
	if math.Abs(v) >= amountLimit {
		return 0, ErrInvalidExpense
	}
	return v, nil
}
