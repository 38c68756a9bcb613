package categories

import (
	"context"
	"log/slog"

	"github.com/pocketledger/pocketledger/internal/shared"
)

// Service implements category use cases.
type Service struct {
	repo    RepositoryPort
	auditor shared.Auditor
	logger  *slog.Logger
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

// Create adds a category for ownerID.
func (s *Service) Create(ctx context.Context, ownerID int64, req CreateCategoryRequest) (Category, error) {
	name, err := NormalizeName(req.Name)
	if err != nil {
		return Category{}, err
	}
	var created Category
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		c, err := tx.Insert(ctx, ownerID, name)
		if err != nil {
			return err
		}
		created = c
		return nil
	})
	if err != nil {
		return Category{}, err
	}
	s.audit(ctx, ownerID, "category.create", created.ID, map[string]any{"name": created.Name})
	return created, nil
}

// Get returns one owned category.
func (s *Service) Get(ctx context.Context, ownerID, id int64) (Category, error) {
	return s.repo.Get(ctx, ownerID, id)
}

// List returns a page of the owner's categories.
func (s *Service) List(ctx context.Context, ownerID int64, req ListCategoriesRequest) ([]Category, error) {
	return s.repo.List(ctx, ownerID, shared.NewPage(req.Skip, req.Limit))
}

// Update renames an owned category. An empty request returns it unchanged.
func (s *Service) Update(ctx context.Context, ownerID, id int64, req UpdateCategoryRequest) (Category, error) {
	var (
		before, after Category
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, ownerID, id)
		if err != nil {
			return err
		}
		before, after = current, current
		if req.Name == nil {
			return nil
		}
		name, err := NormalizeName(*req.Name)
		if err != nil {
			return err
		}
		if name == current.Name {
			return nil
		}
		after, err = tx.Rename(ctx, ownerID, id, name)
		return err
	})
	if err != nil {
		return Category{}, err
	}
	if before.Name != after.Name {
		s.audit(ctx, ownerID, "category.update", id, map[string]any{
			"old": map[string]any{"name": before.Name},
			"new": map[string]any{"name": after.Name},
		})
	}
	return after, nil
}

// Delete soft-deletes an owned category together with all of its expenses
// in one transaction.
func (s *Service) Delete(ctx context.Context, ownerID, id int64) error {
	var (
		deleted  Category
		cascaded int64
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		c, err := tx.GetForUpdate(ctx, ownerID, id)
		if err != nil {
			return err
		}
		n, err := tx.SoftDeleteExpenses(ctx, ownerID, id)
		if err != nil {
			return err
		}
		if err := tx.SoftDelete(ctx, ownerID, id); err != nil {
			return err
		}
		deleted, cascaded = c, n
		return nil
	})
	if err != nil {
		return err
	}
	s.audit(ctx, ownerID, "category.delete", id, map[string]any{
		"name":             deleted.Name,
		"expenses_deleted": cascaded,
	})
	return nil
}

func (s *Service) audit(ctx context.Context, ownerID int64, action string, targetID int64, data map[string]any) {
	entry := shared.AuditLog{
		UserID:     ownerID,
		Action:     action,
		TargetType: "category",
		TargetID:   targetID,
		Data:       data,
	}
	if err := s.auditor.Record(ctx, entry); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
