package expenses

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pocketledger/pocketledger/internal/platform/db"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var expenseColumns = []string{
	"e.id", "e.title", "e.amount", "e.date", "e.description", "e.category_id",
	"c.name", "e.user_id", "e.is_deleted", "e.deleted_at", "e.created_at", "e.updated_at",
}

// RepositoryPort is the persistence surface the service depends on.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, ownerID, id int64) (Expense, error)
	List(ctx context.Context, ownerID int64, filter ListFilter) ([]Expense, error)
	MonthlyTotals(ctx context.Context, ownerID int64, start, end time.Time) ([]CategoryTotal, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	// CategoryOwned reports whether categoryID is an active category of
	// ownerID, holding a share lock on it until the transaction ends.
	CategoryOwned(ctx context.Context, ownerID, categoryID int64) (bool, error)
	Insert(ctx context.Context, ownerID int64, in NewExpense) (Expense, error)
	GetForUpdate(ctx context.Context, ownerID, id int64) (Expense, error)
	Update(ctx context.Context, ownerID, id int64, changes Changes) (Expense, error)
	SoftDelete(ctx context.Context, ownerID, id int64) error
}

// Repository provides PostgreSQL backed persistence for expenses.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a read-committed transaction; see db.LockingTx.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, db.LockingTx, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

func selectExpenses() sq.SelectBuilder {
	return psql.Select(expenseColumns...).
		From("expenses e").
		LeftJoin("categories c ON c.id = e.category_id AND NOT c.is_deleted")
}

func ownedActive(ownerID, id int64) sq.Eq {
	return sq.Eq{"e.id": id, "e.user_id": ownerID, "e.is_deleted": false}
}

// Get returns an owned, non-deleted expense.
func (r *Repository) Get(ctx context.Context, ownerID, id int64) (Expense, error) {
	return getExpense(ctx, r.pool, selectExpenses().Where(ownedActive(ownerID, id)))
}

// List returns the owner's expenses, newest date first.
func (r *Repository) List(ctx context.Context, ownerID int64, filter ListFilter) ([]Expense, error) {
	query, args, err := listQuery(ownerID, filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("expenses: build list: %w", err)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("expenses: list: %w", err)
	}
	defer rows.Close()

	out := make([]Expense, 0)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("expenses: scan: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("expenses: list: %w", err)
	}
	return out, nil
}

// MonthlyTotals sums the owner's categorised expenses dated within
// [start, end] grouped by category name.
func (r *Repository) MonthlyTotals(ctx context.Context, ownerID int64, start, end time.Time) ([]CategoryTotal, error) {
	query, args, err := monthlyTotalsQuery(ownerID, start, end).ToSql()
	if err != nil {
		return nil, fmt.Errorf("expenses: build summary: %w", err)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("expenses: summary: %w", err)
	}
	defer rows.Close()

	out := make([]CategoryTotal, 0)
	for rows.Next() {
		var t CategoryTotal
		if err := rows.Scan(&t.Category, &t.Total); err != nil {
			return nil, fmt.Errorf("expenses: scan summary: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("expenses: summary: %w", err)
	}
	return out, nil
}

func listQuery(ownerID int64, filter ListFilter) sq.SelectBuilder {
	builder := selectExpenses().
		Where(sq.Eq{"e.user_id": ownerID, "e.is_deleted": false})
	if filter.CategoryID != nil {
		builder = builder.Where(sq.Eq{"e.category_id": *filter.CategoryID})
	}
	if filter.StartDate != nil {
		builder = builder.Where(sq.GtOrEq{"e.date": *filter.StartDate})
	}
	if filter.EndDate != nil {
		builder = builder.Where(sq.LtOrEq{"e.date": *filter.EndDate})
	}
	return builder.
		OrderBy("e.date DESC", "e.id DESC").
		Offset(uint64(filter.Skip)).
		Limit(uint64(filter.Limit))
}

// monthlyTotalsQuery requires both the expense and its category to belong
// to the owner.
func monthlyTotalsQuery(ownerID int64, start, end time.Time) sq.SelectBuilder {
	return psql.Select("c.name", "SUM(e.amount)").
		From("expenses e").
		Join("categories c ON c.id = e.category_id").
		Where(sq.Eq{"e.user_id": ownerID, "c.user_id": ownerID, "e.is_deleted": false, "c.is_deleted": false}).
		Where(sq.GtOrEq{"e.date": start}).
		Where(sq.LtOrEq{"e.date": end}).
		GroupBy("c.name").
		OrderBy("c.name")
}

func (t *txRepo) CategoryOwned(ctx context.Context, ownerID, categoryID int64) (bool, error) {
	var one int
	err := t.tx.QueryRow(ctx,
		`SELECT 1 FROM categories WHERE id = $1 AND user_id = $2 AND NOT is_deleted FOR SHARE`,
		categoryID, ownerID).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("expenses: check category: %w", err)
	}
	return true, nil
}

func (t *txRepo) Insert(ctx context.Context, ownerID int64, in NewExpense) (Expense, error) {
	query, args, err := psql.Insert("expenses").
		Columns("title", "amount", "date", "description", "category_id", "user_id").
		Values(in.Title, in.Amount, in.Date, in.Description, in.CategoryID, ownerID).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return Expense{}, fmt.Errorf("expenses: build insert: %w", err)
	}
	var id int64
	if err := t.tx.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return Expense{}, fmt.Errorf("expenses: insert: %w", err)
	}
	return getExpense(ctx, t.tx, selectExpenses().Where(ownedActive(ownerID, id)))
}

func (t *txRepo) GetForUpdate(ctx context.Context, ownerID, id int64) (Expense, error) {
	return getExpense(ctx, t.tx, selectExpenses().Where(ownedActive(ownerID, id)).Suffix("FOR UPDATE OF e"))
}

func (t *txRepo) Update(ctx context.Context, ownerID, id int64, changes Changes) (Expense, error) {
	set := map[string]any{"updated_at": sq.Expr("NOW()")}
	if changes.Title != nil {
		set["title"] = *changes.Title
	}
	if changes.Amount != nil {
		set["amount"] = *changes.Amount
	}
	if changes.Date != nil {
		set["date"] = *changes.Date
	}
	if changes.Description != nil {
		set["description"] = *changes.Description
	}
	if changes.CategoryID != nil {
		set["category_id"] = *changes.CategoryID
	}
	query, args, err := psql.Update("expenses").
		SetMap(set).
		Where(sq.Eq{"id": id, "user_id": ownerID, "is_deleted": false}).
		ToSql()
	if err != nil {
		return Expense{}, fmt.Errorf("expenses: build update: %w", err)
	}
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return Expense{}, fmt.Errorf("expenses: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Expense{}, ErrNotFound
	}
	return getExpense(ctx, t.tx, selectExpenses().Where(ownedActive(ownerID, id)))
}

func (t *txRepo) SoftDelete(ctx context.Context, ownerID, id int64) error {
	query, args, err := psql.Update("expenses").
		Set("is_deleted", true).
		Set("deleted_at", sq.Expr("NOW()")).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id, "user_id": ownerID, "is_deleted": false}).
		ToSql()
	if err != nil {
		return fmt.Errorf("expenses: build delete: %w", err)
	}
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("expenses: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func getExpense(ctx context.Context, q db.Querier, builder sq.SelectBuilder) (Expense, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return Expense{}, fmt.Errorf("expenses: build get: %w", err)
	}
	e, err := scanExpense(q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Expense{}, ErrNotFound
		}
		return Expense{}, fmt.Errorf("expenses: get: %w", err)
	}
	return e, nil
}

func scanExpense(row pgx.Row) (Expense, error) {
	var (
		e            Expense
		categoryName *string
	)
	err := row.Scan(&e.ID, &e.Title, &e.Amount, &e.Date, &e.Description, &e.CategoryID,
		&categoryName, &e.UserID, &e.IsDeleted, &e.DeletedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return Expense{}, err
	}
	if e.CategoryID != nil && categoryName != nil {
		e.Category = &CategoryRef{ID: *e.CategoryID, Name: *categoryName}
	}
	return e, nil
}

var _ RepositoryPort = (*Repository)(nil)
