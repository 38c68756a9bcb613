package categories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pocketledger/pocketledger/internal/platform/db"
	"github.com/pocketledger/pocketledger/internal/shared"
)

const nameUniqueConstraint = "categories_user_name_key"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var categoryColumns = []string{"id", "name", "user_id", "is_deleted", "deleted_at", "created_at", "updated_at"}

// RepositoryPort is the persistence surface the service depends on.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, ownerID, id int64) (Category, error)
	List(ctx context.Context, ownerID int64, page shared.Page) ([]Category, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	Insert(ctx context.Context, ownerID int64, name string) (Category, error)
	GetForUpdate(ctx context.Context, ownerID, id int64) (Category, error)
	Rename(ctx context.Context, ownerID, id int64, name string) (Category, error)
	SoftDelete(ctx context.Context, ownerID, id int64) error
	SoftDeleteExpenses(ctx context.Context, ownerID, categoryID int64) (int64, error)
}

// Repository provides PostgreSQL backed persistence for categories.
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

func ownedActive(ownerID, id int64) sq.Eq {
	return sq.Eq{"id": id, "user_id": ownerID, "is_deleted": false}
}

// Get returns an owned, non-deleted category.
func (r *Repository) Get(ctx context.Context, ownerID, id int64) (Category, error) {
	return getCategory(ctx, r.pool, psql.Select(categoryColumns...).From("categories").Where(ownedActive(ownerID, id)))
}

// List returns the owner's categories ordered by id.
func (r *Repository) List(ctx context.Context, ownerID int64, page shared.Page) ([]Category, error) {
	query, args, err := listQuery(ownerID, page).ToSql()
	if err != nil {
		return nil, fmt.Errorf("categories: build list: %w", err)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("categories: list: %w", err)
	}
	defer rows.Close()

	out := make([]Category, 0)
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("categories: scan: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("categories: list: %w", err)
	}
	return out, nil
}

func listQuery(ownerID int64, page shared.Page) sq.SelectBuilder {
	return psql.Select(categoryColumns...).
		From("categories").
		Where(sq.Eq{"user_id": ownerID, "is_deleted": false}).
		OrderBy("id").
		Offset(uint64(page.Skip)).
		Limit(uint64(page.Limit))
}

// Insert creates a category; a name clash for the owner yields ErrDuplicateName.
func (t *txRepo) Insert(ctx context.Context, ownerID int64, name string) (Category, error) {
	query, args, err := psql.Insert("categories").
		Columns("name", "user_id").
		Values(name, ownerID).
		Suffix("RETURNING " + joinColumns()).
		ToSql()
	if err != nil {
		return Category{}, fmt.Errorf("categories: build insert: %w", err)
	}
	c, err := scanCategory(t.tx.QueryRow(ctx, query, args...))
	if err != nil {
		if db.IsUniqueViolation(err, nameUniqueConstraint) {
			return Category{}, ErrDuplicateName
		}
		return Category{}, fmt.Errorf("categories: insert: %w", err)
	}
	return c, nil
}

// GetForUpdate locks an owned category for the rest of the transaction.
func (t *txRepo) GetForUpdate(ctx context.Context, ownerID, id int64) (Category, error) {
	return getCategory(ctx, t.tx, psql.Select(categoryColumns...).
		From("categories").
		Where(ownedActive(ownerID, id)).
		Suffix("FOR UPDATE"))
}

// Rename changes the name of an owned category.
func (t *txRepo) Rename(ctx context.Context, ownerID, id int64, name string) (Category, error) {
	query, args, err := psql.Update("categories").
		Set("name", name).
		Set("updated_at", sq.Expr("NOW()")).
		Where(ownedActive(ownerID, id)).
		Suffix("RETURNING " + joinColumns()).
		ToSql()
	if err != nil {
		return Category{}, fmt.Errorf("categories: build rename: %w", err)
	}
	c, err := scanCategory(t.tx.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Category{}, ErrNotFound
		}
		if db.IsUniqueViolation(err, nameUniqueConstraint) {
			return Category{}, ErrDuplicateName
		}
		return Category{}, fmt.Errorf("categories: rename: %w", err)
	}
	return c, nil
}

// SoftDelete marks an owned category deleted.
func (t *txRepo) SoftDelete(ctx context.Context, ownerID, id int64) error {
	query, args, err := psql.Update("categories").
		Set("is_deleted", true).
		Set("deleted_at", sq.Expr("NOW()")).
		Set("updated_at", sq.Expr("NOW()")).
		Where(ownedActive(ownerID, id)).
		ToSql()
	if err != nil {
		return fmt.Errorf("categories: build delete: %w", err)
	}
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("categories: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDeleteExpenses marks every owned expense of the category deleted and
// returns how many were affected.
func (t *txRepo) SoftDeleteExpenses(ctx context.Context, ownerID, categoryID int64) (int64, error) {
	query, args, err := psql.Update("expenses").
		Set("is_deleted", true).
		Set("deleted_at", sq.Expr("NOW()")).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"category_id": categoryID, "user_id": ownerID, "is_deleted": false}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("categories: build cascade: %w", err)
	}
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("categories: cascade expenses: %w", err)
	}
	return tag.RowsAffected(), nil
}

func getCategory(ctx context.Context, q db.Querier, builder sq.SelectBuilder) (Category, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return Category{}, fmt.Errorf("categories: build get: %w", err)
	}
	c, err := scanCategory(q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Category{}, ErrNotFound
		}
		return Category{}, fmt.Errorf("categories: get: %w", err)
	}
	return c, nil
}

func scanCategory(row pgx.Row) (Category, error) {
	var c Category
	err := row.Scan(&c.ID, &c.Name, &c.UserID, &c.IsDeleted, &c.DeletedAt, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func joinColumns() string {
	return strings.Join(categoryColumns, ", ")
}

var _ RepositoryPort = (*Repository)(nil)
