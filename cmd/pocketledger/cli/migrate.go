package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pocketledger/pocketledger/internal/platform/db"
)

// MigrateOptions configures the migrate command.
type MigrateOptions struct {
	DSN    string
	Stdout io.Writer
	Stderr io.Writer
	// Apply runs the migrations; defaults to db.Migrate.
	Apply func(*pgxpool.Pool) error
}

// MigrateCommand applies pending schema migrations and returns the exit code.
func MigrateCommand(ctx context.Context, opts MigrateOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Apply == nil {
		opts.Apply = db.Migrate
	}
	pool, err := db.New(ctx, opts.DSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "migrate: %v\n", err)
		return 1
	}
	defer pool.Close()

	if err := opts.Apply(pool); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "migrate: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(opts.Stdout, "migrate: schema is up to date")
	return 0
}
