package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

func TestMigrateCommandRejectsBadDSN(t *testing.T) {
	stderr := new(bytes.Buffer)
	applied := false
	code := MigrateCommand(context.Background(), MigrateOptions{
		DSN:    "postgres://%zz",
		Stdout: new(bytes.Buffer),
		Stderr: stderr,
		Apply: func(*pgxpool.Pool) error {
			applied = true
			return nil
		},
	})
	require.Equal(t, 1, code)
	require.False(t, applied)
	require.Contains(t, stderr.String(), "migrate:")
}
