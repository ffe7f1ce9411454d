package repositories

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/BradenHooton/garage/internal/database"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*database.DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return database.New(mock, slog.New(slog.NewTextHandler(io.Discard, nil))), mock
}

var userColumnNames = []string{
	"id", "username", "email", "password_hash", "full_name", "role", "status",
	"created_at", "updated_at", "last_login_at", "password_changed_at",
}

func userRow(id, username, email, role, status string) *pgxmock.Rows {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return pgxmock.NewRows(userColumnNames).AddRow(
		id, username, email, "pbkdf2-sha256$1000$00$00", "Test User", role, status,
		now, now, (*time.Time)(nil), &now,
	)
}

// anyArgs matches n query arguments of any value
func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}
