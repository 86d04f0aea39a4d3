package session

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func mockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Discard,
	})
	require.NoError(t, err)
	return gdb, mock
}

func TestFindSessionByID(t *testing.T) {
	gdb, mock := mockDB(t)
	exp := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT \* FROM "app_auth"\."sessions" WHERE session_id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "user_id", "expires_at"}).AddRow("sess-1", "user-7", exp))

	sd, err := Info{DB: gdb}.FindSessionByID("sess-1")
	require.NoError(t, err)
	assert.Equal(t, "user-7", sd.UserID)
	assert.True(t, sd.ExpiresAt.Equal(exp))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindSessionByID_NotFound(t *testing.T) {
	gdb, mock := mockDB(t)
	mock.ExpectQuery(`FROM "app_auth"\."sessions"`).
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "user_id", "expires_at"}))

	_, err := Info{DB: gdb}.FindSessionByID("missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestFindRole(t *testing.T) {
	gdb, mock := mockDB(t)
	mock.ExpectQuery(`SELECT "user_id","role" FROM "app_auth"\."users" WHERE user_id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "role"}).AddRow("user-7", "admin"))

	role, err := Info{DB: gdb}.FindRole(context.Background(), "user-7")
	require.NoError(t, err)
	assert.Equal(t, "admin", role)
}
