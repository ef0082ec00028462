package persistence_test

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-relay/internal/config"
	"github.com/spec-kit/helpdesk-relay/internal/persistence"
)

func TestMigrationNames(t *testing.T) {
	names, err := persistence.MigrationNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"001_relay_deliveries.sql"}, names)
}

func TestRunMigrationsAppliesPending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS relay_schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("001_relay_deliveries.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS relay_deliveries").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO relay_schema_migrations").
		WithArgs("001_relay_deliveries.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, persistence.RunMigrations(context.Background(), mock, zap.NewNop()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrationsSkipsApplied(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS relay_schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("001_relay_deliveries.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	require.NoError(t, persistence.RunMigrations(context.Background(), mock, zap.NewNop()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrationsReportsFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS relay_schema_migrations").
		WillReturnError(errors.New("permission denied"))

	err = persistence.RunMigrations(context.Background(), mock, zap.NewNop())
	assert.ErrorContains(t, err, "permission denied")
}

func TestRunMigrationsWithoutPool(t *testing.T) {
	assert.NoError(t, persistence.RunMigrations(context.Background(), nil, zap.NewNop()))
}

func TestPostgresDisabled(t *testing.T) {
	pg, err := persistence.NewPostgres(context.Background(), config.PostgresConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, pg.Enabled())
	assert.ErrorIs(t, pg.Ping(context.Background()), persistence.ErrPostgresDisabled)
	pg.Close()
}
