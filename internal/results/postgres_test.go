package results

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func newMockSink(t *testing.T, logger *zap.Logger) (*PostgresSink, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing().WillReturnError(nil)
	sink, err := NewPostgresSink(context.Background(), mockPool, logger)
	require.NoError(t, err)
	return sink, mockPool
}

func TestNewPostgresSink(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = NewPostgresSink(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestEnsureSchema(t *testing.T) {
	sink, mockPool := newMockSink(t, zap.NewNop())

	mockPool.ExpectExec(flexibleSQLMatcher(schemaDDL)).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	require.NoError(t, sink.EnsureSchema(context.Background()))

	mockPool.ExpectExec(flexibleSQLMatcher(schemaDDL)).
		WillReturnError(errors.New("permission denied for schema public"))
	assert.ErrorContains(t, sink.EnsureSchema(context.Background()), "failed to create results schema")

	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresSave(t *testing.T) {
	ctx := context.Background()

	t.Run("should persist the run and its history in one transaction", func(t *testing.T) {
		core, logs := observer.New(zapcore.ErrorLevel)
		sink, mockPool := newMockSink(t, zap.New(core))
		result := sampleResult()
		entry := result.History[0]

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertRun)).
			WithArgs(result.RunID, result.Task, true, "opened", "", 2, result.StartedAt, result.FinishedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlDeleteHistory)).
			WithArgs(result.RunID).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertHistory)).
			WithArgs(result.RunID, 1, entry.Timestamp, "navigate",
				[]byte(`{"url":"https://example.com"}`), true, "Navigated to https://example.com", "").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, sink.Save(ctx, result))
		assert.NoError(t, mockPool.ExpectationsWereMet())
		assert.Empty(t, logs.All(), "Expected no errors logged on successful commit")
	})

	t.Run("should roll back when a history row fails", func(t *testing.T) {
		sink, mockPool := newMockSink(t, zap.NewNop())
		result := sampleResult()

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertRun)).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlDeleteHistory)).
			WithArgs(result.RunID).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertHistory)).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(errors.New("disk full"))
		mockPool.ExpectRollback()

		err := sink.Save(ctx, result)
		assert.ErrorContains(t, err, "failed to insert history entry 1")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should report a failed begin", func(t *testing.T) {
		sink, mockPool := newMockSink(t, zap.NewNop())
		mockPool.ExpectBegin().WillReturnError(errors.New("too many connections"))

		assert.ErrorContains(t, sink.Save(ctx, sampleResult()), "failed to begin transaction")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should reject a nil result", func(t *testing.T) {
		sink, _ := newMockSink(t, zap.NewNop())
		assert.Error(t, sink.Save(ctx, nil))
	})
}
