package writer

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/llm-observatory-storage/internal/model"
)

// fakeExecer records every statement it's asked to run, letting tests
// assert on dispatch without a live connection.
type fakeExecer struct {
	execs []string
	err   error
}

func (f *fakeExecer) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	return pgconn.CommandTag{}, f.err
}

func TestOpenRawConn_NilFactoryFallsBackToBatchInsert(t *testing.T) {
	w := &TraceWriter{cfg: Config{BulkCopyThreshold: 0}, logger: logrus.New()}
	conn, ok := w.openRawConn(context.Background(), 5)
	assert.False(t, ok)
	assert.Nil(t, conn)
}

func TestOpenRawConn_BelowThresholdFallsBackWithoutCallingFactory(t *testing.T) {
	called := false
	w := &TraceWriter{
		cfg:    Config{BulkCopyThreshold: 100},
		logger: logrus.New(),
		rawConn: func(ctx context.Context) (*pgx.Conn, error) {
			called = true
			return nil, nil
		},
	}
	_, ok := w.openRawConn(context.Background(), 5)
	assert.False(t, ok)
	assert.False(t, called, "factory must not be called below threshold")
}

func TestOpenRawConn_FactoryErrorFallsBackToBatchInsert(t *testing.T) {
	w := &TraceWriter{
		cfg:    Config{BulkCopyThreshold: 0},
		logger: logrus.New(),
		rawConn: func(ctx context.Context) (*pgx.Conn, error) {
			return nil, errors.New("connection refused")
		},
	}
	conn, ok := w.openRawConn(context.Background(), 5)
	assert.False(t, ok)
	assert.Nil(t, conn)
}

func TestUpdateSpanCounts_EmptyIsNoOp(t *testing.T) {
	f := &fakeExecer{}
	require.NoError(t, updateSpanCounts(context.Background(), f, nil))
	assert.Empty(t, f.execs)
}

func TestUpdateSpanCounts_IssuesGroupedIncrement(t *testing.T) {
	f := &fakeExecer{}
	spans := []*model.Span{
		{TraceID: uuid.New()},
		{TraceID: uuid.New()},
	}
	require.NoError(t, updateSpanCounts(context.Background(), f, spans))
	require.Len(t, f.execs, 1)
	assert.Contains(t, f.execs[0], "span_count = t.span_count + c.cnt")
	assert.Contains(t, f.execs[0], "unnest($1::text[])")
}

func TestUpdateSpanCounts_PropagatesDBError(t *testing.T) {
	f := &fakeExecer{err: errors.New("connection reset")}
	spans := []*model.Span{{TraceID: uuid.New()}}
	err := updateSpanCounts(context.Background(), f, spans)
	require.Error(t, err)
}
