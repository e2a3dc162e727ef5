package service

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market_feed/pkg/db"
)

type execRecorder struct {
	pgx.Tx
	sql  []string
	args [][]any
}

func (e *execRecorder) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	e.sql = append(e.sql, sql)
	e.args = append(e.args, args)
	return pgconn.CommandTag{}, nil
}

type fakeRows struct {
	pgx.Rows
	vals []string
	pos  int
	err  error
}

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.vals) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	*(dest[0].(*string)) = r.vals[r.pos-1]
	return nil
}

func (r *fakeRows) Err() error { return r.err }
func (r *fakeRows) Close()     {}

type fakeConn struct {
	rows     *fakeRows
	queryErr error
	lastSQL  string
}

func (c *fakeConn) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (c *fakeConn) Query(_ context.Context, sql string, _ ...interface{}) (pgx.Rows, error) {
	c.lastSQL = sql
	if c.queryErr != nil {
		return nil, c.queryErr
	}
	return c.rows, nil
}

func (c *fakeConn) QueryRow(context.Context, string, ...interface{}) pgx.Row { return nil }

type fakeTxManager struct {
	tx   *execRecorder
	conn *fakeConn
}

func (m *fakeTxManager) RunMaster(ctx context.Context, fn func(ctxTx context.Context, tx pgx.Tx) error) error {
	return fn(ctx, m.tx)
}

func (m *fakeTxManager) Conn() db.Transaction { return m.conn }

func TestPostgresMigrateSeedsDefaults(t *testing.T) {
	m := &fakeTxManager{tx: &execRecorder{}}
	p := NewPostgres(m)

	require.NoError(t, p.Migrate(context.Background(), []string{"btcusdt", "ETH-USDT"}))
	require.Len(t, m.tx.sql, 3)
	assert.Contains(t, m.tx.sql[0], "CREATE TABLE IF NOT EXISTS tracked_instruments")
	assert.Equal(t, []any{"BTCUSDT"}, m.tx.args[1])
	assert.Equal(t, []any{"ETHUSDT"}, m.tx.args[2])
}

func TestPostgresList(t *testing.T) {
	conn := &fakeConn{rows: &fakeRows{vals: []string{"btcusdt", "ETHUSDT"}}}
	p := NewPostgres(&fakeTxManager{conn: conn})

	got, err := p.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, got)
	assert.Contains(t, conn.lastSQL, "WHERE enabled")
}

func TestPostgresListErrors(t *testing.T) {
	p := NewPostgres(&fakeTxManager{conn: &fakeConn{queryErr: errors.New("relation does not exist")}})
	_, err := p.List(context.Background())
	assert.ErrorContains(t, err, "relation does not exist")

	p = NewPostgres(&fakeTxManager{conn: &fakeConn{rows: &fakeRows{err: errors.New("conn reset")}}})
	_, err = p.List(context.Background())
	assert.ErrorContains(t, err, "conn reset")
}

func TestStaticSource(t *testing.T) {
	got, err := Static{"btcusdt", "", "BTCUSDT", "sol-usdt"}.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT", "SOLUSDT"}, got)
}
