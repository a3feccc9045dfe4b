package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync"
	"testing"
)

// SQLRecorder counts transaction outcomes on a FakeDB.
type SQLRecorder struct {
	mu        sync.Mutex
	commits   int
	rollbacks int
}

func (r *SQLRecorder) Commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commits
}

func (r *SQLRecorder) Rollbacks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rollbacks
}

// FakeDB returns a *sql.DB backed by a no-op driver, so transaction
// envelopes can be exercised without a real database. Statements are
// not supported, only Begin/Commit/Rollback.
func FakeDB(t *testing.T) (*sql.DB, *SQLRecorder) {
	rec := &SQLRecorder{}
	db := sql.OpenDB(&fakeConnector{rec: rec})
	t.Cleanup(func() { db.Close() })
	return db, rec
}

type fakeConnector struct {
	rec *SQLRecorder
}

func (c *fakeConnector) Connect(context.Context) (driver.Conn, error) {
	return &fakeConn{rec: c.rec}, nil
}

func (c *fakeConnector) Driver() driver.Driver { return fakeDriver{} }

type fakeDriver struct{}

func (fakeDriver) Open(string) (driver.Conn, error) {
	return &fakeConn{rec: &SQLRecorder{}}, nil
}

type fakeConn struct {
	rec *SQLRecorder
}

func (c *fakeConn) Prepare(query string) (driver.Stmt, error) {
	return nil, errors.New("statements not supported")
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) Begin() (driver.Tx, error) {
	return &fakeTx{rec: c.rec}, nil
}

type fakeTx struct {
	rec *SQLRecorder
}

func (t *fakeTx) Commit() error {
	t.rec.mu.Lock()
	defer t.rec.mu.Unlock()
	t.rec.commits++
	return nil
}

func (t *fakeTx) Rollback() error {
	t.rec.mu.Lock()
	defer t.rec.mu.Unlock()
	t.rec.rollbacks++
	return nil
}
