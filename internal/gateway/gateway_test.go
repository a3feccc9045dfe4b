package gateway

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbassett/roomrelay/internal/stats"
	"github.com/pbassett/roomrelay/internal/testutil"
)

func newTestGateway(t *testing.T) (*Gateway, *testutil.SQLRecorder) {
	db, rec := testutil.FakeDB(t)
	gw := NewGateway(testutil.TestLogger(t), db, &stats.MockStatsUpdater{})
	go gw.Run()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		gw.Shutdown(ctx)
	})
	return gw, rec
}

func TestEnqueue_commitsInOrder(t *testing.T) {
	gw, rec := newTestGateway(t)

	var order []int

	const n = 10
	results := make([]any, n)
	for i := 0; i < n; i++ {
		res, err := gw.Enqueue(context.Background(), func(tx *sql.Tx) (any, error) {
			order = append(order, i)
			return i, nil
		})
		require.NoError(t, err)
		results[i] = res
	}

	require.Len(t, order, n)
	for i := 0; i < n; i++ {
		assert.Equal(t, i, order[i], "operations must commit in enqueue order")
		assert.Equal(t, i, results[i], "result must be delivered to its caller")
	}
	assert.Equal(t, n, rec.Commits())
	assert.Zero(t, rec.Rollbacks())
}

func TestEnqueue_failureDoesNotBlockQueue(t *testing.T) {
	gw, rec := newTestGateway(t)

	opErr := errors.New("boom")

	_, err := gw.Enqueue(context.Background(), func(tx *sql.Tx) (any, error) {
		return "first", nil
	})
	require.NoError(t, err)

	_, err = gw.Enqueue(context.Background(), func(tx *sql.Tx) (any, error) {
		return nil, opErr
	})
	assert.ErrorIs(t, err, opErr, "failed operation must reject its caller")

	res, err := gw.Enqueue(context.Background(), func(tx *sql.Tx) (any, error) {
		return "third", nil
	})
	require.NoError(t, err, "a failure must not block subsequent operations")
	assert.Equal(t, "third", res)

	assert.Equal(t, 2, rec.Commits())
	assert.Equal(t, 1, rec.Rollbacks())
}

func TestEnqueue_contextCancelled(t *testing.T) {
	gw, _ := newTestGateway(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// the op may or may not run depending on timing, but the caller
	// must be released with the context error
	_, err := gw.Enqueue(ctx, func(tx *sql.Tx) (any, error) {
		return nil, nil
	})
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestShutdown_drainsAcceptedOperations(t *testing.T) {
	db, rec := testutil.FakeDB(t)
	gw := NewGateway(testutil.TestLogger(t), db, &stats.MockStatsUpdater{})

	// queue an operation before the worker starts
	resCh := make(chan error, 1)
	go func() {
		_, err := gw.Enqueue(context.Background(), func(tx *sql.Tx) (any, error) {
			return nil, nil
		})
		resCh <- err
	}()

	// wait until the op is queued
	for i := 0; i < 100 && len(gw.queue) == 0; i++ {
		time.Sleep(time.Millisecond)
	}

	go gw.Run()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, gw.Shutdown(ctx))

	select {
	case err := <-resCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("timeout: queued operation was not drained on shutdown")
	}

	assert.Equal(t, 1, rec.Commits())
}
