package gateway

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/pbassett/roomrelay/internal/stats"
)

const (
	queueDepthMetric = "GatewayQueueDepth"
	opsTotalMetric   = "GatewayOpsTotal"
	opsFailedMetric  = "GatewayOpsFailed"

	queueSize           = 256
	depthReportInterval = 10 * time.Second
)

// Op runs inside a transaction owned by the gateway worker. The worker
// commits on a nil error and rolls back otherwise.
type Op func(tx *sql.Tx) (any, error)

type result struct {
	val any
	err error
}

type request struct {
	op         Op
	resultChan chan result
}

// Gateway serializes all persistence writes: operations are held in
// arrival order and a single worker drains them one at a time, so
// exactly one write transaction is in flight system-wide.
type Gateway struct {
	log   *log.Logger
	db    *sql.DB
	stats stats.StatsProvider
	queue chan *request
	stop  chan struct{}
	done  chan struct{}
}

func NewGateway(logger *log.Logger, db *sql.DB, statsProvider stats.StatsProvider) *Gateway {
	statsProvider.RegisterMetric(queueDepthMetric)
	statsProvider.RegisterMetric(opsTotalMetric)
	statsProvider.RegisterMetric(opsFailedMetric)

	return &Gateway{
		log:   logger,
		db:    db,
		stats: statsProvider,
		queue: make(chan *request, queueSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func (g *Gateway) Run() {
	ticker := time.NewTicker(depthReportInterval)
	defer ticker.Stop()

	for {
		select {
		case req := <-g.queue:
			g.process(req)
		case <-ticker.C:
			g.stats.Set(queueDepthMetric, int64(len(g.queue)))
		case <-g.stop:
			// drain operations already accepted before rejecting new ones
			for {
				select {
				case req := <-g.queue:
					g.process(req)
				default:
					close(g.done)
					return
				}
			}
		}
	}
}

func (g *Gateway) process(req *request) {
	g.stats.Incr(opsTotalMetric)

	tx, err := g.db.Begin()
	if err != nil {
		g.stats.Incr(opsFailedMetric)
		req.resultChan <- result{err: fmt.Errorf("begin: %w", err)}
		return
	}

	val, err := req.op(tx)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			g.log.Println("rollback:", rbErr)
		}
		g.stats.Incr(opsFailedMetric)
		req.resultChan <- result{err: err}
		return
	}

	if err := tx.Commit(); err != nil {
		g.stats.Incr(opsFailedMetric)
		req.resultChan <- result{err: fmt.Errorf("commit: %w", err)}
		return
	}

	req.resultChan <- result{val: val}
}

// Enqueue submits an operation and blocks until it commits or rolls
// back. A failed operation rejects only its own caller.
func (g *Gateway) Enqueue(ctx context.Context, op Op) (any, error) {
	req := &request{
		op:         op,
		resultChan: make(chan result, 1),
	}

	select {
	case g.queue <- req:
	case <-g.stop:
		return nil, fmt.Errorf("gateway is shutting down")
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-req.resultChan:
		return res.val, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *Gateway) Shutdown(ctx context.Context) error {
	close(g.stop)

	select {
	case <-g.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
