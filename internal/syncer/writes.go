package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/soyeahso/roster/internal/hooks"
	"github.com/soyeahso/roster/internal/logging"
)

// writeOp is one remote write issued on behalf of a local action.
type writeOp struct {
	op         string
	collection string
	id         string
	run        func(ctx context.Context) error
	// done, when set, receives the result after run returns.
	done func(err error)
}

// writeQueue runs remote writes one at a time in submission order, so a
// burst of selections reaches the pointer document in the order the user
// made them. Submitting never blocks.
type writeQueue struct {
	timeout time.Duration
	log     *logging.Logger
	hooks   *hooks.Manager
	onError func(op, collection, id string, err error)

	mu       sync.Mutex
	ops      []writeOp
	inflight int
	settled  *sync.Cond
	closed   bool
	wake     chan struct{}
	done     chan struct{}
}

func newWriteQueue(timeout time.Duration, log *logging.Logger, hm *hooks.Manager, onError func(op, collection, id string, err error)) *writeQueue {
	q := &writeQueue{
		timeout: timeout,
		log:     log,
		hooks:   hm,
		onError: onError,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	q.settled = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// submit queues op. It reports false once the queue is closed.
func (q *writeQueue) submit(op writeOp) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.log.Warn().Str("op", op.op).Str("id", op.id).Msg("write dropped after dispose")
		return false
	}
	q.ops = append(q.ops, op)
	q.inflight++
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

func (q *writeQueue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		ops := q.ops
		q.ops = nil
		closed := q.closed
		q.mu.Unlock()

		for _, op := range ops {
			q.exec(op)
			q.mu.Lock()
			q.inflight--
			if q.inflight == 0 {
				q.settled.Broadcast()
			}
			q.mu.Unlock()
		}
		if len(ops) > 0 {
			continue
		}
		if closed {
			return
		}
		<-q.wake
	}
}

func (q *writeQueue) exec(op writeOp) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	err := op.run(ctx)
	if op.done != nil {
		op.done(err)
	}
	if err == nil {
		q.log.Debug().Str("op", op.op).Str("collection", op.collection).Str("id", op.id).Msg("remote write done")
		return
	}

	q.log.Error().Err(err).Str("op", op.op).Str("collection", op.collection).Str("id", op.id).Msg("remote write failed")
	q.hooks.Emit(ctx, hooks.EventWriteFailed, map[string]any{
		"op":         op.op,
		"collection": op.collection,
		"id":         op.id,
		"error":      err.Error(),
	})
	if q.onError != nil {
		q.onError(op.op, op.collection, op.id, err)
	}
}

// close stops accepting writes and waits for the queued ones to finish.
func (q *writeQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	<-q.done
}

// wait blocks until every write submitted so far has finished.
func (q *writeQueue) wait() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.inflight > 0 {
		q.settled.Wait()
	}
}
