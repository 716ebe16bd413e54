// Package queue runs operations one at a time, highest priority first, out of the request flow.
package queue

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/evalua/core"
)

var (
	ErrQueueFull   = errors.New("queue is full")
	ErrQueueClosed = errors.New("queue is closed")
)

const (
	DefaultOpTimeout  = 10 * time.Second
	DefaultPause      = 5 * time.Millisecond
	DefaultMaxPending = 10000
)

type Options struct {
	OpTimeout  time.Duration // per operation; 0 uses DefaultOpTimeout
	Pause      time.Duration // between two operations; 0 uses DefaultPause
	MaxPending int           // 0 uses DefaultMaxPending
}

func OptionsFromConfig(conf core.QueueConfig) Options {
	return Options{OpTimeout: conf.OpTimeout, Pause: conf.Pause, MaxPending: conf.MaxPending}
}

func (opts Options) withDefaults() Options {
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = DefaultOpTimeout
	}
	if opts.Pause <= 0 {
		opts.Pause = DefaultPause
	}
	if opts.MaxPending <= 0 {
		opts.MaxPending = DefaultMaxPending
	}
	return opts
}

// Ticket tracks a queued operation.
type Ticket struct {
	Name     string
	Priority core.Priority

	seq     uint64
	index   int // in the pending heap, -1 once out of it
	ctx     context.Context
	op      core.Operation
	unwatch func() bool
	done    chan struct{}
	err     error
}

func (t *Ticket) finish(err error) {
	t.err = err
	close(t.done)
}

// Done is closed once the operation has run, was canceled or the queue closed.
func (t *Ticket) Done() <-chan struct{} { return t.done }

// Wait blocks until the operation is done and returns its error, or until ctx is done.
func (t *Ticket) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type tickets []*Ticket

func (ts tickets) Len() int { return len(ts) }
func (ts tickets) Less(i, j int) bool {
	if ts[i].Priority != ts[j].Priority {
		return ts[i].Priority > ts[j].Priority
	}
	return ts[i].seq < ts[j].seq
}
func (ts tickets) Swap(i, j int) {
	ts[i], ts[j] = ts[j], ts[i]
	ts[i].index = i
	ts[j].index = j
}
func (ts *tickets) Push(x interface{}) {
	t := x.(*Ticket)
	t.index = len(*ts)
	*ts = append(*ts, t)
}
func (ts *tickets) Pop() interface{} {
	old := *ts
	t := old[len(old)-1]
	old[len(old)-1] = nil
	t.index = -1
	*ts = old[:len(old)-1]
	return t
}

// Queue is processed by a single worker.
type Queue struct {
	opts   Options
	logger core.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	pending tickets
	seq     uint64
	started bool
	closed  bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

var _ core.OperationRunner = (*Queue)(nil)

func New(opts Options, logger core.Logger) *Queue {
	q := &Queue{
		opts:   opts.withDefaults(),
		logger: logger,
		stop:   make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Start launches the worker. Operations enqueued before Start wait for it.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	q.wg.Add(1)
	go q.work()
}

// Enqueue adds `op` to the queue without waiting for it to run.
// An operation whose ctx is done before it starts leaves the queue with ctx.Err().
func (q *Queue) Enqueue(ctx context.Context, prio core.Priority, name string, op core.Operation) (*Ticket, error) {
	if op == nil {
		return nil, errors.New("queue: nil operation")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrQueueClosed
	}
	if len(q.pending) >= q.opts.MaxPending {
		return nil, ErrQueueFull
	}
	q.seq++
	t := &Ticket{Name: name, Priority: prio, seq: q.seq, ctx: ctx, op: op, done: make(chan struct{})}
	heap.Push(&q.pending, t)
	t.unwatch = context.AfterFunc(ctx, func() { q.drop(t) })
	q.cond.Signal()
	return t, nil
}

// drop removes the canceled `t` if it is still pending.
func (q *Queue) drop(t *Ticket) {
	q.mu.Lock()
	if q.closed || t.index < 0 {
		q.mu.Unlock()
		return
	}
	heap.Remove(&q.pending, t.index)
	q.mu.Unlock()
	t.finish(t.ctx.Err())
}

// Do enqueues `op` and waits for it.
func (q *Queue) Do(ctx context.Context, prio core.Priority, name string, op core.Operation) error {
	t, err := q.Enqueue(ctx, prio, name, op)
	if err != nil {
		return err
	}
	return t.Wait(ctx)
}

// Len returns the number of operations waiting to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops the worker once the running operation returns; pending operations fail with ErrQueueClosed.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.stop)
	pending := q.pending
	q.pending = nil
	q.cond.Broadcast()
	q.mu.Unlock()

	for _, t := range pending {
		t.unwatch()
		t.finish(ErrQueueClosed)
	}
	q.wg.Wait()
}

func (q *Queue) next() *Ticket {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.pending) == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		return nil
	}
	t := heap.Pop(&q.pending).(*Ticket)
	t.unwatch()
	return t
}

func (q *Queue) work() {
	defer q.wg.Done()
	for {
		t := q.next()
		if t == nil {
			return
		}
		if err := t.ctx.Err(); err != nil {
			t.finish(err)
			continue
		}

		err := q.run(t)
		if err != nil {
			q.logger.Error(fmt.Sprintf("queue: %s failed: %v", t.Name, err), err)
		}
		t.finish(err)

		select {
		case <-time.After(q.opts.Pause):
		case <-q.stop:
			return
		}
	}
}

func (q *Queue) run(t *Ticket) (err error) {
	// a started operation is no longer canceled by its caller, only by the timeout
	ctx, cancel := context.WithTimeout(context.WithoutCancel(t.ctx), q.opts.OpTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()
	return t.op(ctx)
}
