package types

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/atomic"

	"git.sr.ht/~rjarry/mlsync/lib/assert"
	"git.sr.ht/~rjarry/mlsync/lib/log"
)

var lastId = atomic.NewInt64(1)

var ErrShutdown = errors.New("request queue shut down")

const busyPoll = 5 * time.Millisecond

// QueueStats counts feedback payloads. Once every request has ended,
// Produced == Applied + Discarded.
type QueueStats struct {
	Produced  int64
	Applied   int64
	Discarded int64
}

// Queue runs the background requests of one view. Each request gets its own
// goroutine. Results travel back through Messages() and must be handed to
// ProcessMessage by the apply context, which is the only goroutine allowed
// to call the other methods except SetBusy.
type Queue struct {
	handlers  map[RequestKind]Handler
	messages  chan WorkerMessage
	pending   map[int64]*Request
	busy      atomic.Bool
	busyDefer time.Duration
	done      chan struct{}
	closed    bool
	wg        sync.WaitGroup
	log       log.Logger

	produced  atomic.Int64
	applied   atomic.Int64
	discarded atomic.Int64
}

func NewQueue(name string) *Queue {
	return &Queue{
		handlers:  make(map[RequestKind]Handler),
		messages:  make(chan WorkerMessage, 50),
		pending:   make(map[int64]*Request),
		busyDefer: 200 * time.Millisecond,
		done:      make(chan struct{}),
		log:       log.NewLogger(name, 3),
	}
}

func (q *Queue) Register(kind RequestKind, h Handler) {
	q.handlers[kind] = h
}

// SetBusyDefer bounds how long feedback is held back while busy
func (q *Queue) SetBusyDefer(d time.Duration) {
	q.busyDefer = d
}

// SetBusy tells workers that the foreground is in the middle of a gesture.
// Feedback is deferred while set, for at most the busy defer duration. It
// may be called from any goroutine.
func (q *Queue) SetBusy(busy bool) {
	q.busy.Store(busy)
}

func (q *Queue) Messages() <-chan WorkerMessage {
	return q.messages
}

// Pending returns the number of requests whose end has not run yet
func (q *Queue) Pending() int {
	return len(q.pending)
}

func (q *Queue) Stats() QueueStats {
	return QueueStats{
		Produced:  q.produced.Load(),
		Applied:   q.applied.Load(),
		Discarded: q.discarded.Load(),
	}
}

// Enqueue starts a request. It returns nil if no handler is registered for
// kind or if the queue is shut down.
func (q *Queue) Enqueue(kind RequestKind, payload any) *Request {
	h, ok := q.handlers[kind]
	if !assert.That(ok, "no handler for %s", kind) {
		return nil
	}
	if !assert.That(!q.closed, "%s enqueued on a closed queue", kind) {
		return nil
	}
	req := &Request{Kind: kind, Payload: payload}
	req.setId(lastId.Inc())
	q.pending[req.ID()] = req
	q.log.Debugf("enqueue %s(%d)", kind, req.ID())

	q.wg.Add(1)
	go q.run(req, h)
	return req
}

func (q *Queue) run(req *Request, h Handler) {
	defer q.wg.Done()
	var err error
	func() {
		defer log.Recover(func(e error) { err = e })
		if req.Cancelled() {
			return
		}
		req.setState(Running)
		err = h.Run(&Job{req: req, queue: q})
	}()
	done := &Done{
		Message:   RespondTo(req),
		Cancelled: req.Cancelled(),
		Err:       err,
	}
	select {
	case q.messages <- done:
	case <-q.done:
	}
}

func (q *Queue) feedback(req *Request, payload any) bool {
	if req.Cancelled() {
		return false
	}
	if q.busy.Load() {
		deadline := time.Now().Add(q.busyDefer)
		for q.busy.Load() && !req.Cancelled() && time.Now().Before(deadline) {
			time.Sleep(busyPoll)
		}
		if req.Cancelled() {
			return false
		}
	}
	q.produced.Inc()
	select {
	case q.messages <- &Feedback{Message: RespondTo(req), Payload: payload}:
		return true
	case <-q.done:
		q.discarded.Inc()
		return false
	}
}

// Cancel flags the request. It does not wait for the worker.
func (q *Queue) Cancel(req *Request) {
	if req == nil || req.cancelled.Swap(true) {
		return
	}
	q.log.Debugf("cancel %s(%d)", req.Kind, req.ID())
}

// CancelAll flags every request that has not ended yet
func (q *Queue) CancelAll() {
	for _, req := range q.pending {
		q.Cancel(req)
	}
}

// ProcessMessage applies a message received from Messages(). Feedback of a
// cancelled request is dropped.
func (q *Queue) ProcessMessage(msg WorkerMessage) {
	req, ok := msg.InResponseTo().(*Request)
	if !ok {
		return
	}
	if _, ok := q.pending[req.ID()]; !ok {
		if _, isFeedback := msg.(*Feedback); isFeedback {
			q.discarded.Inc()
		}
		return
	}
	h := q.handlers[req.Kind]
	switch msg := msg.(type) {
	case *Feedback:
		if req.Cancelled() {
			q.discarded.Inc()
			return
		}
		if h.Apply != nil {
			h.Apply(req, msg.Payload)
		}
		q.applied.Inc()
	case *Done:
		q.end(req, h, msg.Err)
	}
}

func (q *Queue) end(req *Request, h Handler, err error) {
	delete(q.pending, req.ID())
	if req.Cancelled() {
		req.setState(Cancelled)
	} else {
		req.setState(Completed)
	}
	q.log.Debugf("end %s(%d) %s err=%v", req.Kind, req.ID(), req.State(), err)
	if h.End != nil {
		h.End(req, err)
	}
}

// Shutdown cancels every request and processes their messages until all of
// them ended or ctx expires. Requests still running then are ended with
// ErrShutdown and their late messages are dropped.
func (q *Queue) Shutdown(ctx context.Context) {
	if q.closed {
		return
	}
	q.CancelAll()
	for len(q.pending) > 0 {
		select {
		case msg := <-q.messages:
			q.ProcessMessage(msg)
		case <-ctx.Done():
			q.log.Warnf("%d requests still running at shutdown", len(q.pending))
			for _, req := range q.pending {
				q.end(req, q.handlers[req.Kind], ErrShutdown)
			}
		}
	}
	q.closed = true
	close(q.done)
}

// Wait blocks until every worker goroutine returned. Only meaningful after
// Shutdown.
func (q *Queue) Wait() {
	q.wg.Wait()
}
