package lib

import (
	"sync"

	"git.sr.ht/~rjarry/mlsync/lib/log"
	"git.sr.ht/~rjarry/mlsync/worker/types"
)

// EventFeed is an unbounded FIFO between an engine and its consumer.
// Posting never blocks so engines can emit events while holding their own
// locks. Events are delivered in posting order.
type EventFeed struct {
	mu      sync.Mutex
	pending []*types.Event
	wake    chan struct{}
	out     chan *types.Event
	done    chan struct{}
	once    sync.Once
}

func NewEventFeed() *EventFeed {
	f := &EventFeed{
		wake: make(chan struct{}, 1),
		out:  make(chan *types.Event),
		done: make(chan struct{}),
	}
	go f.pump()
	return f
}

// Post queues an event. Events posted after Close are dropped.
func (f *EventFeed) Post(ev *types.Event) {
	select {
	case <-f.done:
		return
	default:
	}
	log.Tracef("event: %s", ev)
	f.mu.Lock()
	f.pending = append(f.pending, ev)
	f.mu.Unlock()
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// Events is closed after Close
func (f *EventFeed) Events() <-chan *types.Event {
	return f.out
}

func (f *EventFeed) Close() {
	f.once.Do(func() { close(f.done) })
}

func (f *EventFeed) pump() {
	defer log.PanicHandler()
	defer close(f.out)
	for {
		f.mu.Lock()
		var ev *types.Event
		if len(f.pending) > 0 {
			ev = f.pending[0]
			f.pending[0] = nil
			f.pending = f.pending[1:]
		}
		f.mu.Unlock()
		if ev == nil {
			select {
			case <-f.wake:
				continue
			case <-f.done:
				return
			}
		}
		select {
		case f.out <- ev:
		case <-f.done:
			return
		}
	}
}
