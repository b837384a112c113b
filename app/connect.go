package app

import (
	"context"
	"sync"
	"time"

	"git.sr.ht/~rjarry/mlsync/lib/log"
	"git.sr.ht/~rjarry/mlsync/worker/types"
)

type connState int

const (
	connecting connState = iota
	connected
	connectFailed
)

// connection tracks the initial Connect of the engine. Waiters block on a
// condition variable with a deadline instead of polling.
type connection struct {
	mu    sync.Mutex
	cond  *sync.Cond
	state connState
	err   error
	done  chan struct{}
}

func startConnection(ctx context.Context, engine types.Engine) *connection {
	c := &connection{done: make(chan struct{})}
	c.cond = sync.NewCond(&c.mu)
	go func() {
		defer log.PanicHandler()
		err := engine.Connect(ctx)
		c.mu.Lock()
		if err != nil {
			c.state = connectFailed
			c.err = err
		} else {
			c.state = connected
		}
		c.cond.Broadcast()
		c.mu.Unlock()
		close(c.done)
	}()
	return c
}

// wait blocks until the connection attempt finished or d elapsed
func (c *connection) wait(d time.Duration) (connState, error) {
	deadline := time.Now().Add(d)
	timer := time.AfterFunc(d, func() {
		c.mu.Lock()
		c.cond.Broadcast()
		c.mu.Unlock()
	})
	defer timer.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	for c.state == connecting && time.Now().Before(deadline) {
		c.cond.Wait()
	}
	return c.state, c.err
}

func (c *connection) current() (connState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.err
}
