package imap

import (
	"math"
	"time"

	"github.com/emersion/go-imap/client"

	"git.sr.ht/~rjarry/mlsync/lib/log"
)

// observer monitors the logged out channel of the command connection. When
// the server goes away, it reconnects until it succeeds or the engine is
// closed.
type observer struct {
	w *IMAPWorker
}

func newObserver(w *IMAPWorker) *observer {
	return &observer{w: w}
}

// Watch starts monitoring c. A new connection gets its own watch.
func (o *observer) Watch(c *client.Client) {
	go func() {
		defer log.PanicHandler()
		select {
		case <-c.LoggedOut():
		case <-o.w.done:
			return
		}
		select {
		case <-o.w.done:
			return
		default:
		}
		o.w.log.Warnf("connection lost")
		o.reconnect()
	}()
}

func (o *observer) reconnect() {
	for retries := 0; ; retries++ {
		wait := backoff(retries, o.w.config.reconnect_maxwait)
		if wait > 0 {
			o.w.log.Infof("reconnect in %v", wait)
		}
		select {
		case <-time.After(wait):
		case <-o.w.done:
			return
		}
		err := o.w.reconnect()
		if err == nil {
			o.w.log.Infof("reconnected")
			return
		}
		o.w.log.Errorf("reconnect: %v", err)
	}
}

// backoff is the delay before the attempt number retries
func backoff(retries int, maxwait time.Duration) time.Duration {
	if retries == 0 {
		return 0
	}
	wait := time.Duration(math.Pow(1.8, float64(retries))) * time.Second
	if maxwait > 0 && wait > maxwait {
		wait = maxwait
	}
	return wait
}
