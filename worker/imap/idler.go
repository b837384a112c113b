package imap

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/emersion/go-imap/client"

	"git.sr.ht/~rjarry/mlsync/lib/log"
)

var errIdleTimeout = errors.New("idle timeout")

// idler keeps a second connection idling on one mailbox. The command
// connection is never blocked by IDLE. Server notifications are debounced
// and trigger a resync of the mailbox.
type idler struct {
	sync.Mutex
	w       *IMAPWorker
	mailbox string
	client  *client.Client
	stop    chan struct{}
	done    chan struct{}
	running bool
}

func newIdler(w *IMAPWorker) *idler {
	return &idler{w: w}
}

func (i *idler) Start(mailbox string) {
	i.Lock()
	defer i.Unlock()
	if i.running {
		return
	}
	i.mailbox = mailbox
	i.stop = make(chan struct{})
	i.done = make(chan struct{})
	i.running = true
	go i.run()
}

// Stop leaves idle mode and logs out. The connection is dropped when the
// server does not answer within idle_timeout.
func (i *idler) Stop() error {
	i.Lock()
	if !i.running {
		i.Unlock()
		return nil
	}
	i.running = false
	close(i.stop)
	done := i.done
	i.Unlock()

	select {
	case <-done:
		return nil
	case <-time.After(i.w.config.idle_timeout):
		i.log("idle hangs, terminating connection")
		if c := i.getClient(); c != nil {
			_ = c.Terminate()
		}
		<-done
		return errIdleTimeout
	}
}

func (i *idler) setClient(c *client.Client) {
	i.Lock()
	i.client = c
	i.Unlock()
}

func (i *idler) getClient() *client.Client {
	i.Lock()
	defer i.Unlock()
	return i.client
}

func (i *idler) stopped() bool {
	select {
	case <-i.stop:
		return true
	default:
		return false
	}
}

func (i *idler) run() {
	defer log.PanicHandler()
	defer close(i.done)
	for retries := 0; ; retries++ {
		start := time.Now()
		err := i.idle()
		if i.stopped() {
			return
		}
		if time.Since(start) > i.w.config.reconnect_maxwait {
			// the connection lived for a while, start over
			retries = 0
		}
		wait := backoff(retries+1, i.w.config.reconnect_maxwait)
		i.log("%v, retrying in %v", err, wait)
		select {
		case <-time.After(wait):
		case <-i.stop:
			return
		}
	}
}

// idle runs one idle session until the connection drops or Stop is called
func (i *idler) idle() error {
	c, err := i.w.connect()
	if err != nil {
		return err
	}
	i.setClient(c)
	defer func() {
		if err := c.Logout(); err != nil &&
			!errors.Is(err, client.ErrAlreadyLoggedOut) {
			i.log("logout: %v", err)
		}
		i.setClient(nil)
	}()

	updates := make(chan client.Update, 64)
	c.Updates = updates
	if _, err := c.Select(i.mailbox, true); err != nil {
		return fmt.Errorf("select %s: %w", i.mailbox, err)
	}

	idleStop := make(chan struct{})
	idleDone := make(chan error, 1)
	go func() {
		defer log.PanicHandler()
		i.log("=>(idle) %s", i.mailbox)
		idleDone <- c.Idle(idleStop, &client.IdleOptions{
			PollInterval: i.w.config.check_mail,
		})
	}()

	var debounce <-chan time.Time
	for {
		select {
		case update := <-updates:
			switch update.(type) {
			case *client.MailboxUpdate, *client.ExpungeUpdate, *client.MessageUpdate:
				if debounce == nil {
					debounce = time.After(i.w.config.idle_debounce)
				}
			}
		case <-debounce:
			debounce = nil
			i.w.resync(i.mailbox)
		case err := <-idleDone:
			i.log("<=(idle) %v", err)
			if err == nil {
				err = errors.New("idle ended")
			}
			return err
		case <-i.stop:
			close(idleStop)
			err := <-idleDone
			i.log("<=(idle) stopped")
			return err
		}
	}
}

func (i *idler) log(format string, v ...interface{}) {
	i.w.log.Tracef("idler: "+format, v...)
}
