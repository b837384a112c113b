// Package watchers reports file system changes below a directory. Engines
// backed by local files use it to turn external modifications into events.
package watchers

import (
	"fmt"
	"runtime"
	"time"
)

type FSWatcher interface {
	// Configure starts watching root
	Configure(root string) error
	Events() <-chan *FSEvent
	// Add watches another directory or file
	Add(path string) error
	Remove(path string) error
	Close() error
}

type FSOperation int

const (
	FSCreate FSOperation = iota
	FSRemove
	FSRename
)

func (op FSOperation) String() string {
	switch op {
	case FSCreate:
		return "create"
	case FSRemove:
		return "remove"
	case FSRename:
		return "rename"
	}
	return fmt.Sprintf("op(%d)", int(op))
}

type FSEvent struct {
	Operation FSOperation
	Path      string
}

type WatcherFactoryFunc func() (FSWatcher, error)

var watcherFactory WatcherFactoryFunc

func RegisterWatcherFactory(fn WatcherFactoryFunc) {
	watcherFactory = fn
}

func NewWatcher() (FSWatcher, error) {
	if watcherFactory == nil {
		return nil, fmt.Errorf("Unsupported OS: %s", runtime.GOOS)
	}
	return watcherFactory()
}

// Debounce coalesces bursts of events. A maildir flag change is a rename
// followed by a create; moving many mails is hundreds of those. The paths
// seen during the quiet period are sent as one slice on the returned
// channel, which is closed when events is.
func Debounce(events <-chan *FSEvent, quiet time.Duration) <-chan []string {
	out := make(chan []string)
	go func() {
		defer close(out)
		var pending []string
		var timer <-chan time.Time
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					if len(pending) > 0 {
						out <- pending
					}
					return
				}
				pending = append(pending, ev.Path)
				timer = time.After(quiet)
			case <-timer:
				out <- pending
				pending = nil
				timer = nil
			}
		}
	}()
	return out
}
