// Package eventbus fans scheduler events out to in-process listeners such as
// the metrics collector.
package eventbus

import (
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	TypeTaskStarted   = "task.started"
	TypeTaskFinished  = "task.finished"
	TypeBucketSkipped = "bucket.skipped"
)

type Event struct {
	Type string
	Time time.Time
	Data any
}

// Bus delivers events without blocking the publisher. A subscriber whose
// buffer is full misses the event.
type Bus interface {
	Publish(e Event)
	// Subscribe delivers events whose Type starts with one of prefixes, or
	// every event when none are given. unsubscribe closes ch and is idempotent.
	Subscribe(buffer int, prefixes ...string) (ch <-chan Event, unsubscribe func())
}

func New() Bus { return &bus{} }

type listener struct {
	ch     chan Event
	filter []string
}

func (l *listener) accepts(typ string) bool {
	return len(l.filter) == 0 || slices.ContainsFunc(l.filter, func(p string) bool {
		return strings.HasPrefix(typ, p)
	})
}

type bus struct {
	// Publish holds the read lock while sending so unsubscribe cannot close
	// a channel mid-send.
	mu        sync.RWMutex
	listeners []*listener
}

func (b *bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, l := range b.listeners {
		if !l.accepts(e.Type) {
			continue
		}
		select {
		case l.ch <- e:
		default:
		}
	}
}

func (b *bus) Subscribe(buffer int, prefixes ...string) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	l := &listener{ch: make(chan Event, buffer), filter: prefixes}
	b.mu.Lock()
	b.listeners = append(b.listeners, l)
	b.mu.Unlock()

	return l.ch, sync.OnceFunc(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.listeners = slices.DeleteFunc(b.listeners, func(x *listener) bool { return x == l })
		close(l.ch)
	})
}
