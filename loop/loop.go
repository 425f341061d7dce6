// Package loop runs every session, client and indicator handler on a single
// goroutine. Socket readers and tickers live on their own goroutines but only
// ever hand work to the loop through Post.
package loop

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const eventBufferSize = 64

type Timer interface {
	Stop()
}

type Loop struct {
	events chan func()
	done   chan struct{}
}

func New() *Loop {
	return &Loop{
		events: make(chan func(), eventBufferSize),
		done:   make(chan struct{}),
	}
}

// Run dispatches posted events until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.events:
			fn()
		}
	}
}

// Post queues fn to run on the loop. It returns false once the loop has
// stopped. Handlers running on the loop must not call Post.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.events <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Do runs fn on the loop and waits for it to finish.
func (l *Loop) Do(fn func()) bool {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return false
	}
	select {
	case <-finished:
		return true
	case <-l.done:
		return false
	}
}

type ticker struct {
	stopped atomic.Bool
	quit    chan struct{}
	once    sync.Once
}

// Stop cancels the timer. When called from the loop, no firing of the timer
// runs after Stop returns, including one that is already queued.
func (t *ticker) Stop() {
	t.stopped.Store(true)
	t.once.Do(func() {
		close(t.quit)
	})
}

// Every runs fn on the loop every d until the returned Timer is stopped.
func (l *Loop) Every(d time.Duration, fn func()) Timer {
	t := &ticker{quit: make(chan struct{})}
	fire := func() {
		if t.stopped.Load() {
			return
		}
		fn()
	}
	go func() {
		tk := time.NewTicker(d)
		defer tk.Stop()
		for {
			select {
			case <-t.quit:
				return
			case <-l.done:
				return
			case <-tk.C:
			}
			select {
			case l.events <- fire:
			case <-t.quit:
				return
			case <-l.done:
				return
			}
		}
	}()
	return t
}
