// Package sweeper runs periodic background passes with an explicit stop.
package sweeper

import (
	"sync"
	"time"
)

// Loop is a running periodic task.
type Loop struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// Start calls fn every interval until Stop. fn receives the tick time and
// never runs concurrently with itself.
func Start(interval time.Duration, fn func(now time.Time)) *Loop {
	l := &Loop{stop: make(chan struct{}), done: make(chan struct{})}
	go func() {
		defer close(l.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-l.stop:
				return
			case now := <-ticker.C:
				fn(now)
			}
		}
	}()
	return l
}

// Stop ends the loop and waits for an in-flight pass to finish. It is safe to
// call more than once and on a nil Loop.
func (l *Loop) Stop() {
	if l == nil {
		return
	}
	l.once.Do(func() { close(l.stop) })
	<-l.done
}
