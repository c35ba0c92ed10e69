package peer

import (
	"sync"
	"time"
)

// stopper is the part of *time.Timer the keep-alive needs.
type stopper interface {
	Stop() bool
}

// timerFactory arms a single-shot timer that calls f after d.
type timerFactory func(d time.Duration, f func()) stopper

func realTimer(d time.Duration, f func()) stopper {
	return time.AfterFunc(d, f)
}

// keepAlive is a single-shot idle timer re-armed by every successful send.
//
// When it fires, ping runs once; the timer stays disarmed until the next send
// (normally the ping itself) calls reset. At most one ping is in flight per
// idle window.
type keepAlive struct {
	mu       sync.Mutex
	interval time.Duration
	after    timerFactory
	ping     func()
	timer    stopper
	gen      uint64
}

func newKeepAlive(interval time.Duration, after timerFactory, ping func()) *keepAlive {
	return &keepAlive{interval: interval, after: after, ping: ping}
}

// enabled reports whether pings are sent at all.
func (k *keepAlive) enabled() bool {
	return k.interval >= MinKeepAlive
}

// reset restarts the idle window.
func (k *keepAlive) reset() {
	if !k.enabled() {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.timer != nil {
		k.timer.Stop()
	}
	k.gen++
	gen := k.gen
	k.timer = k.after(k.interval, func() { k.fire(gen) })
}

// stop disarms the timer.
func (k *keepAlive) stop() {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.timer != nil {
		k.timer.Stop()
		k.timer = nil
	}
	k.gen++
}

func (k *keepAlive) fire(gen uint64) {
	k.mu.Lock()
	if gen != k.gen {
		// Superseded by a reset or stop that raced with expiry.
		k.mu.Unlock()
		return
	}
	k.timer = nil
	k.mu.Unlock()

	k.ping()
}
