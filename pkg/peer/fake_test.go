package peer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/arena/pkg/protocol"
)

// fakeConn is an in-memory Conn. Messages pushed with deliver are returned by
// ReadMessage in order; fail makes the next read return err.
type fakeConn struct {
	in   chan []byte
	errs chan error
	done chan struct{}

	mu      sync.Mutex
	written []string
	closes  int
	once    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:   make(chan []byte, 64),
		errs: make(chan error, 1),
		done: make(chan struct{}),
	}
}

func (c *fakeConn) deliver(raw string) { c.in <- []byte(raw) }

func (c *fakeConn) fail(err error) { c.errs <- err }

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	// Deliver queued messages before reporting a failure.
	select {
	case m := <-c.in:
		return websocket.TextMessage, m, nil
	default:
	}
	select {
	case m := <-c.in:
		return websocket.TextMessage, m, nil
	case err := <-c.errs:
		return 0, nil, err
	case <-c.done:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if messageType == websocket.TextMessage {
		c.written = append(c.written, string(data))
	}
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) SetReadLimit(int64) {}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.written...)
}

// fakeDialer hands out conn, or fails with err.
type fakeDialer struct {
	conn *fakeConn
	err  error

	mu   sync.Mutex
	urls []string
}

func (d *fakeDialer) Dial(_ context.Context, url string, _ []string) (Conn, error) {
	d.mu.Lock()
	d.urls = append(d.urls, url)
	d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

// manualExec queues posted functions until run is called.
type manualExec struct {
	mu sync.Mutex
	q  []func()
}

func (e *manualExec) Post(fn func()) bool {
	e.mu.Lock()
	e.q = append(e.q, fn)
	e.mu.Unlock()
	return true
}

func (e *manualExec) pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.q)
}

// waitFor blocks until at least n functions are queued.
func (e *manualExec) waitFor(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for e.pending() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d posted functions, have %d", n, e.pending())
		}
		time.Sleep(time.Millisecond)
	}
}

// run executes queued functions, including any they post, until empty.
func (e *manualExec) run() {
	for {
		e.mu.Lock()
		if len(e.q) == 0 {
			e.mu.Unlock()
			return
		}
		fn := e.q[0]
		e.q = e.q[1:]
		e.mu.Unlock()
		fn()
	}
}

// fakeTimers records armed keep-alive timers.
type fakeTimers struct {
	mu    sync.Mutex
	armed []*fakeTimer
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return true
}

func (ft *fakeTimers) factory(d time.Duration, f func()) stopper {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	ft.armed = append(ft.armed, t)
	return t
}

func (ft *fakeTimers) count() int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return len(ft.armed)
}

func (ft *fakeTimers) last() *fakeTimer {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.armed[len(ft.armed)-1]
}

// statusRecorder collects every status broadcast.
type statusRecorder struct {
	mu   sync.Mutex
	seen []Status
}

func recordStatuses(p *Peer) *statusRecorder {
	r := &statusRecorder{}
	for s := StatusConnecting; s <= StatusTimeout; s++ {
		p.OnStatus(s, func(s Status) {
			r.mu.Lock()
			r.seen = append(r.seen, s)
			r.mu.Unlock()
		})
	}
	return r
}

func (r *statusRecorder) statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status(nil), r.seen...)
}

type harness struct {
	peer   *Peer
	conn   *fakeConn
	dialer *fakeDialer
	exec   *manualExec
	timers *fakeTimers
	status *statusRecorder
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	h := &harness{
		conn:   newFakeConn(),
		exec:   &manualExec{},
		timers: &fakeTimers{},
	}
	h.dialer = &fakeDialer{conn: h.conn}

	config := DefaultConfig()
	config.Name = "test"
	config.URL = "ws://example.test:9090"
	config.Dialer = h.dialer
	config.Executor = h.exec
	config.timerFactory = h.timers.factory
	if mutate != nil {
		mutate(config)
	}
	h.peer = New(config)
	h.status = recordStatuses(h.peer)
	t.Cleanup(func() { h.peer.Close() })
	return h
}

// connect drives the peer to the connect status with the given session id.
func (h *harness) connect(t *testing.T, sessionID string) {
	t.Helper()
	if err := h.peer.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	h.conn.deliver(protocol.Encode(sessionID))
	h.exec.waitFor(t, 2)
	h.exec.run()
	if !h.peer.IsConnected() {
		t.Fatalf("peer not connected after session id")
	}
}
