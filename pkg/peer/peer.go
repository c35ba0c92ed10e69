package peer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/arena/pkg/dispatch"
	"github.com/vango-dev/arena/pkg/loop"
	"github.com/vango-dev/arena/pkg/protocol"
)

// Event is a server-initiated message.
type Event struct {
	Code   int
	Values protocol.Values
}

// Response answers an operation request.
type Response struct {
	Code    int
	ErrCode int
	ErrMsg  string
	Values  protocol.Values
}

// OK reports whether the response carries no error code.
func (r *Response) OK() bool {
	return r.ErrCode == 0
}

// Handler types for the three listener channels.
type (
	StatusHandler   func(Status)
	EventHandler    func(*Event)
	ResponseHandler func(*Response)
)

// Hooks are optional callbacks invoked alongside the listener channels.
// All run on the peer's executor.
type Hooks struct {
	// ResponseObserver sees every response before its listeners.
	ResponseObserver func(*Response)

	// UnhandledEvent is called for events with no listener.
	UnhandledEvent func(*Event)

	// UnhandledResponse is called for responses with no listener.
	UnhandledResponse func(*Response)

	// InternalResponse is called for internal responses (ping replies).
	InternalResponse func(code int, vals protocol.Values)

	// ProtocolError is called for envelopes that cannot be interpreted.
	ProtocolError func(*ProtocolError)
}

// Peer is one framed websocket connection with typed listener registries.
//
// Messages are read on a dedicated goroutine and dispatched on the configured
// executor, one at a time and in arrival order. Dispatch for a connection stops
// as soon as Disconnect is called or the socket closes, even for messages
// already read.
//
// Public methods are safe for concurrent use.
type Peer struct {
	name    string
	config  *Config
	logger  *slog.Logger
	metrics *Metrics
	exec    loop.Executor
	ownLoop *loop.Loop

	statusListeners   *dispatch.Registry[StatusHandler]
	eventListeners    *dispatch.Registry[EventHandler]
	responseListeners *dispatch.Registry[ResponseHandler]

	hooksMu sync.RWMutex
	hooks   Hooks

	mu        sync.Mutex
	url       string
	state     connState
	conn      Conn
	sessionID string
	epoch     uint64

	writeMu   sync.Mutex
	keepAlive *keepAlive

	now func() time.Time
}

// New creates a disconnected peer.
func New(config *Config) *Peer {
	if config == nil {
		config = DefaultConfig()
	}
	config = config.Clone()
	config.applyDefaults()

	ids := new(dispatch.Sequence)
	p := &Peer{
		name:              config.Name,
		config:            config,
		logger:            config.Logger.With("peer", config.Name),
		metrics:           config.Metrics,
		exec:              config.Executor,
		url:               config.URL,
		statusListeners:   dispatch.NewWithSequence[StatusHandler](ids),
		eventListeners:    dispatch.NewWithSequence[EventHandler](ids),
		responseListeners: dispatch.NewWithSequence[ResponseHandler](ids),
		now:               time.Now,
	}
	if p.exec == nil {
		p.ownLoop = loop.New(loop.DefaultQueueSize, p.logger)
		p.ownLoop.Start()
		p.exec = p.ownLoop
	}
	p.keepAlive = newKeepAlive(config.KeepAlive, config.timerFactory, p.ping)
	return p
}

// Name returns the peer name.
func (p *Peer) Name() string {
	return p.name
}

// URL returns the address the next Connect dials.
func (p *Peer) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// SetURL changes the address used by the next Connect.
func (p *Peer) SetURL(url string) {
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
}

// SessionID returns the id received from the server, or "" before it arrives.
func (p *Peer) SessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionID
}

// IsConnected reports whether the session id has been received and the socket
// is still open.
func (p *Peer) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == stateConnected
}

// IsOpen reports whether the socket is open, with or without a session id.
func (p *Peer) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == stateOpen || p.state == stateConnected
}

// SetHooks replaces the peer's hooks.
func (p *Peer) SetHooks(h Hooks) {
	p.hooksMu.Lock()
	p.hooks = h
	p.hooksMu.Unlock()
}

func (p *Peer) getHooks() Hooks {
	p.hooksMu.RLock()
	defer p.hooksMu.RUnlock()
	return p.hooks
}

// =============================================================================
// Listener registration
// =============================================================================

// OnStatus registers fn for status s.
func (p *Peer) OnStatus(s Status, fn StatusHandler) dispatch.ID {
	return p.statusListeners.Add(int(s), fn)
}

// OnEvent registers fn for event code.
func (p *Peer) OnEvent(code int, fn EventHandler) dispatch.ID {
	return p.eventListeners.Add(code, fn)
}

// OnResponse registers fn for responses to operation code.
func (p *Peer) OnResponse(code int, fn ResponseHandler) dispatch.ID {
	return p.responseListeners.Add(code, fn)
}

// RemoveListener removes a listener registered on any channel.
func (p *Peer) RemoveListener(id dispatch.ID) bool {
	return p.statusListeners.Remove(id) ||
		p.eventListeners.Remove(id) ||
		p.responseListeners.Remove(id)
}

// RemoveAllStatus removes every listener for status s.
func (p *Peer) RemoveAllStatus(s Status) {
	p.statusListeners.RemoveAll(int(s))
}

// RemoveAllEvent removes every listener for event code.
func (p *Peer) RemoveAllEvent(code int) {
	p.eventListeners.RemoveAll(code)
}

// RemoveAllResponse removes every listener for operation code.
func (p *Peer) RemoveAllResponse(code int) {
	p.responseListeners.RemoveAll(code)
}

// ClearListeners removes every listener on every channel.
func (p *Peer) ClearListeners() {
	p.statusListeners.Clear()
	p.eventListeners.Clear()
	p.responseListeners.Clear()
}

// =============================================================================
// Connection lifecycle
// =============================================================================

// Connect starts opening the socket. It returns once the connecting status is
// queued; the outcome arrives as connect or connectFailed on the status channel.
func (p *Peer) Connect(ctx context.Context) error {
	p.mu.Lock()
	if p.url == "" {
		p.mu.Unlock()
		return ErrNoURL
	}
	if p.state != stateIdle && p.state != stateClosed {
		p.mu.Unlock()
		return ErrAlreadyConnected
	}
	p.state = stateConnecting
	p.sessionID = ""
	p.epoch++
	epoch := p.epoch
	url := p.url
	p.mu.Unlock()

	p.logger.Debug("connecting", "url", url)
	p.exec.Post(func() { p.dispatchStatus(StatusConnecting) })

	go p.dial(ctx, url, epoch)
	return nil
}

func (p *Peer) dial(ctx context.Context, url string, epoch uint64) {
	dialCtx, cancel := context.WithTimeout(ctx, p.config.DialTimeout)
	conn, err := p.config.Dialer.Dial(dialCtx, url, p.config.SubProtocols)
	cancel()

	p.mu.Lock()
	if epoch != p.epoch || p.state != stateConnecting {
		// Disconnect won the race and already reported.
		p.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		p.state = stateClosed
		p.mu.Unlock()
		p.logger.Warn("connect failed", "url", url, "error", err)
		p.exec.Post(func() { p.dispatchStatus(StatusConnectFailed) })
		return
	}
	conn.SetReadLimit(p.config.MaxMessageSize)
	p.conn = conn
	p.state = stateOpen
	p.mu.Unlock()

	p.logger.Debug("socket open", "url", url)
	go p.readLoop(conn, epoch)
}

// Disconnect closes the socket. Messages not yet dispatched are dropped and no
// sends are accepted afterwards. Disconnecting an idle peer is a no-op.
func (p *Peer) Disconnect() {
	p.mu.Lock()
	if p.state == stateIdle || p.state == stateClosed {
		p.mu.Unlock()
		return
	}
	conn := p.conn
	p.conn = nil
	p.state = stateClosed
	p.sessionID = ""
	p.epoch++
	p.mu.Unlock()

	p.keepAlive.stop()
	if conn != nil {
		p.writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(time.Second))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		p.writeMu.Unlock()
		conn.Close()
	}

	p.logger.Debug("disconnected")
	p.exec.Post(func() { p.dispatchStatus(StatusDisconnect) })
}

// Close disconnects and stops the private executor, if the peer owns one.
func (p *Peer) Close() {
	p.Disconnect()
	if p.ownLoop != nil {
		p.ownLoop.Close()
	}
}

// readLoop reads socket messages and posts them to the executor.
func (p *Peer) readLoop(conn Conn, epoch uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			p.handleClose(conn, epoch, err)
			return
		}
		p.metrics.recordReceived(p.name, len(data))
		raw := string(data)
		if !p.exec.Post(func() { p.handleMessage(epoch, raw) }) {
			conn.Close()
			return
		}
	}
}

func (p *Peer) handleClose(conn Conn, epoch uint64, err error) {
	p.mu.Lock()
	if epoch != p.epoch {
		// Closed locally; Disconnect already reported.
		p.mu.Unlock()
		return
	}
	hadSession := p.state == stateConnected
	p.conn = nil
	p.state = stateClosed
	p.sessionID = ""
	p.epoch++
	p.mu.Unlock()

	p.keepAlive.stop()
	conn.Close()

	if !hadSession {
		p.logger.Warn("socket closed before session established", "error", err)
		p.exec.Post(func() { p.dispatchStatus(StatusConnectFailed) })
		return
	}

	switch classifyClose(err) {
	case closeServer:
		p.logger.Info("connection closed by server", "error", err)
		p.exec.Post(func() { p.dispatchStatus(StatusConnectClosed) })
	default:
		p.logger.Warn("connection lost", "error", err)
		p.exec.Post(func() {
			p.dispatchStatus(StatusTimeout)
			p.dispatchStatus(StatusDisconnect)
		})
	}
}

// isCurrent reports whether epoch still identifies the live connection.
func (p *Peer) isCurrent(epoch uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return epoch == p.epoch
}

// handleMessage decodes one socket message and dispatches its payloads.
// Runs on the executor.
func (p *Peer) handleMessage(epoch uint64, raw string) {
	for _, payload := range protocol.Decode(raw) {
		if !p.isCurrent(epoch) {
			p.metrics.recordStale(p.name)
			return
		}

		if protocol.IsJSON(payload) {
			p.handleEnvelope(payload)
			continue
		}

		p.mu.Lock()
		first := p.state == stateOpen
		if first {
			p.sessionID = payload
			p.state = stateConnected
		}
		p.mu.Unlock()

		if first {
			p.logger.Info("connected", "session_id", payload)
			p.dispatchStatus(StatusConnect)
			continue
		}
		p.logger.Debug("ignoring bare payload", "payload", payload)
	}
}

func (p *Peer) handleEnvelope(payload string) {
	env, err := protocol.DecodeEnvelope(payload)
	if err != nil {
		perr := newProtocolError(p.name, "decode envelope", payload, err)
		p.metrics.recordProtocolError(p.name)
		p.logger.Error("protocol error", "error", perr)
		if h := p.getHooks().ProtocolError; h != nil {
			h(perr)
		}
		return
	}
	p.metrics.recordEnvelope(p.name, env.Kind.String())
	hooks := p.getHooks()

	switch env.Kind {
	case protocol.KindResponse:
		resp := &Response{Code: env.Code, ErrCode: env.ErrCode, ErrMsg: env.ErrMsg, Values: env.Values}
		if hooks.ResponseObserver != nil {
			hooks.ResponseObserver(resp)
		}
		handled := p.responseListeners.Dispatch(resp.Code, func(h ResponseHandler) { h(resp) })
		if !handled {
			p.metrics.recordUnhandled(p.name, "response")
			p.logger.Debug("unhandled response", "code", resp.Code, "err_code", resp.ErrCode)
			if hooks.UnhandledResponse != nil {
				hooks.UnhandledResponse(resp)
			}
		}

	case protocol.KindEvent:
		ev := &Event{Code: env.Code, Values: env.Values}
		handled := p.eventListeners.Dispatch(ev.Code, func(h EventHandler) { h(ev) })
		if !handled {
			p.metrics.recordUnhandled(p.name, "event")
			p.logger.Debug("unhandled event", "code", ev.Code)
			if hooks.UnhandledEvent != nil {
				hooks.UnhandledEvent(ev)
			}
		}

	case protocol.KindInternal:
		p.logger.Debug("internal response", "code", env.Code)
		if hooks.InternalResponse != nil {
			hooks.InternalResponse(env.Code, env.Values)
		}
	}
}

// dispatchStatus notifies status listeners. Runs on the executor.
func (p *Peer) dispatchStatus(s Status) {
	p.metrics.recordStatus(p.name, s)
	p.statusListeners.Dispatch(int(s), func(h StatusHandler) { h(s) })
}

// =============================================================================
// Sending
// =============================================================================

// SendOperation sends an operation request. params must be a flat list of
// alternating keys and values.
func (p *Peer) SendOperation(code int, params protocol.Params) error {
	if !params.Valid() {
		return fmt.Errorf("%w: operation %d params must be key/value pairs, got %d items",
			ErrInvalidArgument, code, len(params))
	}
	return p.send(protocol.OperationRequest{Code: code, Params: params}, false)
}

// Send frames and writes arbitrary messages.
func (p *Peer) Send(messages ...any) error {
	return p.send(messages, false)
}

// send writes msg. With relaxed set, a socket that is not open yet is not an
// error and the message is dropped.
func (p *Peer) send(msg any, relaxed bool) error {
	p.mu.Lock()
	conn := p.conn
	open := p.state == stateOpen || p.state == stateConnected
	p.mu.Unlock()

	if conn == nil || !open {
		if relaxed {
			return nil
		}
		return ErrNotConnected
	}

	var data string
	if batch, ok := msg.([]any); ok {
		data = protocol.Encode(batch...)
	} else {
		data = protocol.Encode(msg)
	}

	p.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(p.config.WriteTimeout))
	err := conn.WriteMessage(websocket.TextMessage, []byte(data))
	p.writeMu.Unlock()

	if err != nil {
		p.logger.Error("write failed", "error", err)
		p.exec.Post(func() { p.dispatchStatus(StatusError) })
		return fmt.Errorf("peer %s: write: %w", p.name, err)
	}

	p.metrics.recordSent(p.name, len(data))
	p.keepAlive.reset()
	return nil
}

// ping sends the keep-alive request. Called by the keep-alive timer.
func (p *Peer) ping() {
	if !p.IsOpen() {
		return
	}
	if err := p.send(protocol.NewPing(p.now().UnixMilli()), true); err != nil {
		p.logger.Debug("ping failed", "error", err)
		return
	}
	p.metrics.recordPing(p.name)
}
