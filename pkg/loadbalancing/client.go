package loadbalancing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/vango-dev/arena/pkg/lite"
	"github.com/vango-dev/arena/pkg/loop"
	"github.com/vango-dev/arena/pkg/peer"
	"github.com/vango-dev/arena/pkg/protocol"
)

// ErrNoMasterAddress is returned by Connect without a configured master.
var ErrNoMasterAddress = errors.New("loadbalancing: no master address")

// AppStats are the application counters pushed by the master.
type AppStats struct {
	PeerCount       int
	GameCount       int
	MasterPeerCount int
}

// Callbacks are invoked on the client's loop goroutine, never while the client
// lock is held. Any may be nil.
type Callbacks struct {
	// OnStateChange fires after every workflow transition.
	OnStateChange func(from, to State)

	// OnError receives peer failures, failed operations and workflow violations.
	OnError func(err error)

	// OnOperationResponse sees every response on either peer, failed ones
	// included.
	OnOperationResponse func(peerName string, resp *peer.Response)

	// OnRoomList fires when the master sends the full lobby list.
	OnRoomList func(rooms []RoomInfo)

	// OnRoomListUpdate fires for incremental lobby updates.
	OnRoomListUpdate func(rooms, updated, added, removed []RoomInfo)

	// OnAppStats fires when the master pushes application counters.
	OnAppStats func(stats AppStats)

	// OnJoinRoom fires once the game server confirmed the join.
	OnJoinRoom func(room *Room)

	// OnLeaveRoom fires when the game connection of a joined room ends.
	OnLeaveRoom func()

	OnActorJoin             func(a *lite.Actor)
	OnActorLeave            func(a *lite.Actor)
	OnActorPropertiesChange func(a *lite.Actor)
	OnRoomPropertiesChange  func(room *Room)

	// OnEvent receives custom events raised in the room.
	OnEvent func(code int, sender int, data any)
}

// roomRequest is a room operation sent to the master and awaiting either the
// master response or the game-server join.
type roomRequest struct {
	op     int // master operation
	gameOp int // operation sent to the game server
	room   string
}

// Client drives the two-tier workflow: authenticate on the master, list rooms
// in the lobby, then hand off to the game server hosting the chosen room.
//
// All peer traffic, state changes and callbacks run on one loop goroutine.
// Public methods are safe for concurrent use and never wait for the network.
type Client struct {
	config  *Config
	logger  *slog.Logger
	tracing tracing
	loop    *loop.Loop
	session *lite.Session

	mu        sync.Mutex
	callbacks Callbacks
	queued    []func()
	ctx       context.Context
	closed    bool

	state            State
	master           *peer.Peer
	game             *peer.Peer
	room             *Room
	rooms            []*RoomInfo
	stats            AppStats
	secret           string
	userID           string
	request          *roomRequest
	reconnectPending bool
}

// New creates an unconnected client.
func New(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	config = config.Clone()
	config.applyDefaults()

	logger := config.Logger.With("component", "loadbalancing")
	c := &Client{
		config:  config,
		logger:  logger,
		tracing: newTracing(config.TracerProvider),
		loop:    loop.New(loop.DefaultQueueSize, logger),
		ctx:     context.Background(),
		userID:  config.UserID,
	}
	c.session = lite.New(lite.WithLogger(config.Logger), lite.WithCallbacks(c.sessionCallbacks()))
	c.room = c.newRoom("")
	if config.PlayerName != "" {
		c.session.LocalActor().SetName(config.PlayerName)
	}
	c.loop.Start()
	return c
}

// SetCallbacks replaces the client callbacks.
func (c *Client) SetCallbacks(cb Callbacks) {
	c.mu.Lock()
	c.callbacks = cb
	c.mu.Unlock()
}

// =============================================================================
// Accessors
// =============================================================================

// State returns the workflow state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// UserID returns the configured or server-assigned user id.
func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// MyActor returns the local actor. It persists across rooms.
func (c *Client) MyActor() *lite.Actor {
	return c.session.LocalActor()
}

// MyRoom returns the current room: the staging room before a join, the joined
// room afterwards.
func (c *Client) MyRoom() *Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// MyRoomActors returns the actors of the current room ordered by number.
func (c *Client) MyRoomActors() []*lite.Actor {
	return c.session.Actors()
}

// AvailableRooms returns a copy of the lobby room list.
func (c *Client) AvailableRooms() []RoomInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneRooms(c.rooms)
}

// AppStats returns the last application counters pushed by the master.
func (c *Client) AppStats() AppStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Session returns the room/actor session used on the game server.
func (c *Client) Session() *lite.Session {
	return c.session
}

// IsInLobby reports whether room operations are accepted.
func (c *Client) IsInLobby() bool {
	return c.State().InLobby()
}

// IsJoinedToRoom reports whether the game server confirmed the join.
func (c *Client) IsJoinedToRoom() bool {
	return c.State() == StateJoined
}

// =============================================================================
// Operations
// =============================================================================

// Connect opens the master connection. The workflow continues through
// authentication and the lobby join on its own. ctx bounds every dial the
// client makes until the next Connect.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.config.MasterAddress == "" {
		c.mu.Unlock()
		return ErrNoMasterAddress
	}
	if err := c.transitionLocked(StateConnectingToMaster); err != nil {
		c.unlockPost()
		return err
	}
	c.ctx = ctx
	c.reconnectPending = false
	c.rooms = nil
	master := c.newPeer("master", peer.BuildURL(c.config.Scheme, c.config.MasterAddress))
	c.master = master
	c.wireMaster(master)
	c.unlockPost()

	if err := master.Connect(ctx); err != nil {
		c.mu.Lock()
		if c.master == master {
			c.master = nil
			c.mustTransitionLocked(StateError)
		}
		c.unlockPost()
		return err
	}
	return nil
}

// Disconnect closes both peers. The state passes through Disconnecting and
// reaches Disconnected once the peers report their close.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	switch c.state {
	case StateUninitialized, StateDisconnected, StateDisconnecting:
		c.mu.Unlock()
		return nil
	}
	if err := c.transitionLocked(StateDisconnecting); err != nil {
		c.unlockPost()
		return err
	}
	master, game := c.master, c.game
	c.reconnectPending = false
	c.request = nil
	if master == nil && game == nil {
		c.mustTransitionLocked(StateDisconnected)
	}
	c.unlockPost()

	if master != nil {
		master.Disconnect()
	}
	if game != nil {
		game.Disconnect()
	}
	return nil
}

// Close disconnects and stops the client loop after pending callbacks ran.
// It must not be called from a callback.
func (c *Client) Close() {
	c.Disconnect()

	c.mu.Lock()
	already := c.closed
	c.closed = true
	c.mu.Unlock()
	if already {
		return
	}
	c.loop.Sync()
	c.loop.Close()
}

// CreateRoom asks the master for a game server hosting a new room. An empty
// name lets the server pick one.
func (c *Client) CreateRoom(name string, opts *RoomOptions) error {
	c.mu.Lock()
	if err := c.roomRequestAllowedLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	room := c.newRoom(name)
	if opts != nil {
		room.info.MaxPlayers = opts.MaxPlayers
		room.info.IsVisible = !opts.Hidden
		room.info.IsOpen = !opts.Closed
		if opts.Properties != nil {
			room.info.Properties = maps.Clone(opts.Properties)
		}
		room.info.PropsListedInLobby = append([]string(nil), opts.PropsListedInLobby...)
	}
	c.room = room
	c.request = &roomRequest{op: OpCreateGame, gameOp: OpCreateGame, room: name}
	master := c.master
	props := room.info.wireProps()
	c.mu.Unlock()

	params := protocol.Params{}.
		AddIf(name != "", lite.KeyRoomName, name).
		Add(lite.KeyGameProperties, props)
	return c.sendRoomRequest(master, OpCreateGame, params)
}

// JoinRoom asks the master for the game server hosting an existing room.
func (c *Client) JoinRoom(name string) error {
	if name == "" {
		return lite.ErrMissingRoomName
	}
	c.mu.Lock()
	if err := c.roomRequestAllowedLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.room = c.newRoom(name)
	c.request = &roomRequest{op: OpJoinGame, gameOp: OpJoinGame, room: name}
	master := c.master
	c.mu.Unlock()

	params := protocol.Params{}.Add(lite.KeyRoomName, name)
	return c.sendRoomRequest(master, OpJoinGame, params)
}

// JoinRandomRoom asks the master for any open room whose properties match
// expected. maxPlayers > 0 additionally filters on the player limit.
func (c *Client) JoinRandomRoom(expected map[string]any, maxPlayers int) error {
	c.mu.Lock()
	if err := c.roomRequestAllowedLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.room = c.newRoom("")
	c.request = &roomRequest{op: OpJoinRandomGame, gameOp: OpJoinGame}
	master := c.master
	c.mu.Unlock()

	props := maps.Clone(expected)
	if props == nil {
		props = map[string]any{}
	}
	if maxPlayers > 0 {
		props[propKey(RoomMaxPlayers)] = maxPlayers
	}
	params := protocol.Params{}.AddIf(len(props) > 0, lite.KeyGameProperties, props)
	return c.sendRoomRequest(master, OpJoinRandomGame, params)
}

// LeaveRoom closes the game connection. Without a kept master connection the
// client reconnects to the master once the game peer has closed.
func (c *Client) LeaveRoom() error {
	c.mu.Lock()
	game := c.game
	if game == nil {
		c.mu.Unlock()
		return ErrNotInRoom
	}
	if c.master == nil || !c.master.IsConnected() {
		c.reconnectPending = true
	}
	c.mu.Unlock()

	game.Disconnect()
	return nil
}

// RaiseEvent sends a custom event to the joined room.
func (c *Client) RaiseEvent(code int, data any, opts ...lite.EventOption) error {
	err := c.session.RaiseEvent(code, data, opts...)
	c.tracing.operation(c.context(), "game", lite.OpRaiseEvent, err)
	return err
}

func (c *Client) roomRequestAllowedLocked() error {
	if c.closed {
		return ErrClosed
	}
	if !c.state.InLobby() || c.master == nil {
		return &TransitionError{From: c.state, To: StateConnectingToGame}
	}
	if c.request != nil {
		return ErrOperationPending
	}
	return nil
}

func (c *Client) sendRoomRequest(master *peer.Peer, code int, params protocol.Params) error {
	err := master.SendOperation(code, params)
	c.tracing.operation(c.context(), "master", code, err)
	if err != nil {
		c.mu.Lock()
		c.request = nil
		c.mu.Unlock()
		return err
	}
	return nil
}

// =============================================================================
// Internals
// =============================================================================

func (c *Client) context() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}

func (c *Client) newRoom(name string) *Room {
	return &Room{client: c, info: newRoomInfo(name)}
}

func (c *Client) newPeer(name, url string) *peer.Peer {
	return peer.New(&peer.Config{
		Name:         name,
		URL:          url,
		SubProtocols: c.config.SubProtocols,
		KeepAlive:    c.config.KeepAlive,
		Executor:     c.loop,
		Dialer:       c.config.Dialer,
		Logger:       c.config.Logger,
		Metrics:      c.config.Metrics,
	})
}

// later queues fn to run after the lock is released. Requires c.mu.
func (c *Client) later(fn func()) {
	c.queued = append(c.queued, fn)
}

// unlock releases c.mu and runs queued notifications on the calling
// goroutine. Only for handlers already running on the loop.
func (c *Client) unlock() {
	queued := c.queued
	c.queued = nil
	c.mu.Unlock()
	for _, fn := range queued {
		fn()
	}
}

// unlockPost releases c.mu and runs queued notifications on the loop.
func (c *Client) unlockPost() {
	queued := c.queued
	c.queued = nil
	c.mu.Unlock()
	if len(queued) == 0 {
		return
	}
	c.loop.Post(func() {
		for _, fn := range queued {
			fn()
		}
	})
}

// transitionLocked moves the workflow to state to. Requires c.mu.
func (c *Client) transitionLocked(to State) error {
	from := c.state
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	c.state = to
	c.logger.Info("state changed", "from", from, "to", to)

	ctx := c.ctx
	cb := c.callbacks.OnStateChange
	c.later(func() {
		c.tracing.transition(ctx, from, to)
		if cb != nil {
			cb(from, to)
		}
	})
	return nil
}

// mustTransitionLocked is transitionLocked for transitions driven by the
// servers; a violation is logged and reported instead of returned.
func (c *Client) mustTransitionLocked(to State) bool {
	if err := c.transitionLocked(to); err != nil {
		c.logger.Error("workflow violation", "error", err)
		c.reportLocked(err)
		return false
	}
	return true
}

// reportLocked queues err for the OnError callback. Requires c.mu.
func (c *Client) reportLocked(err error) {
	cb := c.callbacks.OnError
	c.later(func() {
		if cb != nil {
			cb(err)
		}
	})
}

func (c *Client) observe(peerName string, resp *peer.Response) {
	c.mu.Lock()
	ctx := c.ctx
	cb := c.callbacks.OnOperationResponse
	c.mu.Unlock()

	c.tracing.response(ctx, peerName, resp)
	if !resp.OK() {
		c.logger.Warn("operation failed", "peer", peerName, "op", resp.Code, "err_code", resp.ErrCode, "msg", resp.ErrMsg)
	}
	if cb != nil {
		cb(peerName, resp)
	}
}

func (c *Client) onProtocolError(err *peer.ProtocolError) {
	c.mu.Lock()
	c.reportLocked(err)
	c.unlock()
}

// authenticate sends the authenticate request on p. The game server is
// authenticated with the secret issued by the master.
func (c *Client) authenticate(p *peer.Peer, secret string) {
	c.mu.Lock()
	userID := c.userID
	ctx := c.ctx
	c.mu.Unlock()

	params := protocol.Params{}.
		Add(KeyApplicationID, c.config.AppID).
		Add(KeyAppVersion, c.config.AppVersion).
		AddIf(userID != "", KeyUserID, userID)
	switch {
	case secret != "":
		params = params.Add(KeySecret, secret)
	case c.config.Auth != nil:
		params = params.
			Add(KeyClientAuthType, c.config.Auth.Type).
			Add(KeyClientAuthParams, c.config.Auth.Params)
	}

	err := p.SendOperation(OpAuthenticate, params)
	c.tracing.operation(ctx, p.Name(), OpAuthenticate, err)
	if err != nil {
		c.logger.Error("authenticate failed", "peer", p.Name(), "error", err)
		c.mu.Lock()
		c.reportLocked(fmt.Errorf("loadbalancing: %s authenticate: %w", p.Name(), err))
		c.unlock()
	}
}

// =============================================================================
// Master peer
// =============================================================================

var allStatuses = []peer.Status{
	peer.StatusConnecting,
	peer.StatusConnect,
	peer.StatusConnectFailed,
	peer.StatusDisconnect,
	peer.StatusConnectClosed,
	peer.StatusError,
	peer.StatusTimeout,
}

func (c *Client) wireMaster(m *peer.Peer) {
	for _, s := range allStatuses {
		m.OnStatus(s, func(s peer.Status) { c.onMasterStatus(m, s) })
	}
	m.OnResponse(OpAuthenticate, func(r *peer.Response) { c.onMasterAuthenticate(m, r) })
	m.OnResponse(OpJoinLobby, func(r *peer.Response) { c.onJoinLobby(m, r) })
	for _, code := range []int{OpCreateGame, OpJoinGame, OpJoinRandomGame} {
		m.OnResponse(code, func(r *peer.Response) { c.onMasterRoomResponse(m, r) })
	}
	m.OnEvent(EvGameList, func(e *peer.Event) { c.onGameList(m, e) })
	m.OnEvent(EvGameListUpdate, func(e *peer.Event) { c.onGameListUpdate(m, e) })
	m.OnEvent(EvAppStats, func(e *peer.Event) { c.onAppStats(m, e) })
	m.SetHooks(peer.Hooks{
		ResponseObserver: func(r *peer.Response) { c.observe("master", r) },
		ProtocolError:    c.onProtocolError,
	})
}

// onMasterStatus projects master peer status onto the workflow state.
func (c *Client) onMasterStatus(m *peer.Peer, s peer.Status) {
	c.mu.Lock()
	if c.master != m {
		// Released after the game handoff, or replaced.
		c.mu.Unlock()
		return
	}

	switch s {
	case peer.StatusConnecting:
		c.mu.Unlock()
		return

	case peer.StatusConnect:
		c.mu.Unlock()
		c.authenticate(m, "")
		return

	case peer.StatusDisconnect:
		c.master = nil
		if c.game == nil && CanTransition(c.state, StateDisconnected) {
			c.mustTransitionLocked(StateDisconnected)
		}
		c.unlock()

	default:
		c.master = nil
		if c.game == nil {
			c.mustTransitionLocked(StateError)
		}
		c.reportLocked(&PeerError{Peer: "master", Status: s})
		c.unlock()
		m.Disconnect()
	}
}

func (c *Client) onMasterAuthenticate(m *peer.Peer, resp *peer.Response) {
	c.mu.Lock()
	if c.master != m {
		c.mu.Unlock()
		return
	}
	if !resp.OK() {
		c.master = nil
		c.mustTransitionLocked(StateError)
		c.reportLocked(operationError("master", resp))
		c.unlock()
		m.Disconnect()
		return
	}

	if secret, ok := resp.Values.String(KeySecret); ok {
		c.secret = secret
	}
	if id, ok := resp.Values.String(KeyUserID); ok && id != "" {
		c.userID = id
	}
	ok := c.mustTransitionLocked(StateConnectedToMaster)
	ctx := c.ctx
	c.unlock()
	if !ok {
		return
	}

	err := m.SendOperation(OpJoinLobby, nil)
	c.tracing.operation(ctx, "master", OpJoinLobby, err)
	if err != nil {
		c.mu.Lock()
		c.reportLocked(err)
		c.unlock()
	}
}

func (c *Client) onJoinLobby(m *peer.Peer, resp *peer.Response) {
	c.mu.Lock()
	if c.master != m {
		c.mu.Unlock()
		return
	}
	if !resp.OK() {
		c.reportLocked(operationError("master", resp))
		c.unlock()
		return
	}
	c.mustTransitionLocked(StateJoinedLobby)
	c.unlock()
}

func (c *Client) onGameList(m *peer.Peer, ev *peer.Event) {
	list, _ := ev.Values.Map(KeyGameList)

	c.mu.Lock()
	if c.master != m {
		c.mu.Unlock()
		return
	}
	c.rooms = roomsFromList(list)
	rooms := cloneRooms(c.rooms)
	cb := c.callbacks.OnRoomList
	c.later(func() {
		if cb != nil {
			cb(rooms)
		}
	})
	c.unlock()
}

func (c *Client) onGameListUpdate(m *peer.Peer, ev *peer.Event) {
	update, _ := ev.Values.Map(KeyGameList)

	c.mu.Lock()
	if c.master != m {
		c.mu.Unlock()
		return
	}
	change := applyRoomListUpdate(c.rooms, update)
	c.rooms = change.Rooms
	rooms, updated := cloneRooms(change.Rooms), cloneRooms(change.Updated)
	added, removed := cloneRooms(change.Added), cloneRooms(change.Removed)
	cb := c.callbacks.OnRoomListUpdate
	c.later(func() {
		if cb != nil {
			cb(rooms, updated, added, removed)
		}
	})
	c.unlock()
}

func (c *Client) onAppStats(m *peer.Peer, ev *peer.Event) {
	c.mu.Lock()
	if c.master != m {
		c.mu.Unlock()
		return
	}
	c.stats = AppStats{
		PeerCount:       ev.Values.IntOr(KeyPeerCount, 0),
		GameCount:       ev.Values.IntOr(KeyGameCount, 0),
		MasterPeerCount: ev.Values.IntOr(KeyMasterPeerCount, 0),
	}
	stats := c.stats
	cb := c.callbacks.OnAppStats
	c.later(func() {
		if cb != nil {
			cb(stats)
		}
	})
	c.unlock()
}

// onMasterRoomResponse handles create, join and join-random responses. A
// success carries the game server address and starts the handoff.
func (c *Client) onMasterRoomResponse(m *peer.Peer, resp *peer.Response) {
	c.mu.Lock()
	req := c.request
	if c.master != m || req == nil || req.op != resp.Code {
		c.mu.Unlock()
		return
	}
	if !resp.OK() {
		c.request = nil
		c.reportLocked(operationError("master", resp))
		c.unlock()
		return
	}

	address, _ := resp.Values.String(KeyAddress)
	if name, ok := resp.Values.String(lite.KeyRoomName); ok && name != "" {
		req.room = name
		c.room.info.Name = name
	}
	if address == "" || req.room == "" {
		c.request = nil
		c.reportLocked(fmt.Errorf("%w: master operation %d returned no game server address or room name",
			ErrOperationFailed, resp.Code))
		c.unlock()
		return
	}
	c.room.info.Address = address
	if !c.mustTransitionLocked(StateConnectingToGame) {
		c.request = nil
		c.unlock()
		return
	}
	c.unlock()

	c.connectToGameServer(address)
}

// =============================================================================
// Game peer
// =============================================================================

// connectToGameServer dials the game server and releases the master unless
// KeepMasterConnection is set. The master is closed only after the game dial
// has started.
func (c *Client) connectToGameServer(address string) {
	c.mu.Lock()
	game := c.newPeer("game", peer.BuildURL(c.config.Scheme, address))
	c.game = game
	var release *peer.Peer
	if !c.config.KeepMasterConnection {
		release = c.master
		c.master = nil
	}
	ctx := c.ctx
	c.mu.Unlock()

	c.wireGame(game)
	c.logger.Info("connecting to game server", "address", address)
	err := game.Connect(ctx)
	if release != nil {
		release.Disconnect()
	}
	if err != nil {
		c.gameLost(game, peer.StatusConnectFailed, err)
	}
}

func (c *Client) wireGame(g *peer.Peer) {
	for _, s := range allStatuses {
		g.OnStatus(s, func(s peer.Status) { c.onGameStatus(g, s) })
	}
	g.OnResponse(OpAuthenticate, func(r *peer.Response) { c.onGameAuthenticate(g, r) })
	c.session.Attach(g)
	g.SetHooks(peer.Hooks{
		ResponseObserver: func(r *peer.Response) { c.observe("game", r) },
		UnhandledEvent:   c.session.HandleEvent,
		ProtocolError:    c.onProtocolError,
	})
}

// onGameStatus projects game peer status onto the workflow state.
func (c *Client) onGameStatus(g *peer.Peer, s peer.Status) {
	switch s {
	case peer.StatusConnecting:
	case peer.StatusConnect:
		c.mu.Lock()
		current := c.game == g
		secret := c.secret
		c.mu.Unlock()
		if current {
			c.authenticate(g, secret)
		}
	default:
		c.gameLost(g, s, nil)
	}
}

// gameLost tears down the game connection g. With the master still connected
// the client returns to the lobby; otherwise it ends up Disconnected (clean
// close) or Error (failure), reconnecting to the master if LeaveRoom asked.
func (c *Client) gameLost(g *peer.Peer, s peer.Status, cause error) {
	c.mu.Lock()
	if c.game != g {
		c.mu.Unlock()
		return
	}
	wasJoined := c.state == StateJoined
	c.game = nil
	c.request = nil
	c.session.Detach()
	c.session.Reset()
	c.room.info.PlayerCount = 0

	failure := cause != nil || s != peer.StatusDisconnect
	masterAlive := c.master != nil && c.master.IsConnected()
	reconnect := false
	switch {
	case masterAlive && c.state != StateDisconnecting:
		if c.state != StateJoinedLobby {
			c.mustTransitionLocked(StateJoinedLobby)
		}
	case failure && c.state != StateDisconnecting:
		c.mustTransitionLocked(StateError)
	default:
		if CanTransition(c.state, StateDisconnected) {
			c.mustTransitionLocked(StateDisconnected)
		}
		reconnect = c.reconnectPending
	}
	c.reconnectPending = false

	if failure {
		if cause == nil {
			cause = &PeerError{Peer: "game", Status: s}
		}
		c.reportLocked(cause)
	}
	if leave := c.callbacks.OnLeaveRoom; wasJoined && leave != nil {
		c.later(leave)
	}
	ctx := c.ctx
	c.unlock()

	if failure {
		g.Disconnect()
	}
	if reconnect {
		c.logger.Info("reconnecting to master")
		if err := c.Connect(ctx); err != nil {
			c.logger.Error("reconnect failed", "error", err)
		}
	}
}

func (c *Client) onGameAuthenticate(g *peer.Peer, resp *peer.Response) {
	c.mu.Lock()
	req := c.request
	if c.game != g || req == nil {
		c.mu.Unlock()
		return
	}
	if !resp.OK() {
		c.mu.Unlock()
		c.gameLost(g, peer.StatusDisconnect, operationError("game", resp))
		return
	}
	if !c.mustTransitionLocked(StateConnectedToGame) {
		c.unlock()
		return
	}

	actorProps := c.session.LocalActor().Properties()
	params := protocol.Params{}.Add(lite.KeyRoomName, req.room)
	if req.gameOp == OpCreateGame {
		params = params.Add(lite.KeyGameProperties, c.room.info.wireProps())
	}
	params = params.
		AddIf(len(actorProps) > 0, lite.KeyActorProperties, actorProps).
		Add(lite.KeyBroadcast, true)
	gameOp, room, ctx := req.gameOp, req.room, c.ctx
	c.unlock()

	err := c.session.JoinWith(gameOp, room, params)
	c.tracing.operation(ctx, "game", gameOp, err)
	if err != nil {
		c.gameLost(g, peer.StatusDisconnect, err)
	}
}

// sessionCallbacks forwards room/actor notifications and keeps the current
// Room in step with the session.
func (c *Client) sessionCallbacks() lite.Callbacks {
	return lite.Callbacks{
		OnJoined: func(name string, _ *lite.Actor) {
			c.mu.Lock()
			if c.request == nil {
				c.mu.Unlock()
				return
			}
			c.request = nil
			c.room.info.Name = name
			c.room.info.merge(c.session.RoomProperties())
			c.room.info.PlayerCount = c.session.ActorCount()
			if c.mustTransitionLocked(StateJoined) {
				room := c.room
				if cb := c.callbacks.OnJoinRoom; cb != nil {
					c.later(func() { cb(room) })
				}
			}
			c.unlock()
		},
		OnJoinFailed: func(resp *peer.Response) {
			c.mu.Lock()
			g := c.game
			c.mu.Unlock()
			if g != nil {
				c.gameLost(g, peer.StatusDisconnect, operationError("game", resp))
			}
		},
		OnActorJoin: func(a *lite.Actor) {
			c.mu.Lock()
			c.room.info.PlayerCount = c.session.ActorCount()
			if cb := c.callbacks.OnActorJoin; cb != nil {
				c.later(func() { cb(a) })
			}
			c.unlock()
		},
		OnActorLeave: func(a *lite.Actor) {
			c.mu.Lock()
			c.room.info.PlayerCount = c.session.ActorCount()
			if cb := c.callbacks.OnActorLeave; cb != nil {
				c.later(func() { cb(a) })
			}
			c.unlock()
		},
		OnActorPropertiesChange: func(a *lite.Actor) {
			c.mu.Lock()
			cb := c.callbacks.OnActorPropertiesChange
			c.mu.Unlock()
			if cb != nil {
				cb(a)
			}
		},
		OnRoomPropertiesChange: func(changes map[string]any) {
			c.mu.Lock()
			c.room.info.merge(changes)
			room := c.room
			if cb := c.callbacks.OnRoomPropertiesChange; cb != nil {
				c.later(func() { cb(room) })
			}
			c.unlock()
		},
		OnEvent: func(code, sender int, data any) {
			c.mu.Lock()
			cb := c.callbacks.OnEvent
			c.mu.Unlock()
			if cb != nil {
				cb(code, sender, data)
			}
		},
		OnOperationError: func(resp *peer.Response) {
			c.mu.Lock()
			c.reportLocked(operationError("game", resp))
			c.unlock()
		},
	}
}
