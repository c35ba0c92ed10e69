package lite

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"sync"

	"github.com/vango-dev/arena/pkg/dispatch"
	"github.com/vango-dev/arena/pkg/peer"
	"github.com/vango-dev/arena/pkg/protocol"
)

// Operator is the peer capability a Session needs. *peer.Peer implements it.
type Operator interface {
	SendOperation(code int, params protocol.Params) error
	OnEvent(code int, fn peer.EventHandler) dispatch.ID
	OnResponse(code int, fn peer.ResponseHandler) dispatch.ID
	RemoveListener(id dispatch.ID) bool
	IsConnected() bool
}

// Callbacks are invoked on the attached peer's executor, never while the
// session lock is held. Any may be nil.
type Callbacks struct {
	// OnJoined fires after a successful join response.
	OnJoined func(room string, local *Actor)

	// OnJoinFailed fires for a join response with an error code.
	OnJoinFailed func(resp *peer.Response)

	// OnActorJoin fires when a remote actor enters the room.
	OnActorJoin func(a *Actor)

	// OnActorLeave fires when a remote actor leaves the room.
	OnActorLeave func(a *Actor)

	// OnActorPropertiesChange fires after an actor's properties changed remotely.
	OnActorPropertiesChange func(a *Actor)

	// OnRoomPropertiesChange fires after the room's properties changed remotely
	// with the changed keys. A nil value means the key was removed.
	OnRoomPropertiesChange func(changes map[string]any)

	// OnEvent fires for custom events raised by actors.
	OnEvent func(code int, sender int, data any)

	// OnLeft fires after a successful leave response.
	OnLeft func()

	// OnOperationError fires for any other session operation that failed.
	OnOperationError func(resp *peer.Response)
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithCallbacks sets the session callbacks.
func WithCallbacks(cb Callbacks) Option {
	return func(s *Session) {
		s.callbacks = cb
	}
}

// Session implements the room/actor protocol on top of an Operator.
//
// A Session outlives individual rooms and peers: it owns the local actor, which
// is kept across rooms with its number reset, and the table of remote actors,
// which is rebuilt from each join response.
type Session struct {
	logger *slog.Logger

	mu        sync.Mutex
	callbacks Callbacks
	op        Operator
	listeners []dispatch.ID
	joinCodes map[int]bool

	local     *Actor
	actors    map[int]*Actor
	roomName  string
	roomProps map[string]any
	joining   bool
	joinCode  int
	joined    bool
}

// New creates a detached session.
func New(opts ...Option) *Session {
	s := &Session{
		logger:    slog.Default(),
		actors:    map[int]*Actor{},
		roomProps: map[string]any{},
		joinCodes: map[int]bool{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "lite")
	s.local = newActor(s, -1, true)
	return s
}

// SetCallbacks replaces the session callbacks.
func (s *Session) SetCallbacks(cb Callbacks) {
	s.mu.Lock()
	s.callbacks = cb
	s.mu.Unlock()
}

// Attach binds the session to op and registers the protocol listeners.
// A previously attached operator is detached first.
func (s *Session) Attach(op Operator) {
	s.Detach()

	ids := []dispatch.ID{
		op.OnEvent(EvJoin, s.handleJoinEvent),
		op.OnEvent(EvLeave, s.handleLeaveEvent),
		op.OnEvent(EvPropertiesChanged, s.handlePropertiesChanged),
		op.OnResponse(OpLeave, s.handleLeaveResponse),
		op.OnResponse(OpGetProperties, s.handleGetPropertiesResponse),
		op.OnResponse(OpSetProperties, s.handleErrorOnly),
		op.OnResponse(OpRaiseEvent, s.handleErrorOnly),
		op.OnResponse(OpChangeGroups, s.handleErrorOnly),
	}

	s.mu.Lock()
	s.op = op
	s.listeners = ids
	s.joinCodes = map[int]bool{}
	s.mu.Unlock()
}

// Detach removes the session's listeners from the attached operator. Room
// membership flags are cleared; the actor table is kept until Reset.
func (s *Session) Detach() {
	s.mu.Lock()
	op := s.op
	ids := s.listeners
	s.op = nil
	s.listeners = nil
	s.joinCodes = map[int]bool{}
	s.joined = false
	s.joining = false
	s.mu.Unlock()

	if op == nil {
		return
	}
	for _, id := range ids {
		op.RemoveListener(id)
	}
}

// HandleEvent processes an event with no registered listener as a custom
// event. Wire it to the peer's UnhandledEvent hook.
func (s *Session) HandleEvent(ev *peer.Event) {
	sender := ev.Values.IntOr(KeyActorNr, -1)
	data := ev.Values[KeyData]

	s.mu.Lock()
	cb := s.callbacks.OnEvent
	s.mu.Unlock()

	if cb != nil {
		cb(ev.Code, sender, data)
	}
}

// Reset clears the room and every remote actor, keeping only the local actor
// with its number reset to -1.
func (s *Session) Reset() {
	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()
}

func (s *Session) resetLocked() {
	s.actors = map[int]*Actor{}
	s.local.nr = -1
	s.roomName = ""
	s.roomProps = map[string]any{}
	s.joined = false
	s.joining = false
}

// =============================================================================
// Accessors
// =============================================================================

// LocalActor returns the session's own actor.
func (s *Session) LocalActor() *Actor {
	return s.local
}

// Actor returns the actor with number nr, including the local actor.
func (s *Session) Actor(nr int) (*Actor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.actorLocked(nr)
	return a, a != nil
}

func (s *Session) actorLocked(nr int) *Actor {
	if nr == s.local.nr && nr >= 0 {
		return s.local
	}
	return s.actors[nr]
}

// Actors returns every actor in the room ordered by number, local included.
func (s *Session) Actors() []*Actor {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Actor, 0, len(s.actors)+1)
	out = append(out, s.local)
	for _, a := range s.actors {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b *Actor) int { return a.nr - b.nr })
	return out
}

// RemoteActors returns the actors other than the local one, ordered by number.
func (s *Session) RemoteActors() []*Actor {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Actor, 0, len(s.actors))
	for _, a := range s.actors {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b *Actor) int { return a.nr - b.nr })
	return out
}

// ActorCount returns the number of actors in the table, local included.
func (s *Session) ActorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.actors) + 1
}

// RoomName returns the joined or joining room.
func (s *Session) RoomName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomName
}

// RoomProperties returns a copy of the room properties.
func (s *Session) RoomProperties() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.roomProps)
}

// IsJoined reports whether a join response has been received.
func (s *Session) IsJoined() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joined
}

// IsJoining reports whether a join request awaits its response.
func (s *Session) IsJoining() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joining
}

// =============================================================================
// Operations
// =============================================================================

// Join requests to join (or create) roomName. When actorProps is nil the local
// actor's current properties are sent.
func (s *Session) Join(roomName string, roomProps, actorProps map[string]any, broadcast bool) error {
	if actorProps == nil {
		actorProps = s.local.Properties()
	}
	params := protocol.Params{}.
		Add(KeyGameID, roomName).
		AddIf(len(roomProps) > 0, KeyGameProperties, roomProps).
		AddIf(len(actorProps) > 0, KeyActorProperties, actorProps).
		AddIf(broadcast, KeyBroadcast, true)
	return s.JoinWith(OpJoin, roomName, params)
}

// JoinWith sends a join-like operation whose response is handled as a join
// response: it seeds the local actor number and the actor table.
func (s *Session) JoinWith(code int, roomName string, params protocol.Params) error {
	s.mu.Lock()
	op := s.op
	switch {
	case op == nil:
		s.mu.Unlock()
		return ErrNotAttached
	case !op.IsConnected():
		s.mu.Unlock()
		return ErrNotConnected
	case s.joined || s.joining:
		s.mu.Unlock()
		return ErrAlreadyJoined
	case roomName == "":
		s.mu.Unlock()
		return ErrMissingRoomName
	}

	if !s.joinCodes[code] {
		s.joinCodes[code] = true
		s.listeners = append(s.listeners, op.OnResponse(code, s.handleJoinResponse))
	}
	s.joining = true
	s.joinCode = code
	s.roomName = roomName
	s.mu.Unlock()

	if err := op.SendOperation(code, params); err != nil {
		s.mu.Lock()
		s.joining = false
		s.roomName = ""
		s.mu.Unlock()
		return err
	}
	s.logger.Debug("join requested", "room", roomName, "op", code)
	return nil
}

// Leave requests to leave the room.
func (s *Session) Leave() error {
	op, err := s.joinedOperator()
	if err != nil {
		return err
	}
	return op.SendOperation(OpLeave, nil)
}

// EventOption configures RaiseEvent.
type EventOption func(protocol.Params) protocol.Params

// WithCache sets the server-side cache operation.
func WithCache(c CacheOperation) EventOption {
	return func(p protocol.Params) protocol.Params {
		return p.Add(KeyCache, int(c))
	}
}

// WithReceivers sets the receiver group.
func WithReceivers(g ReceiverGroup) EventOption {
	return func(p protocol.Params) protocol.Params {
		return p.Add(KeyReceiverGroup, int(g))
	}
}

// WithInterestGroup limits delivery to an interest group.
func WithInterestGroup(group int) EventOption {
	return func(p protocol.Params) protocol.Params {
		return p.Add(KeyGroup, group)
	}
}

// WithTargets limits delivery to the given actors.
func WithTargets(actorNrs ...int) EventOption {
	return func(p protocol.Params) protocol.Params {
		return p.Add(KeyActorList, actorNrs)
	}
}

// RaiseEvent sends a custom event to the room.
func (s *Session) RaiseEvent(code int, data any, opts ...EventOption) error {
	op, err := s.joinedOperator()
	if err != nil {
		return err
	}
	if data == nil {
		return ErrMissingData
	}
	params := protocol.Params{}.Add(KeyCode, code).Add(KeyData, data)
	for _, opt := range opts {
		params = opt(params)
	}
	return op.SendOperation(OpRaiseEvent, params)
}

// SetActorProperties sets properties of actor nr.
func (s *Session) SetActorProperties(nr int, props map[string]any, broadcast bool) error {
	op, err := s.joinedOperator()
	if err != nil {
		return err
	}
	params := protocol.Params{}.
		Add(KeyActorNr, nr).
		Add(KeyProperties, props).
		Add(KeyBroadcast, broadcast)
	return op.SendOperation(OpSetProperties, params)
}

// GetActorProperties requests actor properties. Nil keys request every
// property; nil actorNrs request every actor.
func (s *Session) GetActorProperties(keys []string, actorNrs []int) error {
	op, err := s.joinedOperator()
	if err != nil {
		return err
	}
	params := protocol.Params{}.
		Add(KeyProperties, int(PropertyTypeActor)).
		Add(KeyActorProperties, keyList(keys)).
		AddIf(actorNrs != nil, KeyActorList, actorNrs)
	return op.SendOperation(OpGetProperties, params)
}

// SetRoomProperties sets room properties.
func (s *Session) SetRoomProperties(props map[string]any, broadcast bool) error {
	op, err := s.joinedOperator()
	if err != nil {
		return err
	}
	params := protocol.Params{}.
		Add(KeyProperties, props).
		Add(KeyBroadcast, broadcast)
	return op.SendOperation(OpSetProperties, params)
}

// GetRoomProperties requests room properties. Nil keys request every property.
func (s *Session) GetRoomProperties(keys []string) error {
	op, err := s.joinedOperator()
	if err != nil {
		return err
	}
	params := protocol.Params{}.
		Add(KeyProperties, int(PropertyTypeGame)).
		Add(KeyGameProperties, keyList(keys))
	return op.SendOperation(OpGetProperties, params)
}

// ChangeGroups changes the interest groups the local actor receives events for.
func (s *Session) ChangeGroups(remove, add []int) error {
	op, err := s.joinedOperator()
	if err != nil {
		return err
	}
	params := protocol.Params{}.
		AddIf(remove != nil, KeyRemove, remove).
		AddIf(add != nil, KeyAdd, add)
	return op.SendOperation(OpChangeGroups, params)
}

// keyList is sent as JSON null when no keys are given.
func keyList(keys []string) any {
	if keys == nil {
		return nil
	}
	return keys
}

func (s *Session) joinedOperator() (Operator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.op == nil {
		return nil, ErrNotAttached
	}
	if !s.joined {
		return nil, ErrNotJoined
	}
	return s.op, nil
}

// =============================================================================
// Response and event handlers
// =============================================================================

func (s *Session) handleJoinResponse(resp *peer.Response) {
	s.mu.Lock()
	if !s.joining || s.joinCode != resp.Code {
		s.mu.Unlock()
		s.logger.Debug("ignoring join response", "op", resp.Code)
		return
	}
	s.joining = false

	if !resp.OK() {
		s.roomName = ""
		cb := s.callbacks.OnJoinFailed
		s.mu.Unlock()
		s.logger.Warn("join failed", "op", resp.Code, "err_code", resp.ErrCode, "msg", resp.ErrMsg)
		if cb != nil {
			cb(resp)
		}
		return
	}

	if name, ok := resp.Values.String(KeyGameID); ok && name != "" {
		s.roomName = name
	}
	s.local.nr = resp.Values.IntOr(KeyActorNr, -1)
	s.actors = map[int]*Actor{}
	for _, nr := range resp.Values.Ints(KeyActorList) {
		if nr != s.local.nr {
			s.actors[nr] = newActor(s, nr, false)
		}
	}
	if all, ok := resp.Values.Map(KeyActorProperties); ok {
		s.applyActorPropsLocked(all)
	}
	if props, ok := resp.Values.Map(KeyGameProperties); ok {
		mergeProps(s.roomProps, props)
	}
	s.joined = true
	room := s.roomName
	remote := len(s.actors)
	cb := s.callbacks.OnJoined
	s.mu.Unlock()

	s.logger.Info("joined room", "room", room, "actor_nr", s.local.Nr(), "remote_actors", remote)
	if cb != nil {
		cb(room, s.local)
	}
}

// applyActorPropsLocked merges a map of actor number (as string) to properties.
// Unknown actors are ignored. Returns the actors that changed.
func (s *Session) applyActorPropsLocked(all map[string]any) []*Actor {
	var changed []*Actor
	for key, raw := range all {
		nr, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		props, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		a := s.actorLocked(nr)
		if a == nil {
			continue
		}
		mergeProps(a.props, props)
		changed = append(changed, a)
	}
	return changed
}

func (s *Session) handleJoinEvent(ev *peer.Event) {
	nr, ok := ev.Values.Int(KeyActorNr)
	if !ok {
		return
	}

	s.mu.Lock()
	if !s.joined || nr == s.local.nr {
		s.mu.Unlock()
		return
	}
	a, exists := s.actors[nr]
	if !exists {
		a = newActor(s, nr, false)
		s.actors[nr] = a
	}
	if props, ok := ev.Values.Map(KeyActorProperties); ok {
		mergeProps(a.props, props)
	}
	cb := s.callbacks.OnActorJoin
	s.mu.Unlock()

	if exists {
		return
	}
	s.logger.Debug("actor joined", "actor_nr", nr)
	if cb != nil {
		cb(a)
	}
}

func (s *Session) handleLeaveEvent(ev *peer.Event) {
	nr, ok := ev.Values.Int(KeyActorNr)
	if !ok {
		return
	}

	s.mu.Lock()
	a, exists := s.actors[nr]
	if exists {
		delete(s.actors, nr)
	}
	cb := s.callbacks.OnActorLeave
	s.mu.Unlock()

	if !exists {
		return
	}
	s.logger.Debug("actor left", "actor_nr", nr)
	if cb != nil {
		cb(a)
	}
}

func (s *Session) handlePropertiesChanged(ev *peer.Event) {
	props, _ := ev.Values.Map(KeyProperties)

	if target, ok := ev.Values.Int(KeyTargetActorNr); ok {
		s.mu.Lock()
		a := s.actorLocked(target)
		if a == nil {
			s.mu.Unlock()
			s.logger.Debug("properties for unknown actor", "actor_nr", target)
			return
		}
		mergeProps(a.props, props)
		cb := s.callbacks.OnActorPropertiesChange
		s.mu.Unlock()

		if cb != nil {
			cb(a)
		}
		return
	}

	s.mu.Lock()
	mergeProps(s.roomProps, props)
	cb := s.callbacks.OnRoomPropertiesChange
	s.mu.Unlock()

	if cb != nil {
		cb(maps.Clone(props))
	}
}

func (s *Session) handleLeaveResponse(resp *peer.Response) {
	if !resp.OK() {
		s.handleErrorOnly(resp)
		return
	}

	s.mu.Lock()
	room := s.roomName
	s.resetLocked()
	cb := s.callbacks.OnLeft
	s.mu.Unlock()

	s.logger.Info("left room", "room", room)
	if cb != nil {
		cb()
	}
}

func (s *Session) handleGetPropertiesResponse(resp *peer.Response) {
	if !resp.OK() {
		s.handleErrorOnly(resp)
		return
	}

	s.mu.Lock()
	var changed []*Actor
	if all, ok := resp.Values.Map(KeyActorProperties); ok {
		changed = s.applyActorPropsLocked(all)
	}
	roomChanges, hasRoom := resp.Values.Map(KeyGameProperties)
	if hasRoom {
		mergeProps(s.roomProps, roomChanges)
	}
	actorCb := s.callbacks.OnActorPropertiesChange
	roomCb := s.callbacks.OnRoomPropertiesChange
	s.mu.Unlock()

	if actorCb != nil {
		slices.SortFunc(changed, func(a, b *Actor) int { return a.Nr() - b.Nr() })
		for _, a := range changed {
			actorCb(a)
		}
	}
	if roomCb != nil && hasRoom {
		roomCb(maps.Clone(roomChanges))
	}
}

func (s *Session) handleErrorOnly(resp *peer.Response) {
	if resp.OK() {
		return
	}
	s.mu.Lock()
	cb := s.callbacks.OnOperationError
	s.mu.Unlock()

	s.logger.Warn("operation failed", "op", resp.Code, "err_code", resp.ErrCode, "msg", resp.ErrMsg)
	if cb != nil {
		cb(resp)
	}
}

// String describes the session state for logs.
func (s *Session) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("lite session room=%q joined=%t actors=%d", s.roomName, s.joined, len(s.actors)+1)
}
