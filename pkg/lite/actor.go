package lite

import (
	"maps"
	"strconv"
)

// Actor is a participant in a room.
//
// Actors are created and updated only by their Session in reaction to server
// responses and events. The session reference is used to issue operations.
type Actor struct {
	session *Session
	nr      int
	local   bool
	props   map[string]any
}

func newActor(s *Session, nr int, local bool) *Actor {
	return &Actor{session: s, nr: nr, local: local, props: map[string]any{}}
}

// Nr returns the server-assigned actor number, -1 before assignment.
func (a *Actor) Nr() int {
	a.session.mu.Lock()
	defer a.session.mu.Unlock()
	return a.nr
}

// IsLocal reports whether this is the session's own actor.
func (a *Actor) IsLocal() bool {
	return a.local
}

// Name returns the display name property.
func (a *Actor) Name() string {
	a.session.mu.Lock()
	defer a.session.mu.Unlock()
	name, _ := a.props[NamePropertyKey].(string)
	return name
}

// Property returns one custom property.
func (a *Actor) Property(key string) (any, bool) {
	a.session.mu.Lock()
	defer a.session.mu.Unlock()
	v, ok := a.props[key]
	return v, ok
}

// Properties returns a copy of the custom properties.
func (a *Actor) Properties() map[string]any {
	a.session.mu.Lock()
	defer a.session.mu.Unlock()
	return maps.Clone(a.props)
}

// SetCustomProperty sets a property locally and, when the session is joined,
// broadcasts it. The local value is kept even if the server later rejects it.
func (a *Actor) SetCustomProperty(key string, value any) error {
	s := a.session
	s.mu.Lock()
	setProp(a.props, key, value)
	joined := s.joined
	nr := a.nr
	s.mu.Unlock()

	if !joined {
		return nil
	}
	return s.SetActorProperties(nr, map[string]any{key: value}, true)
}

// SetName sets the display name property.
func (a *Actor) SetName(name string) error {
	return a.SetCustomProperty(NamePropertyKey, name)
}

func (a *Actor) String() string {
	return "actor " + strconv.Itoa(a.Nr())
}

// mergeProps applies changes to props. A nil value removes the key.
func mergeProps(props map[string]any, changes map[string]any) {
	for k, v := range changes {
		setProp(props, k, v)
	}
}

func setProp(props map[string]any, key string, value any) {
	if value == nil {
		delete(props, key)
		return
	}
	props[key] = value
}
