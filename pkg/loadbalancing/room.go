package loadbalancing

import (
	"maps"
	"slices"

	"github.com/vango-dev/arena/pkg/protocol"
)

// RoomInfo describes a room as listed in the lobby or joined.
type RoomInfo struct {
	Name               string
	Address            string
	MaxPlayers         int
	IsVisible          bool
	IsOpen             bool
	PlayerCount        int
	Removed            bool
	Properties         map[string]any // custom properties
	PropsListedInLobby []string
}

func newRoomInfo(name string) *RoomInfo {
	return &RoomInfo{
		Name:       name,
		IsVisible:  true,
		IsOpen:     true,
		Properties: map[string]any{},
	}
}

// Clone returns a deep copy.
func (r *RoomInfo) Clone() RoomInfo {
	c := *r
	c.Properties = maps.Clone(r.Properties)
	if c.Properties == nil {
		c.Properties = map[string]any{}
	}
	c.PropsListedInLobby = slices.Clone(r.PropsListedInLobby)
	return c
}

// merge applies a property map in wire form: well-known numeric keys update
// the typed fields and every other key is a custom property. A nil custom
// value removes the key.
func (r *RoomInfo) merge(props map[string]any) {
	for k, v := range props {
		switch k {
		case propKey(RoomMaxPlayers):
			if n, ok := protocol.ToInt(v); ok {
				r.MaxPlayers = n
			}
		case propKey(RoomIsVisible):
			if b, ok := v.(bool); ok {
				r.IsVisible = b
			}
		case propKey(RoomIsOpen):
			if b, ok := v.(bool); ok {
				r.IsOpen = b
			}
		case propKey(RoomPlayerCount):
			if n, ok := protocol.ToInt(v); ok {
				r.PlayerCount = n
			}
		case propKey(RoomRemoved):
			if b, ok := v.(bool); ok {
				r.Removed = b
			}
		case propKey(RoomPropsListedInLobby):
			r.PropsListedInLobby = stringList(v)
		default:
			if v == nil {
				delete(r.Properties, k)
			} else {
				r.Properties[k] = v
			}
		}
	}
}

// wireProps renders the room as the property map sent with create requests.
func (r *RoomInfo) wireProps() map[string]any {
	props := maps.Clone(r.Properties)
	if props == nil {
		props = map[string]any{}
	}
	if r.MaxPlayers > 0 {
		props[propKey(RoomMaxPlayers)] = r.MaxPlayers
	}
	props[propKey(RoomIsVisible)] = r.IsVisible
	props[propKey(RoomIsOpen)] = r.IsOpen
	if len(r.PropsListedInLobby) > 0 {
		props[propKey(RoomPropsListedInLobby)] = r.PropsListedInLobby
	}
	return props
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return slices.Clone(list)
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// RoomOptions configures a room created with CreateRoom.
type RoomOptions struct {
	MaxPlayers         int // 0 for no limit
	Hidden             bool
	Closed             bool
	Properties         map[string]any
	PropsListedInLobby []string
}

// Room is the client's current room: the staging room before a join and the
// joined room afterwards. Setters apply locally at once and are sent to the
// server when joined; a rejected update is not rolled back.
type Room struct {
	client *Client
	info   *RoomInfo
}

// Info returns a copy of the room state.
func (r *Room) Info() RoomInfo {
	r.client.mu.Lock()
	defer r.client.mu.Unlock()
	return r.info.Clone()
}

// Name returns the room name.
func (r *Room) Name() string {
	r.client.mu.Lock()
	defer r.client.mu.Unlock()
	return r.info.Name
}

// PlayerCount returns the number of actors in the room.
func (r *Room) PlayerCount() int {
	r.client.mu.Lock()
	defer r.client.mu.Unlock()
	return r.info.PlayerCount
}

// Property returns one custom property.
func (r *Room) Property(key string) (any, bool) {
	r.client.mu.Lock()
	defer r.client.mu.Unlock()
	v, ok := r.info.Properties[key]
	return v, ok
}

// SetCustomProperty sets a custom property.
func (r *Room) SetCustomProperty(key string, value any) error {
	return r.set(key, value, func(info *RoomInfo) {
		if value == nil {
			delete(info.Properties, key)
		} else {
			info.Properties[key] = value
		}
	})
}

// SetMaxPlayers sets the player limit.
func (r *Room) SetMaxPlayers(n int) error {
	return r.set(propKey(RoomMaxPlayers), n, func(info *RoomInfo) { info.MaxPlayers = n })
}

// SetIsOpen opens or closes the room for joining.
func (r *Room) SetIsOpen(open bool) error {
	return r.set(propKey(RoomIsOpen), open, func(info *RoomInfo) { info.IsOpen = open })
}

// SetIsVisible shows or hides the room in the lobby.
func (r *Room) SetIsVisible(visible bool) error {
	return r.set(propKey(RoomIsVisible), visible, func(info *RoomInfo) { info.IsVisible = visible })
}

// SetPropsListedInLobby sets which custom properties appear in the lobby list.
func (r *Room) SetPropsListedInLobby(keys []string) error {
	keys = slices.Clone(keys)
	return r.set(propKey(RoomPropsListedInLobby), keys, func(info *RoomInfo) { info.PropsListedInLobby = keys })
}

func (r *Room) set(key string, value any, apply func(*RoomInfo)) error {
	c := r.client
	c.mu.Lock()
	apply(r.info)
	joined := c.state == StateJoined && c.room == r
	c.mu.Unlock()

	if !joined {
		return nil
	}
	return c.session.SetRoomProperties(map[string]any{key: value}, true)
}
