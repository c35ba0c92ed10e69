package lbtest

import (
	"maps"
	"reflect"
	"slices"
	"strconv"

	"github.com/vango-dev/arena/pkg/loadbalancing"
	"github.com/vango-dev/arena/pkg/protocol"
)

var (
	keyMaxPlayers  = strconv.Itoa(loadbalancing.RoomMaxPlayers)
	keyIsVisible   = strconv.Itoa(loadbalancing.RoomIsVisible)
	keyIsOpen      = strconv.Itoa(loadbalancing.RoomIsOpen)
	keyPlayerCount = strconv.Itoa(loadbalancing.RoomPlayerCount)
	keyRemoved     = strconv.Itoa(loadbalancing.RoomRemoved)
	keyListed      = strconv.Itoa(loadbalancing.RoomPropsListedInLobby)
)

// room is a game room. Every field is guarded by Server.mu.
type room struct {
	name       string
	props      map[string]any // wire form, well-known keys included
	actors     map[int]*conn
	actorProps map[int]map[string]any
	nextNr     int
}

func newRoom(name string, props map[string]any) *room {
	r := &room{
		name:       name,
		props:      map[string]any{keyIsVisible: true, keyIsOpen: true},
		actors:     map[int]*conn{},
		actorProps: map[int]map[string]any{},
	}
	mergeProps(r.props, props)
	delete(r.props, keyPlayerCount)
	delete(r.props, keyRemoved)
	return r
}

func (r *room) isOpen() bool {
	open, ok := r.props[keyIsOpen].(bool)
	return !ok || open
}

func (r *room) isVisible() bool {
	visible, ok := r.props[keyIsVisible].(bool)
	return !ok || visible
}

func (r *room) isFull() bool {
	limit, ok := protocol.ToInt(r.props[keyMaxPlayers])
	return ok && limit > 0 && len(r.actors) >= limit
}

// matches reports whether every expected property equals the room's.
func (r *room) matches(expected map[string]any) bool {
	for k, want := range expected {
		have, ok := r.props[k]
		if !ok {
			return false
		}
		if wantN, ok := protocol.ToInt(want); ok {
			if haveN, ok := protocol.ToInt(have); ok && haveN == wantN {
				continue
			}
			return false
		}
		if !reflect.DeepEqual(have, want) {
			return false
		}
	}
	return true
}

func (r *room) actorNrs() []int {
	return slices.Sorted(maps.Keys(r.actors))
}

func (r *room) conns(except int) []*conn {
	out := make([]*conn, 0, len(r.actors))
	for _, nr := range r.actorNrs() {
		if nr != except {
			out = append(out, r.actors[nr])
		}
	}
	return out
}

// allActorProps renders actor properties keyed by actor number.
func (r *room) allActorProps(filter []int) map[string]any {
	out := map[string]any{}
	for nr, props := range r.actorProps {
		if len(filter) > 0 && !slices.Contains(filter, nr) {
			continue
		}
		out[strconv.Itoa(nr)] = maps.Clone(props)
	}
	return out
}

// listEntry renders the room as a lobby list entry: the well-known keys plus
// the custom keys listed in the lobby.
func (r *room) listEntry(removed bool) map[string]any {
	if removed || !r.isVisible() {
		return map[string]any{keyRemoved: true}
	}
	entry := map[string]any{
		keyIsVisible:   true,
		keyIsOpen:      r.isOpen(),
		keyPlayerCount: len(r.actors),
	}
	if v, ok := r.props[keyMaxPlayers]; ok {
		entry[keyMaxPlayers] = v
	}
	listed, _ := r.props[keyListed].([]any)
	for _, item := range listed {
		if k, ok := item.(string); ok {
			if v, ok := r.props[k]; ok {
				entry[k] = v
			}
		}
	}
	return entry
}

func mergeProps(dst, changes map[string]any) {
	for k, v := range changes {
		if v == nil {
			delete(dst, k)
		} else {
			dst[k] = v
		}
	}
}

func sortedRoomNames(rooms map[string]*room) []string {
	return slices.Sorted(maps.Keys(rooms))
}
