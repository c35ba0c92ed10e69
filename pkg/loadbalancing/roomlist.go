package loadbalancing

import (
	"slices"
	"strings"
)

// RoomListChange is the outcome of applying an incremental room-list update.
type RoomListChange struct {
	Rooms   []*RoomInfo // resulting list
	Updated []*RoomInfo
	Added   []*RoomInfo
	Removed []*RoomInfo
}

// roomsFromList builds a room list from a full game-list payload: room name to
// wire property map. Rooms flagged removed are dropped.
func roomsFromList(list map[string]any) []*RoomInfo {
	rooms := make([]*RoomInfo, 0, len(list))
	for _, name := range sortedKeys(list) {
		props, _ := list[name].(map[string]any)
		r := newRoomInfo(name)
		r.merge(props)
		if !r.Removed {
			rooms = append(rooms, r)
		}
	}
	return rooms
}

// applyRoomListUpdate reconciles current with an incremental update.
//
// Entries are matched by name. Matched entries are merged in place and
// reported as updated, or as removed when the update flags them removed.
// Unmatched entries are added unless flagged removed. Removed rooms are
// filtered out of the result. Update entries are processed in name order.
func applyRoomListUpdate(current []*RoomInfo, update map[string]any) RoomListChange {
	var change RoomListChange
	working := slices.Clone(current)

	for _, name := range sortedKeys(update) {
		props, _ := update[name].(map[string]any)

		idx := slices.IndexFunc(working, func(r *RoomInfo) bool { return r.Name == name })
		if idx < 0 {
			r := newRoomInfo(name)
			r.merge(props)
			if r.Removed {
				continue
			}
			working = append(working, r)
			change.Added = append(change.Added, r)
			continue
		}

		r := working[idx]
		r.merge(props)
		if r.Removed {
			change.Removed = append(change.Removed, r)
		} else {
			change.Updated = append(change.Updated, r)
		}
	}

	change.Rooms = slices.DeleteFunc(working, func(r *RoomInfo) bool { return r.Removed })
	return change
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, strings.Compare)
	return keys
}

// cloneRooms copies rooms for delivery outside the client lock.
func cloneRooms(rooms []*RoomInfo) []RoomInfo {
	if len(rooms) == 0 {
		return nil
	}
	out := make([]RoomInfo, len(rooms))
	for i, r := range rooms {
		out[i] = r.Clone()
	}
	return out
}
