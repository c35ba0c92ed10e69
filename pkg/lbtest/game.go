package lbtest

import (
	"maps"
	"slices"

	"github.com/vango-dev/arena/pkg/lite"
	"github.com/vango-dev/arena/pkg/loadbalancing"
	"github.com/vango-dev/arena/pkg/protocol"
)

func (s *Server) handleGame(c *conn, req *protocol.Request) {
	switch req.Code {
	case loadbalancing.OpCreateGame, loadbalancing.OpJoinGame, lite.OpJoin:
		s.joinRoom(c, req)
	case lite.OpLeave:
		s.leaveRoom(c)
		c.write(response(req.Code, nil))
	case lite.OpRaiseEvent:
		s.raiseEvent(c, req)
	case lite.OpSetProperties:
		s.setProperties(c, req)
	case lite.OpGetProperties:
		s.getProperties(c, req)
	case lite.OpChangeGroups:
		c.write(response(req.Code, nil))
	default:
		c.write(failure(req.Code, ErrCodeInvalidOperation, "unknown operation"))
	}
}

// joinRoom handles create, join and the plain Lite join (join or create).
func (s *Server) joinRoom(c *conn, req *protocol.Request) {
	vals := req.Values
	name, _ := vals.String(lite.KeyRoomName)
	if name == "" {
		c.write(failure(req.Code, ErrCodeInvalidOperation, "missing room name"))
		return
	}

	s.mu.Lock()
	if c.room != nil {
		s.mu.Unlock()
		c.write(failure(req.Code, ErrCodeOperationNotAllowed, "already joined"))
		return
	}
	r, exists := s.rooms[name]
	switch {
	case req.Code == loadbalancing.OpCreateGame && exists:
		s.mu.Unlock()
		c.write(failure(req.Code, loadbalancing.ErrCodeGameIDExists, "game already exists"))
		return
	case req.Code == loadbalancing.OpJoinGame || exists:
		if errCode, msg := joinable(r, exists); errCode != 0 {
			s.mu.Unlock()
			c.write(failure(req.Code, errCode, msg))
			return
		}
	default:
		props, _ := vals.Map(lite.KeyGameProperties)
		r = newRoom(name, props)
		s.rooms[name] = r
	}

	r.nextNr++
	nr := r.nextNr
	props, _ := vals.Map(lite.KeyActorProperties)
	if props == nil {
		props = map[string]any{}
	}
	r.actors[nr] = c
	r.actorProps[nr] = maps.Clone(props)
	c.room = r
	c.nr = nr

	joined := response(req.Code, protocol.Values{
		lite.KeyRoomName:        name,
		lite.KeyActorNr:         nr,
		lite.KeyActorList:       r.actorNrs(),
		lite.KeyActorProperties: r.allActorProps(nil),
		lite.KeyGameProperties:  maps.Clone(r.props),
	})
	others := r.conns(nr)
	announce := event(lite.EvJoin, protocol.Values{
		lite.KeyActorNr:         nr,
		lite.KeyActorList:       r.actorNrs(),
		lite.KeyActorProperties: maps.Clone(props),
	})
	update, lobby := s.publishLocked(r, false)
	s.mu.Unlock()

	s.logger.Debug("actor joined", "room", name, "actor_nr", nr)
	c.write(joined)
	broadcast(others, announce)
	broadcast(lobby, update)
}

// leaveRoom removes c from its room. An emptied room is removed.
func (s *Server) leaveRoom(c *conn) {
	s.mu.Lock()
	r := c.room
	if r == nil {
		s.mu.Unlock()
		return
	}
	nr := c.nr
	delete(r.actors, nr)
	delete(r.actorProps, nr)
	c.room = nil
	c.nr = -1

	removed := len(r.actors) == 0
	if removed {
		delete(s.rooms, r.name)
	}
	others := r.conns(nr)
	left := event(lite.EvLeave, protocol.Values{
		lite.KeyActorNr:   nr,
		lite.KeyActorList: r.actorNrs(),
	})
	update, lobby := s.publishLocked(r, removed)
	s.mu.Unlock()

	s.logger.Debug("actor left", "room", r.name, "actor_nr", nr)
	broadcast(others, left)
	broadcast(lobby, update)
}

// raiseEvent relays a custom event. Successful raises get no response.
func (s *Server) raiseEvent(c *conn, req *protocol.Request) {
	vals := req.Values
	code := vals.IntOr(lite.KeyCode, 0)

	s.mu.Lock()
	r := c.room
	if r == nil {
		s.mu.Unlock()
		c.write(failure(req.Code, ErrCodeOperationNotAllowed, "not joined"))
		return
	}

	var targets []*conn
	if list := vals.Ints(lite.KeyActorList); len(list) > 0 {
		for _, nr := range list {
			if t, ok := r.actors[nr]; ok {
				targets = append(targets, t)
			}
		}
	} else {
		switch lite.ReceiverGroup(vals.IntOr(lite.KeyReceiverGroup, int(lite.ReceiverOthers))) {
		case lite.ReceiverAll:
			targets = r.conns(-1)
		case lite.ReceiverMaster:
			if nrs := r.actorNrs(); len(nrs) > 0 {
				targets = []*conn{r.actors[nrs[0]]}
			}
		default:
			targets = r.conns(c.nr)
		}
	}
	ev := event(code, protocol.Values{
		lite.KeyActorNr: c.nr,
		lite.KeyData:    vals[lite.KeyData],
	})
	s.mu.Unlock()

	broadcast(targets, ev)
}

// setProperties merges actor or room properties and notifies the other actors
// when broadcast is requested.
func (s *Server) setProperties(c *conn, req *protocol.Request) {
	vals := req.Values
	props, _ := vals.Map(lite.KeyProperties)
	target, hasTarget := vals.Int(lite.KeyActorNr)
	notify, _ := vals.Bool(lite.KeyBroadcast)

	s.mu.Lock()
	r := c.room
	if r == nil {
		s.mu.Unlock()
		c.write(failure(req.Code, ErrCodeOperationNotAllowed, "not joined"))
		return
	}

	changed := protocol.Values{
		lite.KeyActorNr:    c.nr,
		lite.KeyProperties: maps.Clone(props),
	}
	var update string
	var lobby []*conn
	if hasTarget {
		actorProps, ok := r.actorProps[target]
		if !ok {
			s.mu.Unlock()
			c.write(failure(req.Code, ErrCodeInvalidOperation, "unknown actor"))
			return
		}
		mergeProps(actorProps, props)
		changed[lite.KeyTargetActorNr] = target
	} else {
		mergeProps(r.props, props)
		update, lobby = s.publishLocked(r, false)
	}
	others := r.conns(c.nr)
	s.mu.Unlock()

	c.write(response(req.Code, nil))
	if notify {
		broadcast(others, event(lite.EvPropertiesChanged, changed))
	}
	if update != "" {
		broadcast(lobby, update)
	}
}

func (s *Server) getProperties(c *conn, req *protocol.Request) {
	vals := req.Values
	kind := lite.PropertyType(vals.IntOr(lite.KeyProperties, int(lite.PropertyTypeBoth)))

	s.mu.Lock()
	r := c.room
	if r == nil {
		s.mu.Unlock()
		c.write(failure(req.Code, ErrCodeOperationNotAllowed, "not joined"))
		return
	}
	out := protocol.Values{}
	if kind&lite.PropertyTypeGame != 0 {
		out[lite.KeyGameProperties] = filterKeys(r.props, vals[lite.KeyGameProperties])
	}
	if kind&lite.PropertyTypeActor != 0 {
		all := r.allActorProps(vals.Ints(lite.KeyActorList))
		for nr, props := range all {
			all[nr] = filterKeys(props.(map[string]any), vals[lite.KeyActorProperties])
		}
		out[lite.KeyActorProperties] = all
	}
	s.mu.Unlock()

	c.write(response(req.Code, out))
}

// filterKeys returns the entries of props named in keys, or all of them when
// keys is not a list.
func filterKeys(props map[string]any, keys any) map[string]any {
	list, ok := keys.([]any)
	if !ok {
		return maps.Clone(props)
	}
	out := map[string]any{}
	for k, v := range props {
		if slices.Contains(list, any(k)) {
			out[k] = v
		}
	}
	return out
}
