package lbtest

import (
	"context"
	"fmt"
	"time"

	"github.com/vango-dev/arena/pkg/lite"
	"github.com/vango-dev/arena/pkg/loadbalancing"
	"github.com/vango-dev/arena/pkg/protocol"
)

const verifyTimeout = 5 * time.Second

// authenticate checks an authenticate request. The master issues a secret;
// the game server only accepts secrets the master issued.
func (s *Server) authenticate(c *conn, req *protocol.Request) {
	vals := req.Values
	if s.config.AppID != "" {
		if app, _ := vals.String(loadbalancing.KeyApplicationID); app != s.config.AppID {
			c.write(failure(req.Code, loadbalancing.ErrCodeInvalidAuth, "unknown application"))
			return
		}
	}
	userID, _ := vals.String(loadbalancing.KeyUserID)

	switch {
	case c.game:
		secret, _ := vals.String(loadbalancing.KeySecret)
		s.mu.Lock()
		owner, ok := s.secrets[secret]
		s.mu.Unlock()
		if !ok {
			c.write(failure(req.Code, loadbalancing.ErrCodeInvalidAuth, "invalid secret"))
			return
		}
		userID = owner

	case s.config.Verifier != nil:
		params, _ := vals.String(loadbalancing.KeyClientAuthParams)
		ctx, cancel := context.WithTimeout(context.Background(), verifyTimeout)
		res, err := s.config.Verifier.Verify(ctx, params)
		cancel()
		if err != nil {
			s.logger.Warn("custom auth unavailable", "error", err)
			c.write(failure(req.Code, loadbalancing.ErrCodeCustomAuthFailed, err.Error()))
			return
		}
		if !res.OK() {
			c.write(failure(req.Code, loadbalancing.ErrCodeCustomAuthFailed, res.Message))
			return
		}
		if res.UserID != "" {
			userID = res.UserID
		}
	}

	s.mu.Lock()
	if userID == "" {
		s.users++
		userID = fmt.Sprintf("user-%d", s.users)
	}
	c.authed = true
	c.userID = userID
	out := protocol.Values{loadbalancing.KeyUserID: userID}
	if !c.game {
		secret := fmt.Sprintf("secret-%d-%s", s.sessions, userID)
		s.secrets[secret] = userID
		out[loadbalancing.KeySecret] = secret
	}
	s.mu.Unlock()

	c.write(response(req.Code, out))
}

func (s *Server) handleMaster(c *conn, req *protocol.Request) {
	switch req.Code {
	case loadbalancing.OpJoinLobby:
		s.mu.Lock()
		s.lobby[c] = true
		list := s.gameListLocked()
		stats := s.appStatsLocked()
		s.mu.Unlock()

		c.write(response(req.Code, nil))
		c.write(
			event(loadbalancing.EvGameList, protocol.Values{loadbalancing.KeyGameList: list}),
			event(loadbalancing.EvAppStats, stats),
		)

	case loadbalancing.OpLeaveLobby:
		s.mu.Lock()
		delete(s.lobby, c)
		s.mu.Unlock()
		c.write(response(req.Code, nil))

	case loadbalancing.OpCreateGame:
		name, _ := req.Values.String(lite.KeyRoomName)
		s.mu.Lock()
		if name == "" {
			name = fmt.Sprintf("room-%d-%d", s.sessions, len(s.rooms)+1)
		}
		_, exists := s.rooms[name]
		address := s.config.GameAddress
		s.mu.Unlock()
		if exists {
			c.write(failure(req.Code, loadbalancing.ErrCodeGameIDExists, "game already exists"))
			return
		}
		c.write(response(req.Code, protocol.Values{
			loadbalancing.KeyAddress: address,
			lite.KeyRoomName:         name,
		}))

	case loadbalancing.OpJoinGame:
		name, _ := req.Values.String(lite.KeyRoomName)
		s.mu.Lock()
		r, ok := s.rooms[name]
		errCode, msg := joinable(r, ok)
		address := s.config.GameAddress
		s.mu.Unlock()
		if errCode != 0 {
			c.write(failure(req.Code, errCode, msg))
			return
		}
		c.write(response(req.Code, protocol.Values{
			loadbalancing.KeyAddress: address,
			lite.KeyRoomName:         name,
		}))

	case loadbalancing.OpJoinRandomGame:
		expected, _ := req.Values.Map(lite.KeyGameProperties)
		s.mu.Lock()
		var match string
		for _, name := range sortedRoomNames(s.rooms) {
			r := s.rooms[name]
			if r.isOpen() && r.isVisible() && !r.isFull() && r.matches(expected) {
				match = name
				break
			}
		}
		address := s.config.GameAddress
		s.mu.Unlock()
		if match == "" {
			c.write(failure(req.Code, loadbalancing.ErrCodeNoRandomMatchFound, "no match found"))
			return
		}
		c.write(response(req.Code, protocol.Values{
			loadbalancing.KeyAddress: address,
			lite.KeyRoomName:         match,
		}))

	default:
		c.write(failure(req.Code, ErrCodeInvalidOperation, "unknown operation"))
	}
}

// joinable reports the error code for joining r, or 0.
func joinable(r *room, exists bool) (int, string) {
	switch {
	case !exists:
		return loadbalancing.ErrCodeGameDoesNotExist, "game does not exist"
	case !r.isOpen():
		return loadbalancing.ErrCodeGameClosed, "game closed"
	case r.isFull():
		return loadbalancing.ErrCodeGameFull, "game full"
	default:
		return 0, ""
	}
}

func (s *Server) gameListLocked() map[string]any {
	list := map[string]any{}
	for name, r := range s.rooms {
		if r.isVisible() {
			list[name] = r.listEntry(false)
		}
	}
	return list
}

func (s *Server) appStatsLocked() protocol.Values {
	master := 0
	for c := range s.clients {
		if !c.game {
			master++
		}
	}
	return protocol.Values{
		loadbalancing.KeyPeerCount:       len(s.clients),
		loadbalancing.KeyGameCount:       len(s.rooms),
		loadbalancing.KeyMasterPeerCount: master,
	}
}

// publishLocked returns the lobby update for r and the lobby connections.
func (s *Server) publishLocked(r *room, removed bool) (string, []*conn) {
	update := event(loadbalancing.EvGameListUpdate, protocol.Values{
		loadbalancing.KeyGameList: map[string]any{r.name: r.listEntry(removed)},
	})
	lobby := make([]*conn, 0, len(s.lobby))
	for c := range s.lobby {
		lobby = append(lobby, c)
	}
	return update, lobby
}

// BroadcastAppStats pushes the application counters to every lobby client.
func (s *Server) BroadcastAppStats() {
	s.mu.Lock()
	stats := event(loadbalancing.EvAppStats, s.appStatsLocked())
	lobby := make([]*conn, 0, len(s.lobby))
	for c := range s.lobby {
		lobby = append(lobby, c)
	}
	s.mu.Unlock()
	broadcast(lobby, stats)
}
