package loadbalancing_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/arena/pkg/auth"
	"github.com/vango-dev/arena/pkg/lbtest"
	"github.com/vango-dev/arena/pkg/lite"
	lb "github.com/vango-dev/arena/pkg/loadbalancing"
)

const (
	waitFor = 5 * time.Second
	tick    = 10 * time.Millisecond
)

// recorder collects client callbacks. Callbacks run on the client loop, so
// every field is guarded.
type recorder struct {
	mu          sync.Mutex
	states      []lb.State
	errs        []error
	roomLists   [][]lb.RoomInfo
	added       []string
	removed     []string
	stats       []lb.AppStats
	joinedRooms []string
	left        int
	actorJoins  []int
	actorLeaves []int
	actorProps  []int
	roomChanges int
	events      []customEvent
}

type customEvent struct {
	code   int
	sender int
	data   any
}

func (r *recorder) callbacks() lb.Callbacks {
	return lb.Callbacks{
		OnStateChange: func(_, to lb.State) {
			r.mu.Lock()
			r.states = append(r.states, to)
			r.mu.Unlock()
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		},
		OnRoomList: func(rooms []lb.RoomInfo) {
			r.mu.Lock()
			r.roomLists = append(r.roomLists, rooms)
			r.mu.Unlock()
		},
		OnRoomListUpdate: func(_, _, added, removed []lb.RoomInfo) {
			r.mu.Lock()
			for _, room := range added {
				r.added = append(r.added, room.Name)
			}
			for _, room := range removed {
				r.removed = append(r.removed, room.Name)
			}
			r.mu.Unlock()
		},
		OnAppStats: func(stats lb.AppStats) {
			r.mu.Lock()
			r.stats = append(r.stats, stats)
			r.mu.Unlock()
		},
		OnJoinRoom: func(room *lb.Room) {
			name := room.Name()
			r.mu.Lock()
			r.joinedRooms = append(r.joinedRooms, name)
			r.mu.Unlock()
		},
		OnLeaveRoom: func() {
			r.mu.Lock()
			r.left++
			r.mu.Unlock()
		},
		OnActorJoin: func(a *lite.Actor) {
			r.mu.Lock()
			r.actorJoins = append(r.actorJoins, a.Nr())
			r.mu.Unlock()
		},
		OnActorLeave: func(a *lite.Actor) {
			r.mu.Lock()
			r.actorLeaves = append(r.actorLeaves, a.Nr())
			r.mu.Unlock()
		},
		OnActorPropertiesChange: func(a *lite.Actor) {
			r.mu.Lock()
			r.actorProps = append(r.actorProps, a.Nr())
			r.mu.Unlock()
		},
		OnRoomPropertiesChange: func(*lb.Room) {
			r.mu.Lock()
			r.roomChanges++
			r.mu.Unlock()
		},
		OnEvent: func(code, sender int, data any) {
			r.mu.Lock()
			r.events = append(r.events, customEvent{code, sender, data})
			r.mu.Unlock()
		},
	}
}

func (r *recorder) stateLog() []lb.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.states)
}

func (r *recorder) errList() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.errs)
}

// eventually polls fn with the recorder locked until it holds.
func (r *recorder) eventually(t *testing.T, fn func(r *recorder) bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return fn(r)
	}, waitFor, tick)
}

func (r *recorder) waitStates(t *testing.T, want ...lb.State) {
	t.Helper()
	require.Eventually(t, func() bool { return slices.Equal(r.stateLog(), want) }, waitFor, tick,
		"states %v, want %v", r.stateLog(), want)
}

func (r *recorder) operationError(errCode int) bool {
	for _, err := range r.errList() {
		var opErr *lb.OperationError
		if errors.As(err, &opErr) && opErr.ErrCode == errCode {
			return true
		}
	}
	return false
}

func newClient(t *testing.T, srv *lbtest.Server, mutate func(*lb.Config)) (*lb.Client, *recorder) {
	t.Helper()
	cfg := lb.DefaultConfig()
	cfg.MasterAddress = srv.MasterAddress()
	cfg.AppID = "arena-test"
	if mutate != nil {
		mutate(cfg)
	}
	c := lb.New(cfg)
	rec := &recorder{}
	c.SetCallbacks(rec.callbacks())
	t.Cleanup(c.Close)
	return c, rec
}

func waitState(t *testing.T, c *lb.Client, want lb.State) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == want }, waitFor, tick,
		"state is %s, want %s", c.State(), want)
}

func connectLobby(t *testing.T, c *lb.Client) {
	t.Helper()
	require.NoError(t, c.Connect(context.Background()))
	waitState(t, c, lb.StateJoinedLobby)
}

func createRoom(t *testing.T, c *lb.Client, name string, opts *lb.RoomOptions) {
	t.Helper()
	connectLobby(t, c)
	require.NoError(t, c.CreateRoom(name, opts))
	waitState(t, c, lb.StateJoined)
}

func TestClientJoinsLobby(t *testing.T) {
	srv := lbtest.NewT(t, lbtest.Config{AppID: "arena-test"})
	c, rec := newClient(t, srv, nil)

	connectLobby(t, c)

	rec.waitStates(t,
		lb.StateConnectingToMaster,
		lb.StateConnectedToMaster,
		lb.StateJoinedLobby,
	)
	assert.NotEmpty(t, c.UserID())
	assert.True(t, c.IsInLobby())

	require.Eventually(t, func() bool { return c.AppStats().MasterPeerCount == 1 }, waitFor, tick)
	rec.eventually(t, func(r *recorder) bool { return len(r.roomLists) == 1 })
	assert.Empty(t, c.AvailableRooms())
}

func TestClientKeepsConfiguredUserID(t *testing.T) {
	srv := lbtest.NewT(t, lbtest.Config{})
	c, _ := newClient(t, srv, func(cfg *lb.Config) { cfg.UserID = "ann" })

	connectLobby(t, c)
	assert.Equal(t, "ann", c.UserID())
}

func TestClientRejectsUnknownApp(t *testing.T) {
	srv := lbtest.NewT(t, lbtest.Config{AppID: "arena-test"})
	c, rec := newClient(t, srv, func(cfg *lb.Config) { cfg.AppID = "other" })

	require.NoError(t, c.Connect(context.Background()))
	waitState(t, c, lb.StateError)
	require.Eventually(t, func() bool { return rec.operationError(lb.ErrCodeInvalidAuth) }, waitFor, tick)
}

func TestClientCreateRoomEndToEnd(t *testing.T) {
	srv := lbtest.NewT(t, lbtest.Config{AppID: "arena-test"})
	c, rec := newClient(t, srv, nil)

	createRoom(t, c, "r1", nil)

	rec.waitStates(t,
		lb.StateConnectingToMaster,
		lb.StateConnectedToMaster,
		lb.StateJoinedLobby,
		lb.StateConnectingToGame,
		lb.StateConnectedToGame,
		lb.StateJoined,
	)

	assert.GreaterOrEqual(t, c.MyActor().Nr(), 0)
	assert.Empty(t, c.Session().RemoteActors())
	assert.Len(t, c.MyRoomActors(), 1)
	assert.Equal(t, "r1", c.MyRoom().Name())
	assert.Equal(t, 1, c.MyRoom().PlayerCount())
	assert.Equal(t, 1, srv.RoomActors("r1"))
	assert.True(t, c.IsJoinedToRoom())

	// The master connection is released after the handoff.
	require.Eventually(t, func() bool {
		master, game := srv.ConnectionCount()
		return master == 0 && game == 1
	}, waitFor, tick)

	rec.eventually(t, func(r *recorder) bool { return slices.Equal(r.joinedRooms, []string{"r1"}) })
}

func TestClientCreateRoomWithServerName(t *testing.T) {
	srv := lbtest.NewT(t, lbtest.Config{})
	c, _ := newClient(t, srv, nil)

	createRoom(t, c, "", &lb.RoomOptions{MaxPlayers: 2})

	name := c.MyRoom().Name()
	assert.NotEmpty(t, name)
	assert.Equal(t, []string{name}, srv.Rooms())
	assert.Equal(t, 2, c.MyRoom().Info().MaxPlayers)
}

func TestClientRoomRequestNeedsLobby(t *testing.T) {
	srv := lbtest.NewT(t, lbtest.Config{})
	c, _ := newClient(t, srv, nil)

	err := c.CreateRoom("r1", nil)
	require.ErrorIs(t, err, lb.ErrInvalidTransition)

	var se *lb.TransitionError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, lb.StateUninitialized, se.From)
	assert.Equal(t, lb.StateUninitialized, c.State())

	assert.ErrorIs(t, c.JoinRoom(""), lite.ErrMissingRoomName)
	assert.ErrorIs(t, c.LeaveRoom(), lb.ErrNotInRoom)
}

func TestClientSecondPlayerJoins(t *testing.T) {
	srv := lbtest.NewT(t, lbtest.Config{})
	host, hostRec := newClient(t, srv, func(cfg *lb.Config) { cfg.PlayerName = "host" })
	guest, _ := newClient(t, srv, func(cfg *lb.Config) { cfg.PlayerName = "guest" })

	createRoom(t, host, "r1", nil)
	connectLobby(t, guest)
	require.NoError(t, guest.JoinRoom("r1"))
	waitState(t, guest, lb.StateJoined)

	guestNr := guest.MyActor().Nr()
	assert.NotEqual(t, host.MyActor().Nr(), guestNr)
	require.Len(t, guest.Session().RemoteActors(), 1)
	assert.Equal(t, "host", guest.Session().RemoteActors()[0].Name())
	assert.Equal(t, 2, guest.MyRoom().PlayerCount())

	require.Eventually(t, func() bool { return host.MyRoom().PlayerCount() == 2 }, waitFor, tick)
	hostRec.eventually(t, func(r *recorder) bool { return slices.Equal(r.actorJoins, []int{guestNr}) })

	remote, ok := host.Session().Actor(guestNr)
	require.True(t, ok)
	assert.Equal(t, "guest", remote.Name())

	require.NoError(t, guest.LeaveRoom())
	require.Eventually(t, func() bool { return host.MyRoom().PlayerCount() == 1 }, waitFor, tick)
	hostRec.eventually(t, func(r *recorder) bool { return slices.Equal(r.actorLeaves, []int{guestNr}) })
}

func TestClientLobbySeesRoomUpdates(t *testing.T) {
	srv := lbtest.NewT(t, lbtest.Config{})
	watcher, rec := newClient(t, srv, nil)
	host, _ := newClient(t, srv, nil)

	connectLobby(t, watcher)
	createRoom(t, host, "r1", &lb.RoomOptions{MaxPlayers: 4})

	require.Eventually(t, func() bool {
		rooms := watcher.AvailableRooms()
		return len(rooms) == 1 && rooms[0].Name == "r1" && rooms[0].PlayerCount == 1
	}, waitFor, tick)
	assert.Equal(t, 4, watcher.AvailableRooms()[0].MaxPlayers)

	require.NoError(t, host.LeaveRoom())
	require.Eventually(t, func() bool { return len(watcher.AvailableRooms()) == 0 }, waitFor, tick)

	rec.eventually(t, func(r *recorder) bool {
		return slices.Equal(r.added, []string{"r1"}) && slices.Equal(r.removed, []string{"r1"})
	})
}

func TestClientJoinRoomFailures(t *testing.T) {
	srv := lbtest.NewT(t, lbtest.Config{})
	c, rec := newClient(t, srv, nil)
	connectLobby(t, c)

	require.NoError(t, c.JoinRoom("missing"))
	require.Eventually(t, func() bool { return rec.operationError(lb.ErrCodeGameDoesNotExist) }, waitFor, tick)
	assert.Equal(t, lb.StateJoinedLobby, c.State())

	// The failed request no longer blocks new ones.
	require.NoError(t, c.JoinRandomRoom(nil, 0))
	require.Eventually(t, func() bool { return rec.operationError(lb.ErrCodeNoRandomMatchFound) }, waitFor, tick)
	assert.Equal(t, lb.StateJoinedLobby, c.State())
}

func TestClientJoinRandomRoom(t *testing.T) {
	srv := lbtest.NewT(t, lbtest.Config{})
	host, _ := newClient(t, srv, nil)
	other, _ := newClient(t, srv, nil)
	guest, guestRec := newClient(t, srv, nil)

	createRoom(t, other, "desert-room", &lb.RoomOptions{
		MaxPlayers: 4,
		Properties: map[string]any{"map": "desert"},
	})
	createRoom(t, host, "forest-room", &lb.RoomOptions{
		MaxPlayers: 4,
		Properties: map[string]any{"map": "forest"},
	})

	connectLobby(t, guest)
	require.NoError(t, guest.JoinRandomRoom(map[string]any{"map": "forest"}, 4))
	waitState(t, guest, lb.StateJoined)
	assert.Equal(t, "forest-room", guest.MyRoom().Name())

	v, ok := guest.MyRoom().Property("map")
	require.True(t, ok)
	assert.Equal(t, "forest", v)
	assert.Equal(t, 4, guest.MyRoom().Info().MaxPlayers)

	guestRec.eventually(t, func(r *recorder) bool { return slices.Equal(r.joinedRooms, []string{"forest-room"}) })
}

func TestClientRoomFull(t *testing.T) {
	srv := lbtest.NewT(t, lbtest.Config{})
	host, _ := newClient(t, srv, nil)
	guest, rec := newClient(t, srv, nil)

	createRoom(t, host, "duo", &lb.RoomOptions{MaxPlayers: 1})
	connectLobby(t, guest)

	require.NoError(t, guest.JoinRoom("duo"))
	require.Eventually(t, func() bool { return rec.operationError(lb.ErrCodeGameFull) }, waitFor, tick)
	assert.Equal(t, lb.StateJoinedLobby, guest.State())
}

func TestClientLeaveRoomReconnectsToMaster(t *testing.T) {
	srv := lbtest.NewT(t, lbtest.Config{})
	c, rec := newClient(t, srv, nil)
	createRoom(t, c, "r1", nil)
	joinedAs := c.MyActor().Nr()

	require.NoError(t, c.LeaveRoom())
	require.Eventually(t, func() bool {
		states := rec.stateLog()
		return len(states) >= 10 && c.State() == lb.StateJoinedLobby
	}, waitFor, tick)

	states := rec.stateLog()
	assert.Equal(t, []lb.State{
		lb.StateDisconnected,
		lb.StateConnectingToMaster,
		lb.StateConnectedToMaster,
		lb.StateJoinedLobby,
	}, states[6:10])
	assert.Equal(t, -1, c.MyActor().Nr())
	assert.NotEqual(t, -1, joinedAs)
	assert.Empty(t, c.Session().RemoteActors())
	require.Eventually(t, func() bool { return len(srv.Rooms()) == 0 }, waitFor, tick)

	rec.eventually(t, func(r *recorder) bool { return r.left == 1 })

	// The workflow can run again.
	require.NoError(t, c.CreateRoom("r2", nil))
	waitState(t, c, lb.StateJoined)
	assert.Equal(t, "r2", c.MyRoom().Name())
}

func TestClientKeepMasterConnection(t *testing.T) {
	srv := lbtest.NewT(t, lbtest.Config{})
	c, rec := newClient(t, srv, func(cfg *lb.Config) { cfg.KeepMasterConnection = true })
	createRoom(t, c, "r1", nil)

	master, game := srv.ConnectionCount()
	assert.Equal(t, 1, master)
	assert.Equal(t, 1, game)

	require.NoError(t, c.LeaveRoom())
	waitState(t, c, lb.StateJoinedLobby)

	rec.waitStates(t,
		lb.StateConnectingToMaster,
		lb.StateConnectedToMaster,
		lb.StateJoinedLobby,
		lb.StateConnectingToGame,
		lb.StateConnectedToGame,
		lb.StateJoined,
		lb.StateJoinedLobby,
	)
}

func TestClientGameServerLossEndsInError(t *testing.T) {
	srv := lbtest.NewT(t, lbtest.Config{})
	c, rec := newClient(t, srv, nil)
	createRoom(t, c, "r1", nil)

	srv.DropGameClients()
	waitState(t, c, lb.StateError)

	var peerErr *lb.PeerError
	require.Eventually(t, func() bool {
		for _, err := range rec.errList() {
			if errors.As(err, &peerErr) {
				return true
			}
		}
		return false
	}, waitFor, tick)
	assert.Equal(t, "game", peerErr.Peer)

	// Error allows a fresh connect.
	connectLobby(t, c)
}

func TestClientPropertiesPropagate(t *testing.T) {
	srv := lbtest.NewT(t, lbtest.Config{})
	host, _ := newClient(t, srv, nil)
	guest, guestRec := newClient(t, srv, nil)

	createRoom(t, host, "r1", nil)
	connectLobby(t, guest)
	require.NoError(t, guest.JoinRoom("r1"))
	waitState(t, guest, lb.StateJoined)

	require.NoError(t, host.MyRoom().SetCustomProperty("round", 2))
	v, ok := host.MyRoom().Property("round")
	require.True(t, ok)
	assert.Equal(t, 2, v)

	require.Eventually(t, func() bool {
		v, ok := guest.MyRoom().Property("round")
		return ok && v == float64(2)
	}, waitFor, tick)
	got, _ := srv.RoomProperty("r1", "round")
	assert.Equal(t, float64(2), got)

	hostNr := host.MyActor().Nr()
	require.NoError(t, host.MyActor().SetCustomProperty("color", "red"))
	require.Eventually(t, func() bool {
		a, ok := guest.Session().Actor(hostNr)
		if !ok {
			return false
		}
		v, _ := a.Property("color")
		return v == "red"
	}, waitFor, tick)

	guestRec.eventually(t, func(r *recorder) bool {
		return r.roomChanges == 1 && slices.Equal(r.actorProps, []int{hostNr})
	})
}

func TestClientRaiseEvent(t *testing.T) {
	srv := lbtest.NewT(t, lbtest.Config{})
	host, hostRec := newClient(t, srv, nil)
	guest, guestRec := newClient(t, srv, nil)

	createRoom(t, host, "r1", nil)
	connectLobby(t, guest)
	require.NoError(t, guest.JoinRoom("r1"))
	waitState(t, guest, lb.StateJoined)

	require.NoError(t, host.RaiseEvent(7, map[string]any{"x": 1}))
	guestRec.eventually(t, func(r *recorder) bool { return len(r.events) == 1 })

	guestRec.mu.Lock()
	ev := guestRec.events[0]
	guestRec.mu.Unlock()
	assert.Equal(t, 7, ev.code)
	assert.Equal(t, host.MyActor().Nr(), ev.sender)
	assert.Equal(t, map[string]any{"x": float64(1)}, ev.data)

	// Others is the default receiver group: the sender gets nothing.
	require.NoError(t, host.RaiseEvent(8, "all", lite.WithReceivers(lite.ReceiverAll)))
	hostRec.eventually(t, func(r *recorder) bool { return len(r.events) == 1 && r.events[0].code == 8 })
}

func TestClientDisconnect(t *testing.T) {
	srv := lbtest.NewT(t, lbtest.Config{})
	c, _ := newClient(t, srv, nil)

	assert.NoError(t, c.Disconnect())
	assert.Equal(t, lb.StateUninitialized, c.State())

	connectLobby(t, c)
	require.NoError(t, c.Disconnect())
	waitState(t, c, lb.StateDisconnected)

	connectLobby(t, c)
}

func TestClientDisconnectFromRoom(t *testing.T) {
	srv := lbtest.NewT(t, lbtest.Config{})
	c, rec := newClient(t, srv, func(cfg *lb.Config) { cfg.KeepMasterConnection = true })
	createRoom(t, c, "r1", nil)

	require.NoError(t, c.Disconnect())
	waitState(t, c, lb.StateDisconnected)
	rec.eventually(t, func(r *recorder) bool { return r.states[len(r.states)-1] == lb.StateDisconnected })
	assert.Contains(t, rec.stateLog(), lb.StateDisconnecting)
	assert.NotContains(t, rec.stateLog(), lb.StateError)
}

func TestClientConnectFailure(t *testing.T) {
	c := lb.New(&lb.Config{MasterAddress: "127.0.0.1:1"})
	t.Cleanup(c.Close)

	require.NoError(t, c.Connect(context.Background()))
	waitState(t, c, lb.StateError)

	bare := lb.New(nil)
	t.Cleanup(bare.Close)
	assert.ErrorIs(t, bare.Connect(context.Background()), lb.ErrNoMasterAddress)
}

func TestClientClose(t *testing.T) {
	srv := lbtest.NewT(t, lbtest.Config{})
	c, _ := newClient(t, srv, nil)
	connectLobby(t, c)

	c.Close()
	c.Close()
	assert.ErrorIs(t, c.Connect(context.Background()), lb.ErrClosed)
	assert.ErrorIs(t, c.CreateRoom("r1", nil), lb.ErrClosed)
}

func TestClientCustomAuth(t *testing.T) {
	authSrv := httptest.NewServer(auth.NewRouter(auth.NewHandler(auth.Credentials{"ann": "secret"}, nil)))
	t.Cleanup(authSrv.Close)

	srv := lbtest.NewT(t, lbtest.Config{
		Verifier: &auth.HTTPVerifier{URL: authSrv.URL + "/auth"},
	})

	t.Run("accepted", func(t *testing.T) {
		c, _ := newClient(t, srv, func(cfg *lb.Config) {
			cfg.Auth = &lb.AuthValues{Params: "user=ann&token=secret"}
		})
		connectLobby(t, c)
		assert.Equal(t, "ann", c.UserID())

		// The game server trusts the master's secret, not the auth params.
		require.NoError(t, c.CreateRoom("auth-room", nil))
		waitState(t, c, lb.StateJoined)
	})

	t.Run("rejected", func(t *testing.T) {
		c, rec := newClient(t, srv, func(cfg *lb.Config) {
			cfg.Auth = &lb.AuthValues{Params: "user=ann&token=wrong"}
		})
		require.NoError(t, c.Connect(context.Background()))
		waitState(t, c, lb.StateError)
		require.Eventually(t, func() bool { return rec.operationError(lb.ErrCodeCustomAuthFailed) }, waitFor, tick)
	})
}
