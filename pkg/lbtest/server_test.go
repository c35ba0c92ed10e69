package lbtest

import (
	"context"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/arena/pkg/auth"
	"github.com/vango-dev/arena/pkg/lite"
	"github.com/vango-dev/arena/pkg/loadbalancing"
	"github.com/vango-dev/arena/pkg/protocol"
)

// wireClient speaks the framed protocol directly.
type wireClient struct {
	t       *testing.T
	ws      *websocket.Conn
	pending []string
}

func dial(t *testing.T, address string) *wireClient {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial("ws://"+address+"/", nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	c := &wireClient{t: t, ws: ws}
	require.Equal(t, "session", c.nextRaw()[:7])
	return c
}

func (c *wireClient) send(msg any) {
	c.t.Helper()
	require.NoError(c.t, c.ws.WriteMessage(websocket.TextMessage, []byte(protocol.Encode(msg))))
}

func (c *wireClient) request(code int, params protocol.Params) {
	c.t.Helper()
	c.send(protocol.OperationRequest{Code: code, Params: params})
}

func (c *wireClient) nextRaw() string {
	c.t.Helper()
	for len(c.pending) == 0 {
		require.NoError(c.t, c.ws.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := c.ws.ReadMessage()
		require.NoError(c.t, err)
		c.pending = protocol.Decode(string(data))
	}
	payload := c.pending[0]
	c.pending = c.pending[1:]
	return payload
}

func (c *wireClient) next() *protocol.Envelope {
	c.t.Helper()
	env, err := protocol.DecodeEnvelope(c.nextRaw())
	require.NoError(c.t, err)
	return env
}

func (c *wireClient) authenticate(appID string, extra ...any) *protocol.Envelope {
	c.t.Helper()
	params := protocol.Params{}.Add(loadbalancing.KeyApplicationID, appID)
	params = append(params, extra...)
	c.request(loadbalancing.OpAuthenticate, params)
	env := c.next()
	require.Equal(c.t, loadbalancing.OpAuthenticate, env.Code)
	return env
}

func TestPingEcho(t *testing.T) {
	s := NewT(t, Config{})
	c := dial(t, s.MasterAddress())

	c.send(protocol.NewPing(42))
	env := c.next()
	assert.Equal(t, protocol.KindInternal, env.Kind)
	assert.Equal(t, protocol.InternalPing, env.Code)
	ms, ok := env.Values.Int(1)
	assert.True(t, ok)
	assert.Equal(t, 42, ms)
}

func TestRequestBeforeAuthenticate(t *testing.T) {
	s := NewT(t, Config{})
	c := dial(t, s.MasterAddress())

	c.request(loadbalancing.OpJoinLobby, nil)
	env := c.next()
	assert.Equal(t, loadbalancing.OpJoinLobby, env.Code)
	assert.Equal(t, ErrCodeOperationNotAllowed, env.ErrCode)
}

func TestAuthenticateUnknownApp(t *testing.T) {
	s := NewT(t, Config{AppID: "arena"})
	c := dial(t, s.MasterAddress())

	env := c.authenticate("other")
	assert.Equal(t, loadbalancing.ErrCodeInvalidAuth, env.ErrCode)
}

func TestGameServerRequiresMasterSecret(t *testing.T) {
	s := NewT(t, Config{})

	master := dial(t, s.MasterAddress())
	env := master.authenticate("arena", loadbalancing.KeyUserID, "ann")
	require.True(t, env.OK())
	secret, ok := env.Values.String(loadbalancing.KeySecret)
	require.True(t, ok)
	userID, _ := env.Values.String(loadbalancing.KeyUserID)
	assert.Equal(t, "ann", userID)

	game := dial(t, s.GameAddress())
	env = game.authenticate("arena", loadbalancing.KeySecret, "forged")
	assert.Equal(t, loadbalancing.ErrCodeInvalidAuth, env.ErrCode)

	env = game.authenticate("arena", loadbalancing.KeySecret, secret)
	require.True(t, env.OK())
	userID, _ = env.Values.String(loadbalancing.KeyUserID)
	assert.Equal(t, "ann", userID)
	assert.False(t, env.Values.Has(loadbalancing.KeySecret))
}

func TestServerAssignsUserID(t *testing.T) {
	s := NewT(t, Config{})
	c := dial(t, s.MasterAddress())

	env := c.authenticate("arena")
	require.True(t, env.OK())
	userID, _ := env.Values.String(loadbalancing.KeyUserID)
	assert.NotEmpty(t, userID)
}

func TestVerifierRejects(t *testing.T) {
	got := make(chan string, 1)
	s := NewT(t, Config{Verifier: auth.VerifierFunc(func(ctx context.Context, params string) (auth.Result, error) {
		got <- params
		return auth.Result{ResultCode: auth.ResultFailed, Message: "bad token"}, nil
	})})
	c := dial(t, s.MasterAddress())

	env := c.authenticate("arena", loadbalancing.KeyClientAuthParams, "user=ann&token=x")
	assert.Equal(t, loadbalancing.ErrCodeCustomAuthFailed, env.ErrCode)
	assert.Equal(t, "bad token", env.ErrMsg)
	assert.Equal(t, "user=ann&token=x", <-got)
}

func TestJoinLobbySendsListAndStats(t *testing.T) {
	s := NewT(t, Config{})
	c := dial(t, s.MasterAddress())
	require.True(t, c.authenticate("arena").OK())

	c.request(loadbalancing.OpJoinLobby, nil)
	env := c.next()
	assert.Equal(t, protocol.KindResponse, env.Kind)
	assert.True(t, env.OK())

	list := c.next()
	assert.Equal(t, protocol.KindEvent, list.Kind)
	assert.Equal(t, loadbalancing.EvGameList, list.Code)
	rooms, ok := list.Values.Map(loadbalancing.KeyGameList)
	assert.True(t, ok)
	assert.Empty(t, rooms)

	stats := c.next()
	assert.Equal(t, loadbalancing.EvAppStats, stats.Code)
	peers, _ := stats.Values.Int(loadbalancing.KeyPeerCount)
	assert.Equal(t, 1, peers)
}

func TestCreateGameAdvertisesAddress(t *testing.T) {
	s := NewT(t, Config{})
	c := dial(t, s.MasterAddress())
	require.True(t, c.authenticate("arena").OK())

	c.request(loadbalancing.OpCreateGame, protocol.Params{}.Add(lite.KeyRoomName, "r1"))
	env := c.next()
	require.True(t, env.OK())
	address, _ := env.Values.String(loadbalancing.KeyAddress)
	name, _ := env.Values.String(lite.KeyRoomName)
	assert.Equal(t, s.GameAddress(), address)
	assert.Equal(t, "r1", name)

	// The room only exists once a client joins the game server.
	assert.Empty(t, s.Rooms())

	s.SetGameAddress("elsewhere:1")
	c.request(loadbalancing.OpCreateGame, nil)
	env = c.next()
	address, _ = env.Values.String(loadbalancing.KeyAddress)
	assert.Equal(t, "elsewhere:1", address)
}

func TestJoinMissingGame(t *testing.T) {
	s := NewT(t, Config{})
	c := dial(t, s.MasterAddress())
	require.True(t, c.authenticate("arena").OK())

	c.request(loadbalancing.OpJoinGame, protocol.Params{}.Add(lite.KeyRoomName, "nope"))
	assert.Equal(t, loadbalancing.ErrCodeGameDoesNotExist, c.next().ErrCode)

	c.request(loadbalancing.OpJoinRandomGame, nil)
	assert.Equal(t, loadbalancing.ErrCodeNoRandomMatchFound, c.next().ErrCode)
}

func TestUnknownOperation(t *testing.T) {
	s := NewT(t, Config{})
	c := dial(t, s.MasterAddress())
	require.True(t, c.authenticate("arena").OK())

	c.request(99, nil)
	env := c.next()
	assert.Equal(t, 99, env.Code)
	assert.Equal(t, ErrCodeInvalidOperation, env.ErrCode)
}

func TestConnectionCount(t *testing.T) {
	s := NewT(t, Config{})
	dial(t, s.MasterAddress())
	dial(t, s.GameAddress())

	assert.Eventually(t, func() bool {
		master, game := s.ConnectionCount()
		return master == 1 && game == 1
	}, 2*time.Second, 10*time.Millisecond)
}
