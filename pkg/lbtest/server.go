package lbtest

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/vango-dev/arena/pkg/auth"
	"github.com/vango-dev/arena/pkg/loadbalancing"
	"github.com/vango-dev/arena/pkg/protocol"
)

// Error codes returned for requests the fake servers do not accept.
const (
	ErrCodeInvalidOperation    = -2
	ErrCodeOperationNotAllowed = -3
)

// Config configures a Server.
type Config struct {
	// AppID, when set, is required in every authenticate request.
	AppID string

	// Verifier checks custom-auth parameters on the master. Nil accepts
	// every client.
	Verifier auth.Verifier

	// GameAddress is advertised to clients as the game server. Start fills
	// it in from the test listener.
	GameAddress string

	// Logger receives server logs.
	// Default: slog.Default().
	Logger *slog.Logger
}

// Server is a fake master and game server pair sharing one room table.
type Server struct {
	config   Config
	logger   *slog.Logger
	upgrader websocket.Upgrader

	master *httptest.Server
	game   *httptest.Server

	mu       sync.Mutex
	clients  map[*conn]bool
	lobby    map[*conn]bool
	rooms    map[string]*room
	secrets  map[string]string // secret -> user id
	sessions int
	users    int
}

// New creates a Server without listeners. Mount MasterHandler and GameHandler
// on HTTP servers, or use Start.
func New(config Config) *Server {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Server{
		config: config,
		logger: config.Logger.With("component", "lbtest"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // test servers accept every origin
			},
		},
		clients: map[*conn]bool{},
		lobby:   map[*conn]bool{},
		rooms:   map[string]*room{},
		secrets: map[string]string{},
	}
}

// Start creates a Server listening on two local test listeners.
func Start(config Config) *Server {
	s := New(config)
	s.master = httptest.NewServer(s.MasterHandler())
	s.game = httptest.NewServer(s.GameHandler())
	if s.config.GameAddress == "" {
		s.config.GameAddress = hostPort(s.game.URL)
	}
	return s
}

// NewT starts a Server and closes it when the test ends.
func NewT(t testing.TB, config Config) *Server {
	t.Helper()
	s := Start(config)
	t.Cleanup(s.Close)
	return s
}

// MasterHandler serves the master websocket endpoint.
func (s *Server) MasterHandler() http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, req *http.Request) { s.serve(w, req, false) })
	return r
}

// GameHandler serves the game-server websocket endpoint.
func (s *Server) GameHandler() http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, req *http.Request) { s.serve(w, req, true) })
	return r
}

// SetGameAddress sets the game-server address handed out by the master.
func (s *Server) SetGameAddress(address string) {
	s.mu.Lock()
	s.config.GameAddress = address
	s.mu.Unlock()
}

// MasterAddress returns host:port of the master listener.
func (s *Server) MasterAddress() string {
	if s.master == nil {
		return ""
	}
	return hostPort(s.master.URL)
}

// GameAddress returns the advertised game-server address.
func (s *Server) GameAddress() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config.GameAddress
}

// Close closes every connection and the listeners.
func (s *Server) Close() {
	s.mu.Lock()
	conns := make([]*conn, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.ws.Close()
	}
	if s.master != nil {
		s.master.Close()
	}
	if s.game != nil {
		s.game.Close()
	}
}

// DropGameClients closes every game connection without a close frame.
func (s *Server) DropGameClients() {
	s.mu.Lock()
	var conns []*conn
	for c := range s.clients {
		if c.game {
			conns = append(conns, c)
		}
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.ws.Close()
	}
}

// Rooms returns the names of every open or closed room, sorted.
func (s *Server) Rooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedRoomNames(s.rooms)
}

// RoomActors returns the number of actors in a room.
func (s *Server) RoomActors(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[name]; ok {
		return len(r.actors)
	}
	return 0
}

// RoomProperty returns a room property in wire form.
func (s *Server) RoomProperty(name, key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[name]
	if !ok {
		return nil, false
	}
	v, ok := r.props[key]
	return v, ok
}

// ConnectionCount returns the number of open master and game connections.
func (s *Server) ConnectionCount() (master, game int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		if c.game {
			game++
		} else {
			master++
		}
	}
	return master, game
}

// =============================================================================
// Connections
// =============================================================================

// conn is one client connection on either server.
type conn struct {
	ws   *websocket.Conn
	game bool

	writeMu sync.Mutex

	// Guarded by Server.mu.
	authed bool
	userID string
	room   *room
	nr     int
}

func (c *conn) write(messages ...any) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.WriteMessage(websocket.TextMessage, []byte(protocol.Encode(messages...)))
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request, game bool) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", "error", err)
		return
	}

	c := &conn{ws: ws, game: game, nr: -1}
	s.mu.Lock()
	s.clients[c] = true
	s.sessions++
	sessionID := fmt.Sprintf("session-%d", s.sessions)
	s.mu.Unlock()

	s.logger.Debug("client connected", "session", sessionID, "game", game)
	c.write(sessionID)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			break
		}
		for _, payload := range protocol.Decode(string(data)) {
			s.handle(c, payload)
		}
	}

	s.drop(c)
	ws.Close()
	s.logger.Debug("client disconnected", "session", sessionID, "game", game)
}

func (s *Server) drop(c *conn) {
	s.leaveRoom(c)

	s.mu.Lock()
	delete(s.clients, c)
	delete(s.lobby, c)
	s.mu.Unlock()
}

func (s *Server) handle(c *conn, payload string) {
	if !protocol.IsJSON(payload) {
		return
	}
	req, err := protocol.DecodeRequest(payload)
	if err != nil {
		s.logger.Warn("invalid request", "error", err)
		return
	}

	if req.Internal {
		if req.Code == protocol.InternalPing {
			c.write(protocol.EncodeEnvelope(&protocol.Envelope{
				Kind:   protocol.KindInternal,
				Code:   protocol.InternalPing,
				Values: req.Values,
			}))
		}
		return
	}

	s.mu.Lock()
	authed := c.authed
	s.mu.Unlock()

	switch {
	case req.Code == loadbalancing.OpAuthenticate:
		s.authenticate(c, req)
	case !authed:
		c.write(failure(req.Code, ErrCodeOperationNotAllowed, "not authenticated"))
	case c.game:
		s.handleGame(c, req)
	default:
		s.handleMaster(c, req)
	}
}

// =============================================================================
// Envelopes
// =============================================================================

func response(code int, vals protocol.Values) string {
	return protocol.EncodeEnvelope(&protocol.Envelope{Kind: protocol.KindResponse, Code: code, Values: vals})
}

func failure(code, errCode int, msg string) string {
	return protocol.EncodeEnvelope(&protocol.Envelope{
		Kind:    protocol.KindResponse,
		Code:    code,
		ErrCode: errCode,
		ErrMsg:  msg,
	})
}

func event(code int, vals protocol.Values) string {
	return protocol.EncodeEnvelope(&protocol.Envelope{Kind: protocol.KindEvent, Code: code, Values: vals})
}

func broadcast(conns []*conn, messages ...any) {
	for _, c := range conns {
		c.write(messages...)
	}
}

func hostPort(rawURL string) string {
	if i := strings.Index(rawURL, "://"); i >= 0 {
		return rawURL[i+3:]
	}
	return rawURL
}
