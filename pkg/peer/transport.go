package peer

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the duplex socket a peer reads from and writes to.
// *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	Close() error
}

// Dialer opens a Conn to url offering the given sub-protocols.
type Dialer interface {
	Dial(ctx context.Context, url string, subProtocols []string) (Conn, error)
}

// WebsocketDialer dials with gorilla/websocket.
type WebsocketDialer struct {
	// Dialer is copied for each dial. Default: websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// Header is sent with the handshake request.
	Header http.Header
}

// Dial opens a websocket connection.
func (d WebsocketDialer) Dial(ctx context.Context, url string, subProtocols []string) (Conn, error) {
	base := d.Dialer
	if base == nil {
		base = websocket.DefaultDialer
	}
	dialer := *base
	if len(subProtocols) > 0 {
		dialer.Subprotocols = subProtocols
	}

	conn, resp, err := dialer.DialContext(ctx, url, d.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// closeKind classifies how a read loop ended.
type closeKind uint8

const (
	closeServer   closeKind = iota // server sent a close frame
	closeAbnormal                  // connection dropped without a close frame
)

// classifyClose maps a read error to a closeKind.
func classifyClose(err error) closeKind {
	if ce, ok := err.(*websocket.CloseError); ok {
		if ce.Code == websocket.CloseAbnormalClosure {
			return closeAbnormal
		}
		return closeServer
	}
	return closeAbnormal
}
