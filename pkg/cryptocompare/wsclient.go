package cryptocompare

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Conn is an open streaming session. ReadMessage may be called from one
// goroutine while WriteJSON and Close are called from another.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteJSON(v any) error
	Close() error
}

// Dialer opens streaming sessions.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// WSDialer dials the streamer over gorilla/websocket.
type WSDialer struct {
	url          string
	dialer       websocket.Dialer
	writeTimeout time.Duration
	logger       *zap.Logger
}

// NewWSDialer creates a dialer for url. url may carry the api key as a query parameter.
func NewWSDialer(url string, handshakeTimeout time.Duration, logger *zap.Logger) *WSDialer {
	return &WSDialer{
		url: url,
		dialer: websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
		writeTimeout: 10 * time.Second,
		logger:       logger,
	}
}

// Dial establishes the WebSocket connection. It does not subscribe to anything.
func (d *WSDialer) Dial(ctx context.Context) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, d.url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	d.logger.Debug("websocket connected", zap.String("remote", conn.RemoteAddr().String()))
	return &WSConn{conn: conn, writeTimeout: d.writeTimeout}, nil
}

// WSConn adapts *websocket.Conn to Conn.
type WSConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (c *WSConn) ReadMessage() ([]byte, error) {
	_, msg, err := c.conn.ReadMessage()
	return msg, err
}

func (c *WSConn) WriteJSON(v any) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

// Close sends a close frame on a best-effort basis and closes the socket.
func (c *WSConn) Close() error {
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.conn.Close()
}
