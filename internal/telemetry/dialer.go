package telemetry

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"
)

// Conn открытое потоковое соединение. ReadMessage блокируется до следующего текстового кадра.
type Conn interface {
	ReadMessage() ([]byte, error)
	Close() error
}

// Dialer открывает соединение с источником телеметрии
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// WebSocketDialer открывает соединение через gorilla/websocket
type WebSocketDialer struct {
	dialer *websocket.Dialer
}

// NewWebSocketDialer без таймаута рукопожатия: неудачное открытие видно только по ошибке
// самого соединения или по отмене контекста сессии
func NewWebSocketDialer() *WebSocketDialer {
	return &WebSocketDialer{
		dialer: &websocket.Dialer{
			Proxy: websocket.DefaultDialer.Proxy,
		},
	}
}

func (d *WebSocketDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	ws, resp, err := d.dialer.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", endpoint, err)
	}
	return &wsConn{ws: ws}, nil
}

type wsConn struct {
	ws *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		// бинарные кадры протоколом не предусмотрены
		if kind == websocket.TextMessage {
			return data, nil
		}
	}
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}
