package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	WriteWait = 10 * time.Second
	// ReadWait bounds client silence. Clients ping well within it.
	ReadWait = 2 * time.Minute
	// MaxMessageSize caps one client message.
	MaxMessageSize = 4096
)

// Prepare applies the read limits to a freshly upgraded connection.
func Prepare(conn *websocket.Conn) {
	conn.SetReadLimit(MaxMessageSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(ReadWait))
	})
}

// WriteTyped sends a strongly-typed payload over the WebSocket.
func WriteTyped(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(WriteWait))
	return conn.WriteJSON(v)
}

// NewError builds the reply for a refused request.
func NewError(code, msg string) ErrorResponse {
	return ErrorResponse{Event: EventError, Code: code, Error: msg}
}

// ReadJSON reads and decodes one message, refreshing the read deadline.
func ReadJSON(conn *websocket.Conn, v interface{}) error {
	conn.SetReadDeadline(time.Now().Add(ReadWait))
	return conn.ReadJSON(v)
}
