package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 25 * time.Second
)

// connection - one participant. decodeErrors is owned by the read pump.
type connection struct {
	id   string
	conn *websocket.Conn

	send chan []byte
	done chan struct{}
	once sync.Once

	// guarded by Hub.mu
	member membership

	decodeErrors int
}

func newConnection(conn *websocket.Conn, sendBuffer int) *connection {
	return &connection{
		id:   uuid.NewString(),
		conn: conn,

		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

// enqueue - reports false when the send queue is full.
func (that *connection) enqueue(data []byte) bool {
	select {
	case <-that.done:
		return true
	default:
	}

	select {
	case that.send <- data:
		return true
	default:
		return false
	}
}

func (that *connection) close() {
	that.once.Do(func() {
		close(that.done)
	})
}

// writePump - the only writer of the socket; exits on close and closes the socket.
func (that *connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = that.conn.Close()
	}()

	for {
		select {
		case data := <-that.send:
			_ = that.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := that.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = that.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := that.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-that.done:
			_ = that.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait),
			)
			return
		}
	}
}
