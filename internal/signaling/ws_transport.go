package signaling

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteWait = 1 * time.Second

// wsTransport adapts a gorilla connection to Transport. All writes, including
// control frames, are serialized by writeMu.
type wsTransport struct {
	conn *websocket.Conn

	writeMu sync.Mutex
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) Send(env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) ping() error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

func (t *wsTransport) closeWith(code int, reason string) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = t.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
}

// fail sends an error envelope followed by a close frame.
func (t *wsTransport) fail(code, message string, closeCode int, closeReason string) {
	_ = t.Send(Envelope{Type: MessageTypeError, Code: code, Message: message})
	t.closeWith(closeCode, closeReason)
}

// Close is called by the hub when the route is detached or superseded.
func (t *wsTransport) Close() error {
	t.closeWith(websocket.CloseNormalClosure, "route closed")
	return t.conn.Close()
}
