package notify

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteWait = 5 * time.Second

// Event is the JSON message pushed over a callback socket.
type Event struct {
	Event    string `json:"event"`
	Follower string `json:"follower"`
	IsNew    *bool  `json:"isNew,omitempty"`
}

const (
	EventNewFollower = "newFollower"
	EventUnfollowed  = "unfollowed"
)

// WSCallback pushes follow events to a websocket. Writes are serialized.
type WSCallback struct {
	conn *websocket.Conn
	mu   sync.Mutex
	once sync.Once
}

func NewWSCallback(conn *websocket.Conn) *WSCallback {
	return &WSCallback{conn: conn}
}

func (w *WSCallback) NewFollower(follower string, isNew bool) error {
	return w.write(Event{Event: EventNewFollower, Follower: follower, IsNew: &isNew})
}

func (w *WSCallback) Unfollowed(follower string) error {
	return w.write(Event{Event: EventUnfollowed, Follower: follower})
}

// Close sends a close frame and closes the socket. It is safe to call more than once.
func (w *WSCallback) Close() error {
	var err error
	w.once.Do(func() {
		w.mu.Lock()
		_ = w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "unregistered"),
			time.Now().Add(wsWriteWait))
		w.mu.Unlock()
		err = w.conn.Close()
	})
	return err
}

// Ping sends a ping control frame so an idle peer keeps answering with pongs.
func (w *WSCallback) Ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

func (w *WSCallback) write(ev Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.conn.WriteJSON(ev)
}
