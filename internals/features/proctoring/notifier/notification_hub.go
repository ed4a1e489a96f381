// file: internals/features/proctoring/notifier/notification_hub.go
package notifier

import (
	"log"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

/* =========================================================
   NOTIFICATION FAN-OUT
   Pure delivery, no state beyond the connection registry.
   Every send is best-effort and non-blocking: a slow or dead
   subscriber drops messages, it never stalls the caller.
========================================================= */

const sendBuffer = 32

type MessageKind string

const (
	KindWarning       MessageKind = "WARNING"
	KindSuspension    MessageKind = "SUSPENSION"
	KindReinstatement MessageKind = "REINSTATEMENT"
	KindSessionUpdate MessageKind = "SESSION_UPDATE"
	KindProctorAlert  MessageKind = "PROCTOR_ALERT"
)

type Envelope struct {
	Kind      MessageKind `json:"kind"`
	SessionID uuid.UUID   `json:"session_id"`
	Payload   interface{} `json:"payload,omitempty"`
	At        time.Time   `json:"at"`
}

// Client wraps a websocket connection with a buffered outbound queue and a
// single writer goroutine (gorilla-style conns allow one concurrent writer).
type Client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func newClient(conn *websocket.Conn) *Client {
	c := &Client{conn: conn, send: make(chan []byte, sendBuffer)}
	go c.writeLoop()
	return c
}

func (c *Client) writeLoop() {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			log.Printf("[NOTIFIER] write failed, dropping subscriber: %v", err)
			return
		}
	}
}

func (c *Client) push(msg []byte) {
	select {
	case c.send <- msg:
	default:
		// subscriber too slow; delivery is not guaranteed
	}
}

func (c *Client) close() {
	c.once.Do(func() { close(c.send) })
}

type Hub struct {
	mu sync.RWMutex

	// session id → the student's own channel (at most one)
	students map[uuid.UUID]*Client

	// session id → proctors watching that one session
	sessionWatchers map[uuid.UUID]map[*Client]struct{}

	// exam id → proctors watching every session of the exam
	examWatchers map[uuid.UUID]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		students:        make(map[uuid.UUID]*Client),
		sessionWatchers: make(map[uuid.UUID]map[*Client]struct{}),
		examWatchers:    make(map[uuid.UUID]map[*Client]struct{}),
	}
}

/* =========================
   Registry
   ========================= */

func (h *Hub) RegisterStudent(sessionID uuid.UUID, conn *websocket.Conn) *Client {
	cl := newClient(conn)
	h.mu.Lock()
	if old, ok := h.students[sessionID]; ok {
		old.close()
	}
	h.students[sessionID] = cl
	h.mu.Unlock()
	return cl
}

func (h *Hub) UnregisterStudent(sessionID uuid.UUID, cl *Client) {
	h.mu.Lock()
	if cur, ok := h.students[sessionID]; ok && cur == cl {
		delete(h.students, sessionID)
	}
	h.mu.Unlock()
	cl.close()
}

func (h *Hub) RegisterSessionWatcher(sessionID uuid.UUID, conn *websocket.Conn) *Client {
	cl := newClient(conn)
	h.mu.Lock()
	if h.sessionWatchers[sessionID] == nil {
		h.sessionWatchers[sessionID] = make(map[*Client]struct{})
	}
	h.sessionWatchers[sessionID][cl] = struct{}{}
	h.mu.Unlock()
	return cl
}

func (h *Hub) UnregisterSessionWatcher(sessionID uuid.UUID, cl *Client) {
	h.mu.Lock()
	if set, ok := h.sessionWatchers[sessionID]; ok {
		delete(set, cl)
		if len(set) == 0 {
			delete(h.sessionWatchers, sessionID)
		}
	}
	h.mu.Unlock()
	cl.close()
}

func (h *Hub) RegisterExamWatcher(examID uuid.UUID, conn *websocket.Conn) *Client {
	cl := newClient(conn)
	h.mu.Lock()
	if h.examWatchers[examID] == nil {
		h.examWatchers[examID] = make(map[*Client]struct{})
	}
	h.examWatchers[examID][cl] = struct{}{}
	h.mu.Unlock()
	return cl
}

func (h *Hub) UnregisterExamWatcher(examID uuid.UUID, cl *Client) {
	h.mu.Lock()
	if set, ok := h.examWatchers[examID]; ok {
		delete(set, cl)
		if len(set) == 0 {
			delete(h.examWatchers, examID)
		}
	}
	h.mu.Unlock()
	cl.close()
}

/* =========================
   Delivery
   ========================= */

func (h *Hub) WarnStudent(sessionID uuid.UUID, payload interface{}) {
	h.toStudent(sessionID, Envelope{Kind: KindWarning, SessionID: sessionID, Payload: payload, At: time.Now().UTC()})
}

func (h *Hub) SuspendStudent(sessionID uuid.UUID, reason string) {
	h.toStudent(sessionID, Envelope{Kind: KindSuspension, SessionID: sessionID, Payload: fiberMap{"reason": reason}, At: time.Now().UTC()})
}

func (h *Hub) ReinstateStudent(sessionID uuid.UUID, payload interface{}) {
	h.toStudent(sessionID, Envelope{Kind: KindReinstatement, SessionID: sessionID, Payload: payload, At: time.Now().UTC()})
}

func (h *Hub) PushSessionUpdate(sessionID uuid.UUID, payload interface{}) {
	env := Envelope{Kind: KindSessionUpdate, SessionID: sessionID, Payload: payload, At: time.Now().UTC()}
	h.toStudent(sessionID, env)
	h.toWatchers(sessionID, uuid.Nil, env)
}

func (h *Hub) BroadcastProctorAlert(examID, sessionID uuid.UUID, payload interface{}) {
	h.toWatchers(sessionID, examID, Envelope{Kind: KindProctorAlert, SessionID: sessionID, Payload: payload, At: time.Now().UTC()})
}

type fiberMap = map[string]interface{}

func (h *Hub) toStudent(sessionID uuid.UUID, env Envelope) {
	msg, err := sonic.Marshal(env)
	if err != nil {
		log.Printf("[NOTIFIER] marshal err: %v", err)
		return
	}
	h.mu.RLock()
	cl := h.students[sessionID]
	h.mu.RUnlock()
	if cl != nil {
		cl.push(msg)
	}
}

func (h *Hub) toWatchers(sessionID, examID uuid.UUID, env Envelope) {
	msg, err := sonic.Marshal(env)
	if err != nil {
		log.Printf("[NOTIFIER] marshal err: %v", err)
		return
	}
	h.mu.RLock()
	for cl := range h.sessionWatchers[sessionID] {
		cl.push(msg)
	}
	if examID != uuid.Nil {
		for cl := range h.examWatchers[examID] {
			cl.push(msg)
		}
	}
	h.mu.RUnlock()
}
