// file: internals/features/proctoring/gateway/watch_gateway.go
package gateway

import (
	"log"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

/* =========================================================
   PROCTOR WATCH CHANNELS
   Read-only subscriptions. The read loop exists solely to
   detect the close; inbound frames are ignored.
========================================================= */

// WatchSessionHandler serves /ws/watch/sessions/:id.
func (g *Gateway) WatchSessionHandler() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		sessionID, err := uuid.Parse(c.Params("id"))
		if err != nil {
			log.Printf("[GATEWAY] bad watch session id %q, closing", c.Params("id"))
			_ = c.Close()
			return
		}

		cl := g.Hub.RegisterSessionWatcher(sessionID, c)
		defer g.Hub.UnregisterSessionWatcher(sessionID, cl)

		log.Printf("[GATEWAY] proctor watching session=%s", sessionID)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	})
}

// WatchExamHandler serves /ws/watch/exams/:id.
func (g *Gateway) WatchExamHandler() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		examID, err := uuid.Parse(c.Params("id"))
		if err != nil {
			log.Printf("[GATEWAY] bad watch exam id %q, closing", c.Params("id"))
			_ = c.Close()
			return
		}

		cl := g.Hub.RegisterExamWatcher(examID, c)
		defer g.Hub.UnregisterExamWatcher(examID, cl)

		log.Printf("[GATEWAY] proctor watching exam=%s", examID)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	})
}
