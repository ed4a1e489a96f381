// file: internals/features/proctoring/gateway/ingest_gateway.go
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	evmodel "examproctor_backend/internals/features/proctoring/events/model"
	"examproctor_backend/internals/features/proctoring/notifier"
	"examproctor_backend/internals/features/proctoring/quickrules"
	sessionsvc "examproctor_backend/internals/features/sessions/sessions/service"
)

/* =========================================================
   EVENT INGEST GATEWAY
   One bidirectional channel per session. Inbound messages are
   fire-and-forget: an ineligible or malformed message is
   dropped and logged, never errored back synchronously.
   Eligibility is re-derived from the session row on every
   message; a suspend landing mid-stream takes effect on the
   very next message.
========================================================= */

type AnalysisPublisher interface {
	Publish(topic, key string, payload []byte)
}

type PresenceRefresher interface {
	Refresh(ctx context.Context, sessionID uuid.UUID)
	Drop(ctx context.Context, sessionID uuid.UUID)
}

type Gateway struct {
	DB         *gorm.DB
	Lifecycle  *sessionsvc.SessionLifecycleService
	QuickRules *quickrules.Evaluator
	Publisher  AnalysisPublisher
	Presence   PresenceRefresher
	Hub        *notifier.Hub

	MediaTopic    string
	BehaviorTopic string
}

func NewGateway(
	db *gorm.DB,
	lifecycle *sessionsvc.SessionLifecycleService,
	quickRules *quickrules.Evaluator,
	publisher AnalysisPublisher,
	presence PresenceRefresher,
	hub *notifier.Hub,
	mediaTopic, behaviorTopic string,
) *Gateway {
	return &Gateway{
		DB:            db,
		Lifecycle:     lifecycle,
		QuickRules:    quickRules,
		Publisher:     publisher,
		Presence:      presence,
		Hub:           hub,
		MediaTopic:    mediaTopic,
		BehaviorTopic: behaviorTopic,
	}
}

// UpgradeRequired gates the /ws routes to genuine websocket upgrades.
func UpgradeRequired(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

/* =========================
   Wire format
   ========================= */

type inboundMessage struct {
	// frame | audio | behavior | heartbeat
	Type string `json:"type"`

	// behavior only
	EventType string `json:"event_type,omitempty"`

	// client clock; numeric (unix s/ms) or string; both tolerated
	Timestamp interface{} `json:"timestamp,omitempty"`

	// opaque payload, forwarded unmodified for frame/audio
	Data json.RawMessage `json:"data,omitempty"`
}

type outboundAnalysisEnvelope struct {
	SessionID  uuid.UUID       `json:"session_id"`
	Kind       string          `json:"kind"`
	EventType  string          `json:"event_type,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
	Data       json.RawMessage `json:"data,omitempty"`
}

/* =========================
   Connection loop
   ========================= */

// Handler serves /ws/sessions/:id. The connection doubles as the student's
// notification channel, so warnings flow back on the same socket.
func (g *Gateway) Handler() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		sessionID, err := uuid.Parse(c.Params("id"))
		if err != nil {
			log.Printf("[GATEWAY] bad session id %q, closing", c.Params("id"))
			_ = c.Close()
			return
		}

		ctx := context.Background()
		elig, err := g.Lifecycle.CheckEligibility(ctx, sessionID)
		if err != nil || !elig.Eligible {
			log.Printf("[GATEWAY] refusing channel session=%s reason=%s err=%v", sessionID, elig.Reason, err)
			_ = c.Close()
			return
		}

		cl := g.Hub.RegisterStudent(sessionID, c)
		defer g.Hub.UnregisterStudent(sessionID, cl)
		defer g.Presence.Drop(ctx, sessionID)

		log.Printf("[GATEWAY] channel open session=%s", sessionID)
		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				log.Printf("[GATEWAY] channel closed session=%s: %v", sessionID, err)
				return
			}
			g.handleMessage(ctx, sessionID, raw, time.Now().UTC())
		}
	})
}

// handleMessage processes one inbound message. All failure modes drop the
// message (fire-and-forget semantics); clients are not expected to retry.
func (g *Gateway) handleMessage(ctx context.Context, sessionID uuid.UUID, raw []byte, receivedAt time.Time) {
	var msg inboundMessage
	if err := sonic.Unmarshal(raw, &msg); err != nil {
		log.Printf("[GATEWAY] malformed message session=%s: %v", sessionID, err)
		return
	}

	// Re-checked on every message, never cached across messages.
	elig, err := g.Lifecycle.CheckEligibility(ctx, sessionID)
	if err != nil {
		log.Printf("[GATEWAY] eligibility check failed session=%s: %v", sessionID, err)
		return
	}
	if !elig.Eligible {
		log.Printf("[GATEWAY] dropped %s message session=%s reason=%s", msg.Type, sessionID, elig.Reason)
		return
	}

	switch strings.ToLower(msg.Type) {
	case "frame", "audio":
		g.forwardMedia(sessionID, strings.ToLower(msg.Type), msg.Data, receivedAt)
	case "behavior":
		g.handleBehavior(ctx, sessionID, msg, receivedAt)
	case "heartbeat":
		g.handleHeartbeat(ctx, sessionID)
	default:
		log.Printf("[GATEWAY] unknown message type %q session=%s", msg.Type, sessionID)
	}
}

// forwardMedia stamps the payload and hands it to the outbound queue.
// No ack: losing a single frame degrades detection recall, never state.
func (g *Gateway) forwardMedia(sessionID uuid.UUID, kind string, data json.RawMessage, receivedAt time.Time) {
	out, err := sonic.Marshal(outboundAnalysisEnvelope{
		SessionID:  sessionID,
		Kind:       kind,
		ReceivedAt: receivedAt,
		Data:       data,
	})
	if err != nil {
		log.Printf("[GATEWAY] media envelope marshal err session=%s: %v", sessionID, err)
		return
	}
	g.Publisher.Publish(g.MediaTopic, sessionID.String(), out)
}

// handleBehavior persists the raw telemetry row (the durability point), runs
// the quick rules synchronously, then forwards for deeper classification.
func (g *Gateway) handleBehavior(ctx context.Context, sessionID uuid.UUID, msg inboundMessage, receivedAt time.Time) {
	eventType := evmodel.BehaviorEventType(strings.ToUpper(strings.TrimSpace(msg.EventType)))
	if eventType == "" {
		log.Printf("[GATEWAY] behavior message without event_type session=%s", sessionID)
		return
	}

	occurredAt := parseClientTime(msg.Timestamp, receivedAt)

	event := evmodel.BehaviorEventModel{
		BehaviorEventSessionID:  sessionID,
		BehaviorEventType:       eventType,
		BehaviorEventOccurredAt: occurredAt,
	}
	if len(msg.Data) > 0 {
		event.BehaviorEventPayload = datatypes.JSON(msg.Data)
	}
	if err := g.DB.WithContext(ctx).Create(&event).Error; err != nil {
		log.Printf("[GATEWAY] behavior persist failed session=%s: %v", sessionID, err)
		return
	}

	if _, err := g.QuickRules.Evaluate(ctx, sessionID, eventType); err != nil {
		// advisory path only; the event row is already durable
		log.Printf("[GATEWAY] quick rules failed session=%s: %v", sessionID, err)
	}

	out, err := sonic.Marshal(outboundAnalysisEnvelope{
		SessionID:  sessionID,
		Kind:       "behavior",
		EventType:  string(eventType),
		ReceivedAt: receivedAt,
		Data:       msg.Data,
	})
	if err != nil {
		log.Printf("[GATEWAY] behavior envelope marshal err session=%s: %v", sessionID, err)
		return
	}
	g.Publisher.Publish(g.BehaviorTopic, sessionID.String(), out)
}

func (g *Gateway) handleHeartbeat(ctx context.Context, sessionID uuid.UUID) {
	if err := g.Lifecycle.Heartbeat(ctx, sessionID); err != nil {
		// a heartbeat losing to a concurrent suspend is expected; drop it
		log.Printf("[GATEWAY] heartbeat dropped session=%s: %v", sessionID, err)
		return
	}
	g.Presence.Refresh(ctx, sessionID)
}

/* =========================
   Client clock parsing
   ========================= */

// parseClientTime tolerates numeric-or-string encodings; anything malformed
// falls back to receipt time.
func parseClientTime(v interface{}, fallback time.Time) time.Time {
	switch t := v.(type) {
	case float64:
		return unixFlexible(int64(t), fallback)
	case int64:
		return unixFlexible(t, fallback)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return fallback
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return unixFlexible(n, fallback)
		}
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			return ts.UTC()
		}
		return fallback
	default:
		return fallback
	}
}

// unixFlexible: values past year ~2286 in seconds are treated as millis.
func unixFlexible(n int64, fallback time.Time) time.Time {
	if n <= 0 {
		return fallback
	}
	if n > 1e12 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}
