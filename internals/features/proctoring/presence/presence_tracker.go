// file: internals/features/proctoring/presence/presence_tracker.go
package presence

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"examproctor_backend/internals/configs"
)

/* =========================================================
   PRESENCE TRACKER
   Ephemeral "session is alive" keys with a rolling TTL,
   refreshed by heartbeats. Redis outages degrade liveness
   reporting only; they never fail the heartbeat itself.
========================================================= */

type Tracker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewTracker() *Tracker {
	rdb := redis.NewClient(&redis.Options{
		Addr:     configs.RedisAddr,
		Password: configs.RedisPassword,
	})
	return &Tracker{rdb: rdb, ttl: configs.PresenceTTL}
}

// NewTrackerWithClient: used by tests / custom wiring.
func NewTrackerWithClient(rdb *redis.Client, ttl time.Duration) *Tracker {
	return &Tracker{rdb: rdb, ttl: ttl}
}

func key(sessionID uuid.UUID) string {
	return "presence:session:" + sessionID.String()
}

// Refresh resets the rolling TTL window for the session.
func (t *Tracker) Refresh(ctx context.Context, sessionID uuid.UUID) {
	if err := t.rdb.Set(ctx, key(sessionID), time.Now().UTC().Format(time.RFC3339), t.ttl).Err(); err != nil {
		log.Printf("[PRESENCE] refresh failed session=%s: %v", sessionID, err)
	}
}

// Alive reports whether the session's presence key still exists.
func (t *Tracker) Alive(ctx context.Context, sessionID uuid.UUID) bool {
	n, err := t.rdb.Exists(ctx, key(sessionID)).Result()
	if err != nil {
		log.Printf("[PRESENCE] exists failed session=%s: %v", sessionID, err)
		return false
	}
	return n > 0
}

// Drop removes the presence key (session submitted / channel closed).
func (t *Tracker) Drop(ctx context.Context, sessionID uuid.UUID) {
	if err := t.rdb.Del(ctx, key(sessionID)).Err(); err != nil {
		log.Printf("[PRESENCE] drop failed session=%s: %v", sessionID, err)
	}
}
