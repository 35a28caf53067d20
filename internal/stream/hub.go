package stream

import (
	"context"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Hub fans walk session updates out to connected viewers. Position fixes,
// lock events and settlement prompts all flow through it. When Redis is
// configured, broadcasts are also published so other instances can relay
// them to their own viewers.
type Hub struct {
	redis   *redis.Client
	viewers map[string]map[*Viewer]struct{}
	mu      sync.RWMutex
}

// Viewer is one websocket subscriber of a single walk session.
type Viewer struct {
	SessionID string
	Send      chan []byte
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		redis:   redisClient,
		viewers: map[string]map[*Viewer]struct{}{},
	}

	if redisClient != nil {
		go h.subscribeRedis()
	}
	return h
}

func (h *Hub) Register(sessionID string) *Viewer {
	v := &Viewer{
		SessionID: sessionID,
		Send:      make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.viewers[sessionID] == nil {
		h.viewers[sessionID] = map[*Viewer]struct{}{}
	}
	h.viewers[sessionID][v] = struct{}{}
	return v
}

func (h *Hub) Unregister(v *Viewer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sessionViewers, ok := h.viewers[v.SessionID]; ok {
		delete(sessionViewers, v)
		if len(sessionViewers) == 0 {
			delete(h.viewers, v.SessionID)
		}
	}
	close(v.Send)
}

// Broadcast delivers payload to every viewer of the session. With Redis
// configured the payload goes through pub/sub and every instance, this
// one included, hands it to its viewers from the subscription loop, so
// nobody sees it twice. Without Redis it is delivered directly.
func (h *Hub) Broadcast(sessionID string, payload []byte) {
	if h.redis != nil {
		err := h.redis.Publish(context.Background(), redisChannel(sessionID), payload).Err()
		if err == nil {
			return
		}
		// Local viewers still get the update when Redis is down.
		log.Printf("redis publish error: %v", err)
	}
	h.deliver(sessionID, payload)
}

// deliver pushes to every viewer of the session. Slow viewers are
// skipped rather than blocking the walk pipeline.
func (h *Hub) deliver(sessionID string, payload []byte) {
	h.mu.RLock()
	viewers := h.viewers[sessionID]
	h.mu.RUnlock()

	for v := range viewers {
		select {
		case v.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis() {
	ctx := context.Background()
	// The channel name carries the session id, so this must be a pattern
	// subscription; a plain Subscribe would match the glob literally.
	pubsub := h.redis.PSubscribe(ctx, "walk:*:updates")
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		h.deliver(sessionIDFromChannel(msg.Channel), []byte(msg.Payload))
	}
}

func redisChannel(sessionID string) string {
	return "walk:" + sessionID + ":updates"
}

func sessionIDFromChannel(ch string) string {
	// walk:{session}:updates
	const prefix = "walk:"
	const suffix = ":updates"
	if len(ch) <= len(prefix)+len(suffix) {
		return ""
	}
	return ch[len(prefix) : len(ch)-len(suffix)]
}
