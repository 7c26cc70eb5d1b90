package ws

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"chatcore/internal/domain"
)

var fanoutTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "chatcore",
	Name:      "fanout_events_total",
	Help:      "Push events handed to the hub, by event type and outcome.",
}, []string{"event", "result"})

// Channel is a live, writable connection to one user.
type Channel interface {
	ID() string
	WriteJSON(v any) error
	Close() error
}

// Hub is the presence registry: it maps each user to at most one live
// channel and delivers push events to it. Presence is best effort; a
// user is reachable from SetConnected until the channel is replaced or
// disconnected.
type Hub struct {
	mu        sync.RWMutex
	byUser    map[string]Channel
	byChannel map[string]string
	log       *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		byUser:    make(map[string]Channel),
		byChannel: make(map[string]string),
		log:       log.Named("hub"),
	}
}

// SetConnected makes ch the user's live channel. It returns the channel it
// replaced, if any, so the caller can close it.
func (h *Hub) SetConnected(userID string, ch Channel) (replaced Channel) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if prev, ok := h.byUser[userID]; ok {
		if prev.ID() == ch.ID() {
			return nil
		}
		delete(h.byChannel, prev.ID())
		replaced = prev
	}
	h.byUser[userID] = ch
	h.byChannel[ch.ID()] = userID
	return replaced
}

// SetDisconnected forgets channelID and returns the user that held it.
// Unknown or already replaced channels are ignored.
func (h *Hub) SetDisconnected(channelID string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	userID, ok := h.byChannel[channelID]
	if !ok {
		h.log.Debug("disconnect of unknown channel", zap.String("channel_id", channelID))
		return "", false
	}
	delete(h.byChannel, channelID)
	if cur, ok := h.byUser[userID]; ok && cur.ID() == channelID {
		delete(h.byUser, userID)
	}
	return userID, true
}

// IsReachable returns the user's live channel, if any.
func (h *Hub) IsReachable(userID string) (Channel, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ch, ok := h.byUser[userID]
	return ch, ok
}

// Online returns the number of users with a live channel.
func (h *Hub) Online() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser)
}

// Dispatch writes ev to the user's channel once. An offline user or a
// failed write drops the event; nothing is queued or retried.
func (h *Hub) Dispatch(userID string, ev domain.Event) bool {
	ch, ok := h.IsReachable(userID)
	if !ok {
		fanoutTotal.WithLabelValues(ev.Type, "offline").Inc()
		return false
	}
	if err := ch.WriteJSON(ev); err != nil {
		fanoutTotal.WithLabelValues(ev.Type, "write_error").Inc()
		h.log.Warn("push write failed",
			zap.String("user_id", userID),
			zap.String("channel_id", ch.ID()),
			zap.String("event", ev.Type),
			zap.Error(err))
		return false
	}
	fanoutTotal.WithLabelValues(ev.Type, "delivered").Inc()
	return true
}
