package ws

import (
	"context"

	"go.uber.org/zap"

	"chatcore/internal/domain"
)

// Presence keeps the hub and the persisted connection flag in step. Store
// failures are logged and never block a connection.
type Presence struct {
	hub   *Hub
	users domain.UserRepository
	log   *zap.Logger
}

func NewPresence(hub *Hub, users domain.UserRepository, log *zap.Logger) *Presence {
	return &Presence{hub: hub, users: users, log: log.Named("presence")}
}

// Connect registers ch for userID, closing a channel it replaces.
func (p *Presence) Connect(ctx context.Context, userID string, ch Channel) {
	if prev := p.hub.SetConnected(userID, ch); prev != nil {
		p.log.Info("replacing live channel",
			zap.String("user_id", userID),
			zap.String("old_channel_id", prev.ID()),
			zap.String("channel_id", ch.ID()))
		_ = prev.Close()
	}
	id := ch.ID()
	if err := p.users.SetPresence(ctx, userID, &id); err != nil {
		p.log.Warn("persist connect", zap.String("user_id", userID), zap.Error(err))
	}
}

func (p *Presence) Disconnect(ctx context.Context, channelID string) {
	userID, ok := p.hub.SetDisconnected(channelID)
	if err := p.users.ClearChannel(ctx, channelID); err != nil {
		p.log.Warn("persist disconnect", zap.String("channel_id", channelID), zap.Error(err))
	}
	if ok {
		p.log.Debug("disconnected", zap.String("user_id", userID), zap.String("channel_id", channelID))
	}
}
