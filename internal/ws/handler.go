package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"chatcore/internal/domain"
	"chatcore/internal/service"
	"chatcore/internal/visibility"
)

// Inbound operations.
const (
	OpSendMessage        = "send_message"
	OpEditMessage        = "edit_message"
	OpDeleteMessage      = "delete_message"
	OpDeleteConversation = "delete_conversation"
	OpCheckConnection    = "check_connection"
)

type Options struct {
	AllowedOrigins []string
	RatePerSec     float64
	RateBurst      int
}

type inbound struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id"`
	Payload   json.RawMessage `json:"payload"`
}

type ack struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	OK        bool   `json:"ok"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
}

type sendPayload struct {
	Receiver     string   `json:"receiver"`
	Text         string   `json:"text"`
	Type         string   `json:"type"`
	Status       string   `json:"status"`
	IsForwarded  bool     `json:"is_forwarded"`
	UsersRelated []string `json:"users_related"`
}

type editPayload struct {
	MessageID string `json:"message_id"`
	Text      string `json:"text"`
}

type deletePayload struct {
	MessageID string `json:"message_id"`
	Scope     string `json:"scope"`
}

type deleteConversationPayload struct {
	CounterpartID string `json:"counterpart_id"`
	Scope         string `json:"scope"`
}

type checkConnectionPayload struct {
	UserID string `json:"user_id"`
}

type deleteResult struct {
	Success bool   `json:"success"`
	Deleted *int64 `json:"deleted,omitempty"`
}

type wsAuthError struct {
	status int
	msg    string
}

func (e wsAuthError) Error() string {
	return e.msg
}

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimSpace(strings.ToLower(origin))
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

// makeCheckOrigin admits requests without an Origin header (non-browser
// clients) and browser requests from an allowed origin. "*" allows any.
func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)
	_, anyOrigin := allowed["*"]

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" || anyOrigin {
			return true
		}
		if _, ok := allowed[origin]; ok {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		normalized := strings.ToLower(fmt.Sprintf("%s://%s", u.Scheme, u.Host))
		_, ok := allowed[normalized]
		return ok
	}
}

func extractTokenFromWSRequest(r *http.Request) (string, error) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		token := strings.TrimSpace(authHeader[len("Bearer "):])
		if token != "" {
			return token, nil
		}
	}

	protocolHeader := r.Header.Get("Sec-WebSocket-Protocol")
	if protocolHeader != "" {
		parts := strings.Split(protocolHeader, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") {
			token := parts[1]
			if token != "" {
				return token, nil
			}
		}
	}

	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token, nil
	}

	return "", wsAuthError{status: http.StatusUnauthorized, msg: "missing bearer token"}
}

// MakeHandler returns an HTTP handler for the /ws endpoint.
// Authenticates via Bearer token (Authorization header, Sec-WebSocket-Protocol
// or ?token=), registers the connection with presence, then answers each
// inbound frame with an ack carrying the same request_id:
//   - send_message        -> store, push message_received to the receiver
//   - edit_message        -> update text, push message_edited
//   - delete_message      -> set delete flags, push message_deleted for everyone
//   - delete_conversation -> bulk delete, push conversation_cleared for everyone
//   - check_connection    -> report whether a user has a live channel
func MakeHandler(
	hub *Hub,
	presence *Presence,
	auth *service.AuthService,
	msgs *service.MessageService,
	opts Options,
	log *zap.Logger,
) http.HandlerFunc {
	log = log.Named("ws")
	checkOrigin := makeCheckOrigin(opts.AllowedOrigins)
	upgrader := websocket.Upgrader{
		CheckOrigin: checkOrigin,
		Subprotocols: []string{
			"bearer",
		},
	}
	rps, burst := opts.RatePerSec, opts.RateBurst
	if rps <= 0 {
		rps = 20
	}
	if burst <= 0 {
		burst = 40
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if !checkOrigin(r) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}

		tokenStr, err := extractTokenFromWSRequest(r)
		if err != nil {
			var authErr wsAuthError
			if errors.As(err, &authErr) {
				http.Error(w, authErr.msg, authErr.status)
				return
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := r.Context()
		user, err := auth.Authenticate(ctx, tokenStr)
		if err != nil {
			http.Error(w, "invalid token or inactive user", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug("upgrade failed", zap.Error(err))
			return
		}
		client := NewClient(conn)
		defer client.Close()

		clog := log.With(zap.String("user_id", user.ID), zap.String("channel_id", client.ID()))
		presence.Connect(ctx, user.ID, client)
		defer presence.Disconnect(context.Background(), client.ID())
		clog.Info("connected")

		done := make(chan struct{})
		defer close(done)
		go keepAlive(client, done)

		conn.SetReadLimit(maxMessageSize)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})

		d := &dispatcher{hub: hub, msgs: msgs, actorID: user.ID}
		limiter := rate.NewLimiter(rate.Limit(rps), burst)
		for {
			_, frame, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					clog.Debug("read failed", zap.Error(err))
				}
				break
			}

			var in inbound
			reply := ack{Type: "ack"}
			if err := json.Unmarshal(frame, &in); err != nil {
				reply.Error = "malformed frame"
			} else if reply.RequestID = in.RequestID; !limiter.Allow() {
				reply.Error = "rate limited"
			} else if data, err := d.handle(ctx, in); err != nil {
				reply.Error = errorText(err)
				if in.Type == OpDeleteMessage || in.Type == OpDeleteConversation {
					reply.Data = deleteResult{}
				}
				clog.Debug("op failed", zap.String("op", in.Type), zap.Error(err))
			} else {
				reply.OK = true
				reply.Data = data
			}
			if err := client.WriteJSON(reply); err != nil {
				clog.Debug("ack write failed", zap.Error(err))
				break
			}
		}
		clog.Info("disconnected")
	}
}

func keepAlive(c *Client, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}

// dispatcher routes one connection's inbound operations to the message
// service with the connection's user as the actor.
type dispatcher struct {
	hub     *Hub
	msgs    *service.MessageService
	actorID string
}

func (d *dispatcher) handle(ctx context.Context, in inbound) (any, error) {
	switch in.Type {
	case OpSendMessage:
		var p sendPayload
		if err := decode(in.Payload, &p); err != nil {
			return nil, err
		}
		return d.msgs.Send(ctx, d.actorID, service.SendInput{
			ReceiverID:   p.Receiver,
			Text:         p.Text,
			Type:         p.Type,
			Status:       p.Status,
			IsForwarded:  p.IsForwarded,
			UsersRelated: p.UsersRelated,
		})

	case OpEditMessage:
		var p editPayload
		if err := decode(in.Payload, &p); err != nil {
			return nil, err
		}
		return d.msgs.Edit(ctx, d.actorID, p.MessageID, p.Text)

	case OpDeleteMessage:
		var p deletePayload
		if err := decode(in.Payload, &p); err != nil {
			return nil, err
		}
		scope, err := visibility.ParseScope(p.Scope)
		if err != nil {
			return nil, err
		}
		if _, err := d.msgs.DeleteOne(ctx, d.actorID, p.MessageID, scope); err != nil {
			return nil, err
		}
		return deleteResult{Success: true}, nil

	case OpDeleteConversation:
		var p deleteConversationPayload
		if err := decode(in.Payload, &p); err != nil {
			return nil, err
		}
		scope, err := visibility.ParseScope(p.Scope)
		if err != nil {
			return nil, err
		}
		n, err := d.msgs.DeleteAll(ctx, d.actorID, p.CounterpartID, scope)
		if err != nil {
			return nil, err
		}
		return deleteResult{Success: true, Deleted: &n}, nil

	case OpCheckConnection:
		var p checkConnectionPayload
		if err := decode(in.Payload, &p); err != nil {
			return nil, err
		}
		if p.UserID == "" {
			p.UserID = d.actorID
		}
		_, ok := d.hub.IsReachable(p.UserID)
		return map[string]any{"user_id": p.UserID, "connected": ok}, nil

	default:
		return nil, fmt.Errorf("%w: unknown operation %q", domain.ErrInvalidInput, in.Type)
	}
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: bad payload: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

// errorText maps a service error to the short reason sent in an ack.
// Storage details stay in the logs.
func errorText(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return "not found"
	case errors.Is(err, domain.ErrForbidden):
		return "forbidden"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	default:
		return "internal error"
	}
}
