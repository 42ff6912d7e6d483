package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/vocalingo/core/internal/modules/evaluation"
	pkgredis "github.com/vocalingo/core/internal/pkg/redis"
	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"
)

func NewHub(rc *pkgredis.Client, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		sidUser:    make(map[string]string),
		userCount:  make(map[string]int),
		broadcast:  make(chan Message, 256),
		register:   make(chan clientMeta, 256),
		unregister: make(chan clientMeta, 256),
		node:       newNodeID(),
		rc:         rc,
		logger:     logger.Named("Gateway"),
		sio:        socketio.NewServer(nil, nil),
	}
	h.deliver = h.emitRoom
	h.registerNamespaces()
	return h
}

// Run starts the hub loop and Redis subscriber. It returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	ready := make(chan struct{})
	go h.subscribeRedis(ctx, ready)
	<-ready

	for {
		select {
		case <-ctx.Done():
			h.sio.Close(nil)
			return

		case c := <-h.register:
			h.registerClient(c)

		case c := <-h.unregister:
			h.unregisterClient(c)

		case msg := <-h.broadcast:
			h.deliver(msg)
			data, err := json.Marshal(msg)
			if err != nil {
				h.logger.Warn("gateway encode failed", zap.String("event", msg.Event), zap.Error(err))
				continue
			}
			if err := h.rc.Publish(ctx, redisChanUser, string(data)); err != nil {
				h.logger.Warn("gateway publish failed", zap.String("channel", redisChanUser), zap.Error(err))
			}
		}
	}
}

func (h *Hub) registerClient(c clientMeta) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sidUser[c.sid]; ok {
		return
	}
	h.sidUser[c.sid] = c.userID
	h.userCount[c.userID]++
}

func (h *Hub) unregisterClient(c clientMeta) {
	h.mu.Lock()
	defer h.mu.Unlock()
	userID, ok := h.sidUser[c.sid]
	if !ok {
		return
	}
	delete(h.sidUser, c.sid)
	if h.userCount[userID] <= 1 {
		delete(h.userCount, userID)
		return
	}
	h.userCount[userID]--
}

// EmitToUser queues an event for every socket of the user, on this instance
// and, through Redis, on the others.
func (h *Hub) EmitToUser(ctx context.Context, userID, event string, payload interface{}) error {
	msg := Message{Event: event, Payload: payload, Room: RoomOf(userID), Origin: h.node}
	select {
	case h.broadcast <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Notify forwards evaluation progress to the submitting user.
func (h *Hub) Notify(ctx context.Context, userID string, event evaluation.ProgressEvent) error {
	return h.EmitToUser(ctx, userID, evaluation.ProgressEventName, event)
}

// ClientCount returns the number of connected sockets, for one user or all.
func (h *Hub) ClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if userID == "" {
		return len(h.sidUser)
	}
	return h.userCount[userID]
}

// Users returns how many distinct users are connected to this instance.
func (h *Hub) Users() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userCount)
}

func (h *Hub) emitRoom(msg Message) {
	_ = h.sio.Of(NamespacePractice, nil).To(socketio.Room(msg.Room)).Emit(msg.Event, gatewayPayload{Type: msg.Event, Data: msg.Payload})
}

// subscribeRedis delivers messages published by other instances. Messages
// from this node were already delivered by Run.
func (h *Hub) subscribeRedis(ctx context.Context, ready chan<- struct{}) {
	pubsub := h.rc.Subscribe(ctx, redisChanUser)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		h.logger.Warn("gateway subscribe failed", zap.Error(err))
	}
	close(ready)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return

		case redisMsg, ok := <-ch:
			if !ok {
				return
			}
			var msg Message
			if err := json.Unmarshal([]byte(redisMsg.Payload), &msg); err != nil {
				h.logger.Debug("gateway dropped malformed message", zap.Error(err))
				continue
			}
			if msg.Origin == h.node || msg.Room == "" {
				continue
			}
			h.deliver(msg)
		}
	}
}

// Handler returns the socket.io HTTP handler mounted at /socket.io.
func (h *Hub) Handler() http.Handler {
	return h.sio.ServeHandler(nil)
}
