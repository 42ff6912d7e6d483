package gateway

import (
	"strings"

	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"
)

func (h *Hub) registerNamespaces() {
	practice := h.sio.Of(NamespacePractice, nil)
	_ = practice.On("connection", func(args ...any) {
		client, ok := args[0].(*socketio.Socket)
		if !ok {
			return
		}

		userID := extractUserID(client)
		if userID == "" {
			_ = client.Emit("message", gatewayPayload{Type: eventAuthFailed, Data: "missing user id"})
			client.Disconnect(true)
			return
		}

		sid := string(client.Id())
		client.Join(socketio.Room(RoomOf(userID)))
		h.register <- clientMeta{sid: sid, userID: userID}
		h.logger.Debug("practice client connected", zap.String("user", userID), zap.String("sid", sid))
		_ = client.Emit("message", gatewayPayload{Type: eventConnect, Data: "WebSocket connected"})

		_ = client.On("disconnect", func(_ ...any) {
			h.unregister <- clientMeta{sid: sid, userID: userID}
		})
	})
}

func extractUserID(client *socketio.Socket) string {
	handshake := client.Handshake()
	if handshake == nil {
		return ""
	}
	return userIDFromHandshake(handshake.Query, handshake.Headers)
}

func userIDFromHandshake(query, headers map[string][]string) string {
	if id := firstValueFromMultiMap(query, "userId"); id != "" {
		return id
	}
	return firstValueFromMultiMap(headers, "x-user-id")
}

func firstValueFromMultiMap(values map[string][]string, key string) string {
	if len(values) == 0 {
		return ""
	}
	for k, list := range values {
		if !strings.EqualFold(strings.TrimSpace(k), key) || len(list) == 0 {
			continue
		}
		v := strings.TrimSpace(list[0])
		if v != "" {
			return v
		}
	}
	return ""
}
