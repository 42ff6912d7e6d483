package gateway

import (
	"sync"

	"github.com/google/uuid"
	pkgredis "github.com/vocalingo/core/internal/pkg/redis"
	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"
)

const (
	NamespacePractice = "/practice"
	redisChanUser     = "vocalingo:gateway:user"

	eventConnect    = "GATEWAY_CONNECT"
	eventAuthFailed = "AUTH_FAILED"
)

// Message is the envelope used by hub broadcasts and Redis fan-out.
type Message struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
	Room    string      `json:"room"`
	Origin  string      `json:"origin"`
}

type gatewayPayload struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type clientMeta struct {
	sid    string
	userID string
}

// Hub owns the practice namespace and fans user-scoped events out to every
// instance through Redis.
type Hub struct {
	mu sync.RWMutex

	sidUser   map[string]string
	userCount map[string]int

	broadcast  chan Message
	register   chan clientMeta
	unregister chan clientMeta

	node    string
	rc      *pkgredis.Client
	logger  *zap.Logger
	sio     *socketio.Server
	deliver func(Message)
}

func RoomOf(userID string) string {
	return "user:" + userID
}

func newNodeID() string {
	return uuid.NewString()
}
