package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vocalingo/core/internal/modules/evaluation"
	"github.com/vocalingo/core/internal/pkg/redis/redistest"
)

type delivered struct {
	mu   sync.Mutex
	msgs []Message
}

func (d *delivered) record(m Message) {
	d.mu.Lock()
	d.msgs = append(d.msgs, m)
	d.mu.Unlock()
}

func (d *delivered) snapshot() []Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Message(nil), d.msgs...)
}

func startHub(t *testing.T, h *Hub) *delivered {
	t.Helper()
	d := &delivered{}
	h.deliver = d.record
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return d
}

func TestEmitToUserFansOutOnce(t *testing.T) {
	rc, _ := redistest.New(t)
	a := NewHub(rc, nil)
	b := NewHub(rc, nil)
	gotA := startHub(t, a)
	gotB := startHub(t, b)

	require.NoError(t, a.EmitToUser(context.Background(), "alice", "ping", map[string]int{"n": 1}))

	require.Eventually(t, func() bool { return len(gotB.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return len(gotA.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, gotA.snapshot(), 1, "own publish is not delivered twice")
	msg := gotB.snapshot()[0]
	assert.Equal(t, "user:alice", msg.Room)
	assert.Equal(t, "ping", msg.Event)
}

func TestNotifyUsesProgressEvent(t *testing.T) {
	rc, _ := redistest.New(t)
	h := NewHub(rc, nil)
	got := startHub(t, h)

	event := evaluation.ProgressEvent{JobID: "job-1", Status: evaluation.StatusEvaluating, Timestamp: time.Now()}
	require.NoError(t, h.Notify(context.Background(), "bob", event))

	require.Eventually(t, func() bool { return len(got.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	msg := got.snapshot()[0]
	assert.Equal(t, evaluation.ProgressEventName, msg.Event)
	assert.Equal(t, RoomOf("bob"), msg.Room)
	assert.Equal(t, event, msg.Payload)
}

func TestEmitRespectsContext(t *testing.T) {
	rc, _ := redistest.New(t)
	h := NewHub(rc, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < cap(h.broadcast); i++ {
		h.broadcast <- Message{}
	}
	require.ErrorIs(t, h.EmitToUser(ctx, "alice", "ping", nil), context.Canceled)
}

func TestClientCounts(t *testing.T) {
	rc, _ := redistest.New(t)
	h := NewHub(rc, nil)

	h.registerClient(clientMeta{sid: "s1", userID: "alice"})
	h.registerClient(clientMeta{sid: "s2", userID: "alice"})
	h.registerClient(clientMeta{sid: "s2", userID: "alice"})
	h.registerClient(clientMeta{sid: "s3", userID: "bob"})
	assert.Equal(t, 3, h.ClientCount(""))
	assert.Equal(t, 2, h.ClientCount("alice"))
	assert.Equal(t, 2, h.Users())

	h.unregisterClient(clientMeta{sid: "s3"})
	h.unregisterClient(clientMeta{sid: "missing"})
	assert.Equal(t, 0, h.ClientCount("bob"))
	assert.Equal(t, 1, h.Users())
}

func TestUserIDFromHandshake(t *testing.T) {
	assert.Equal(t, "alice", userIDFromHandshake(map[string][]string{"userId": {" alice "}}, nil))
	assert.Equal(t, "bob", userIDFromHandshake(nil, map[string][]string{"X-User-Id": {"bob"}}))
	assert.Equal(t, "alice", userIDFromHandshake(
		map[string][]string{"userid": {"alice"}},
		map[string][]string{"x-user-id": {"bob"}},
	), "query wins")
	assert.Empty(t, userIDFromHandshake(map[string][]string{"userId": {""}}, nil))
}
