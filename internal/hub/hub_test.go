package hub

import (
	"encoding/json"
	"testing"
	"time"

	"challenge-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestClient создает клиента без реального соединения: пампы в тестах не
// запускаются, проверяется только маршрутизация сообщений.
func newTestClient(ownerID string) *Client {
	return &Client{OwnerID: ownerID, send: make(chan []byte, sendBufferSize)}
}

func (h *Hub) waitRegistered(t *testing.T, client *Client) {
	t.Helper()
	require.Eventually(t, func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		_, ok := h.clients[client]
		return ok
	}, time.Second, 5*time.Millisecond)
}

func receiveEnvelope(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case raw := <-c.send:
		var env Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return Envelope{}
	}
}

func TestHub_RecordsGoOnlyToOwner(t *testing.T) {
	h := NewHub(zap.NewNop())

	alice := newTestClient("alice")
	bob := newTestClient("bob")
	h.Register(alice)
	h.Register(bob)
	h.waitRegistered(t, alice)
	h.waitRegistered(t, bob)

	h.NotifyOwnerRecords("alice", []*models.ChallengeRecord{
		{OwnerID: "alice", Day: 1, Date: "November 1, 2025"},
	})

	env := receiveEnvelope(t, alice)
	assert.Equal(t, MessageTypeRecords, env.Type)

	var records []*models.ChallengeRecord
	require.NoError(t, json.Unmarshal(env.Data, &records))
	require.Len(t, records, 1)
	assert.Equal(t, "alice", records[0].OwnerID)

	// Чужие приватные записи до боба не доходят.
	select {
	case msg := <-bob.send:
		t.Fatalf("bob received unexpected message: %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_StatusesGoToEveryone(t *testing.T) {
	h := NewHub(zap.NewNop())

	alice := newTestClient("alice")
	bob := newTestClient("bob")
	h.Register(alice)
	h.Register(bob)
	h.waitRegistered(t, alice)
	h.waitRegistered(t, bob)

	h.NotifyPublicStatuses([]*models.PublicStatus{
		{OwnerID: "alice", Day: 1, Status: models.DailyStatusComplete},
	})

	for _, c := range []*Client{alice, bob} {
		env := receiveEnvelope(t, c)
		assert.Equal(t, MessageTypeStatuses, env.Type)
	}
}

func TestHub_SlowSubscriberIsDropped(t *testing.T) {
	h := NewHub(zap.NewNop())

	slow := newTestClient("slow")
	h.Register(slow)
	h.waitRegistered(t, slow)

	// Забиваем очередь до отказа.
	for i := 0; i < sendBufferSize; i++ {
		slow.send <- []byte("backlog")
	}

	h.NotifyPublicStatuses([]*models.PublicStatus{{OwnerID: "x", Day: 1}})

	h.mu.RLock()
	_, stillThere := h.clients[slow]
	h.mu.RUnlock()
	assert.False(t, stillThere, "slow subscriber should be dropped")
}

func TestHub_AnalysisChunksGoOnlyToOwner(t *testing.T) {
	h := NewHub(zap.NewNop())

	alice := newTestClient("alice")
	bob := newTestClient("bob")
	h.Register(alice)
	h.Register(bob)
	h.waitRegistered(t, alice)
	h.waitRegistered(t, bob)

	h.NotifyAnalysisChunk("alice", "summary", "first chunk", false)
	h.NotifyAnalysisChunk("alice", "summary", "", true)

	env := receiveEnvelope(t, alice)
	assert.Equal(t, MessageTypeAnalysisChunk, env.Type)

	var payload AnalysisChunkPayload
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, "summary", payload.Mode)
	assert.Equal(t, "first chunk", payload.Text)
	assert.False(t, payload.Done)

	final := receiveEnvelope(t, alice)
	require.NoError(t, json.Unmarshal(final.Data, &payload))
	assert.True(t, payload.Done)

	select {
	case msg := <-bob.send:
		t.Fatalf("bob received unexpected message: %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_StopDisconnectsSubscribers(t *testing.T) {
	h := NewHub(zap.NewNop())

	c := newTestClient("alice")
	h.Register(c)
	h.waitRegistered(t, c)

	h.Stop()

	// Очередь подписчика закрыта, writePump отправит CloseMessage и выйдет.
	_, open := <-c.send
	assert.False(t, open)

	h.mu.RLock()
	remaining := len(h.clients)
	h.mu.RUnlock()
	assert.Zero(t, remaining)

	// Повторная остановка и поздняя регистрация не блокируются и не паникуют.
	h.Stop()
	h.Register(newTestClient("late"))
	h.NotifyPublicStatuses([]*models.PublicStatus{{OwnerID: "x", Day: 1}})
}

func TestHub_SendInitialSnapshots(t *testing.T) {
	h := NewHub(zap.NewNop())

	c := newTestClient("alice")
	h.Register(c)
	h.waitRegistered(t, c)

	h.SendInitialSnapshots(c,
		[]*models.ChallengeRecord{{OwnerID: "alice", Day: 1}},
		[]*models.PublicStatus{{OwnerID: "alice", Day: 1, Status: models.DailyStatusComplete}},
	)

	first := receiveEnvelope(t, c)
	second := receiveEnvelope(t, c)
	assert.Equal(t, MessageTypeRecords, first.Type)
	assert.Equal(t, MessageTypeStatuses, second.Type)
}
