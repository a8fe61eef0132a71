package ws

import (
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestClient(hub *Hub, channel, id string, buf int) *Client {
	return &Client{
		hub:     hub,
		channel: channel,
		id:      id,
		send:    make(chan []byte, buf),
	}
}

func receive(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case msg := <-c.send:
		var env Envelope
		require.NoError(t, json.Unmarshal(msg, &env))
		return env
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for frame")
		return Envelope{}
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub([]string{"users", "posts"}, testLogger())

	assert.NotNil(t, hub)
	assert.True(t, hub.Allowed("users"))
	assert.True(t, hub.Allowed("posts"))
	assert.False(t, hub.Allowed("nope"))
}

func TestHub_AddAndRemoveClient(t *testing.T) {
	hub := NewHub([]string{"users"}, testLogger())
	go hub.Run()

	client := newTestClient(hub, "users", "client_a", 4)

	hub.register <- client
	time.Sleep(50 * time.Millisecond)

	stats := hub.Stats()
	assert.Equal(t, 1, stats.TotalConnections)
	assert.Equal(t, 1, stats.Channels["users"])

	env := receive(t, client)
	assert.Equal(t, FrameConnection, env.Type)
	assert.Equal(t, "users", env.Channel)
	assert.Equal(t, "client_a", env.ClientID)

	hub.unregister <- client
	time.Sleep(50 * time.Millisecond)

	stats = hub.Stats()
	assert.Equal(t, 0, stats.TotalConnections)
	assert.Equal(t, 0, stats.TotalChannels)
}

func TestHub_DuplicateClientIDsRenamed(t *testing.T) {
	hub := NewHub([]string{"users"}, testLogger())
	go hub.Run()

	first := newTestClient(hub, "users", "client_a", 4)
	second := newTestClient(hub, "users", "client_a", 4)

	hub.register <- first
	hub.register <- second
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, "client_a", first.id)
	assert.Equal(t, "client_a_1", second.id)
}

func TestHub_BroadcastToChannel(t *testing.T) {
	hub := NewHub([]string{"users"}, testLogger())
	go hub.Run()

	client := newTestClient(hub, "users", "client_a", 8)
	hub.register <- client
	time.Sleep(50 * time.Millisecond)
	receive(t, client) // connection frame

	ch := NewChannel(hub, "users")
	ch.BroadcastCreated(map[string]string{"name": "ada"})
	time.Sleep(50 * time.Millisecond)

	env := receive(t, client)
	assert.Equal(t, FrameCreated, env.Type)
	assert.Equal(t, "users", env.Model)
	assert.Equal(t, "users", env.Channel)
}

func TestHub_ChannelIsolation(t *testing.T) {
	hub := NewHub([]string{"users", "posts"}, testLogger())
	go hub.Run()

	userClient := newTestClient(hub, "users", "client_a", 8)
	postClient := newTestClient(hub, "posts", "client_b", 8)

	hub.register <- userClient
	hub.register <- postClient
	time.Sleep(50 * time.Millisecond)
	receive(t, userClient)
	receive(t, postClient)

	NewChannel(hub, "users").BroadcastUpdated(map[string]string{"name": "ada"})
	time.Sleep(50 * time.Millisecond)

	env := receive(t, userClient)
	assert.Equal(t, FrameUpdated, env.Type)

	select {
	case <-postClient.send:
		t.Fatal("posts client should not see users frames")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_BroadcastDeletedCarriesID(t *testing.T) {
	hub := NewHub([]string{"posts"}, testLogger())
	go hub.Run()

	client := newTestClient(hub, "posts", "client_a", 8)
	hub.register <- client
	time.Sleep(50 * time.Millisecond)
	receive(t, client)

	NewChannel(hub, "posts").BroadcastDeleted(42)
	time.Sleep(50 * time.Millisecond)

	env := receive(t, client)
	assert.Equal(t, FrameDeleted, env.Type)
	data, ok := env.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(42), data["id"])
}

func TestClient_SlowConsumerDropsOldest(t *testing.T) {
	hub := NewHub([]string{"users"}, testLogger())

	client := newTestClient(hub, "users", "client_a", 2)
	client.enqueue([]byte("one"), testLogger())
	client.enqueue([]byte("two"), testLogger())
	client.enqueue([]byte("three"), testLogger())

	assert.Equal(t, "two", string(<-client.send))
	assert.Equal(t, "three", string(<-client.send))
}

func TestHub_Stats(t *testing.T) {
	hub := NewHub([]string{"users", "posts"}, testLogger())
	go hub.Run()

	hub.register <- newTestClient(hub, "users", "a", 4)
	hub.register <- newTestClient(hub, "users", "b", 4)
	hub.register <- newTestClient(hub, "posts", "c", 4)
	time.Sleep(50 * time.Millisecond)

	stats := hub.Stats()
	assert.Equal(t, 2, stats.TotalChannels)
	assert.Equal(t, 3, stats.TotalConnections)
	assert.Equal(t, 2, stats.Channels["users"])
	assert.Equal(t, 1, stats.Channels["posts"])
}
