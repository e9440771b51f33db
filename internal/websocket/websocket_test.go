package websocket

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func dial(t *testing.T, url string) *ws.Conn {
	t.Helper()
	conn, _, err := ws.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http"), nil)
	require.NoError(t, err)
	return conn
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Count() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcastReachesClients(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	a := dial(t, srv.URL)
	defer a.Close()
	b := dial(t, srv.URL)
	defer b.Close()
	waitForClients(t, hub, 2)

	hub.BroadcastChange("sales_order", "confirm", "SO-2026-0001", "CONFIRMED")

	for _, c := range []*ws.Conn{a, b} {
		var evt Event
		c.SetReadDeadline(time.Now().Add(2 * time.Second))
		require.NoError(t, c.ReadJSON(&evt))
		assert.Equal(t, "sales_order", evt.Type)
		assert.Equal(t, "SO-2026-0001", evt.ID)
		assert.Equal(t, "CONFIRMED", evt.Status)
	}
}

func TestClientDisconnectUnregisters(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	c := dial(t, srv.URL)
	waitForClients(t, hub, 1)
	c.Close()
	waitForClients(t, hub, 0)
}

func TestCloseDisconnectsEveryone(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	c := dial(t, srv.URL)
	defer c.Close()
	waitForClients(t, hub, 1)

	hub.Close()
	assert.Equal(t, 0, hub.Count())

	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := c.ReadMessage()
	assert.Error(t, err)
}
