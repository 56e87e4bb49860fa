package dispatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/emergency-dispatch/internal/models"
)

func TestWSRegistry_PublishReachesViewers(t *testing.T) {
	reg := NewWSRegistry(nil)
	registered := make(chan struct{})
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		reg.Add("r1", conn)
		close(registered)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()

	select {
	case <-registered:
	case <-time.After(2 * time.Second):
		t.Fatal("session not registered")
	}
	assert.Equal(t, 1, reg.Count("r1"))

	eta := 8
	ev := models.StatusEvent{RequestID: "r1", Seq: 3, Snapshot: models.Snapshot{State: models.StatusEnRoute, ETAMinutes: &eta}}
	require.NoError(t, reg.Publish(context.Background(), ev))

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got models.StatusEvent
	require.NoError(t, client.ReadJSON(&got))
	assert.Equal(t, models.StatusEnRoute, got.Snapshot.State)
	require.NotNil(t, got.Snapshot.ETAMinutes)
	assert.Equal(t, 8, *got.Snapshot.ETAMinutes)

	// other requests have no viewers
	assert.NoError(t, reg.Publish(context.Background(), models.StatusEvent{RequestID: "r2"}))
}
