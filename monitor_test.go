package nebula

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialMonitor(t *testing.T, m *Monitor) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(m.wsHandler))
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func waitForSubscribers(t *testing.T, m *Monitor, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for m.SubscriberCount() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d subscribers, have %d", n, m.SubscriberCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMonitorDeliversStats(t *testing.T) {
	m := NewMonitor(":0", nil)
	conn, done := dialMonitor(t, m)
	defer done()

	waitForSubscribers(t, m, 1)

	sent := FrameStats{Frame: 42, Live: 1000, Emitted: 128, Dropped: 3, Expired: 60, Dt: 0.016}
	m.Publish(sent)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got FrameStats
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, sent, got)
}

func TestMonitorPublishWithoutSubscribers(t *testing.T) {
	m := NewMonitor(":0", nil)
	// Must not block or panic with nobody listening.
	for i := 0; i < 100; i++ {
		m.Publish(FrameStats{Frame: uint64(i)})
	}
	assert.Equal(t, 0, m.SubscriberCount())
}

func TestMonitorDropsFramesForSlowClient(t *testing.T) {
	m := NewMonitor(":0", nil)
	conn, done := dialMonitor(t, m)
	defer done()

	waitForSubscribers(t, m, 1)

	// Flood far past the subscriber channel depth without reading; Publish
	// must never block the frame loop.
	published := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			m.Publish(FrameStats{Frame: uint64(i)})
		}
		close(published)
	}()

	select {
	case <-published:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow client")
	}

	// The connection still works; whatever is buffered is readable.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got FrameStats
	require.NoError(t, conn.ReadJSON(&got))
}

func TestMonitorSubscriberCleanup(t *testing.T) {
	m := NewMonitor(":0", nil)
	conn, done := dialMonitor(t, m)

	waitForSubscribers(t, m, 1)
	conn.Close()

	// Disconnect is only observed on the next write.
	deadline := time.Now().Add(2 * time.Second)
	for m.SubscriberCount() > 0 {
		m.Publish(FrameStats{})
		if time.Now().After(deadline) {
			t.Fatal("subscriber never cleaned up after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
	done()
}
