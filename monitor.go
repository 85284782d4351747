package nebula

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Monitor broadcasts per-frame stats as JSON over a websocket endpoint, so a
// browser or script can watch the simulation without touching the frame loop.
// Publish never blocks the frame: subscribers that fall behind lose frames.
type Monitor struct {
	log      Logger
	upgrader websocket.Upgrader
	server   *http.Server

	mu   sync.Mutex
	subs map[chan FrameStats]struct{}
}

func NewMonitor(addr string, log Logger) *Monitor {
	if log == nil {
		log = NewNopLogger()
	}
	m := &Monitor{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		subs: make(map[chan FrameStats]struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", m.wsHandler)
	m.server = &http.Server{Addr: addr, Handler: mux}
	return m
}

// Start listens in the background. The returned error only covers immediate
// startup failures observed by ListenAndServe.
func (m *Monitor) Start() {
	go func() {
		m.log.Infof("monitor listening on %s", m.server.Addr)
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.log.Errorf("monitor server: %v", err)
		}
	}()
}

func (m *Monitor) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return m.server.Shutdown(ctx)
}

// Publish fans the stats out to all connected subscribers.
func (m *Monitor) Publish(stats FrameStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for sub := range m.subs {
		select {
		case sub <- stats:
		default:
			// Slow client; skip this frame for it.
		}
	}
}

// SubscriberCount is exposed for tests and status displays.
func (m *Monitor) SubscriberCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

func (m *Monitor) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.log.Warnf("websocket upgrade: %v", err)
		return
	}

	sub := make(chan FrameStats, 16)
	m.mu.Lock()
	m.subs[sub] = struct{}{}
	m.mu.Unlock()

	m.log.Debugf("monitor subscriber connected: %s", r.RemoteAddr)

	defer func() {
		m.mu.Lock()
		delete(m.subs, sub)
		m.mu.Unlock()
		conn.Close()
	}()

	// Drain incoming messages so pings and close frames are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for stats := range sub {
		if err := conn.WriteJSON(stats); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.log.Warnf("monitor write: %v", err)
			}
			return
		}
	}
}
