package server

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"uptimestrip/internal/models"
)

const (
	overviewPushInterval = 60 * time.Second
	overviewWriteTimeout = 5 * time.Second
)

var overviewUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := strings.ToLower(strings.TrimSpace(r.Host))
		originHost := strings.ToLower(strings.TrimSpace(u.Host))
		return host == originHost
	},
}

type overviewPayload struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Snapshots   []models.Snapshot `json:"snapshots"`
}

func (s *Server) buildOverview() overviewPayload {
	return overviewPayload{
		GeneratedAt: time.Now().UTC(),
		Snapshots:   s.source.Snapshot(),
	}
}

func (s *Server) handleOverviewWS(w http.ResponseWriter, r *http.Request) {
	conn, err := overviewUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.serveOverviewConnection(conn)
}

// serveOverviewConnection pushes the overview on connect, after every
// refresh and at least once per push interval until the peer goes away.
func (s *Server) serveOverviewConnection(conn *websocket.Conn) {
	defer conn.Close()

	updates, release := s.source.Subscribe()
	defer release()

	if err := writeOverviewPayload(conn, s.buildOverview()); err != nil {
		return
	}

	ticker := time.NewTicker(s.pushEvery)
	defer ticker.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-updates:
			if err := writeOverviewPayload(conn, s.buildOverview()); err != nil {
				return
			}
		case <-ticker.C:
			if err := writeOverviewPayload(conn, s.buildOverview()); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func writeOverviewPayload(conn *websocket.Conn, payload overviewPayload) error {
	_ = conn.SetWriteDeadline(time.Now().Add(overviewWriteTimeout))
	return conn.WriteJSON(payload)
}
