package httpserver

import (
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	domain "github.com/bryanwahyu/maestro-analyzer/internal/domain/analysis"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// snapshotEvent is the first frame of every event stream.
type snapshotEvent struct {
	Type string      `json:"type"`
	Run  *domain.Run `json:"run"`
}

func (r *Router) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(req *http.Request) bool {
			origin := req.Header.Get("Origin")
			if origin == "" || len(r.origins) == 0 || slices.Contains(r.origins, "*") {
				return true
			}
			return slices.Contains(r.origins, origin)
		},
	}
}

// GET /v1/{tenant}/runs/{id}/events
// Streams a snapshot followed by run events until the run finishes.
func (r *Router) handleEvents(w http.ResponseWriter, req *http.Request) error {
	id, err := runID(req)
	if err != nil {
		return err
	}
	tenant := chi.URLParam(req, "tenant")

	// subscribe sebelum snapshot supaya gak ada event yang kelewat
	var events <-chan domain.Event
	var run *domain.Run
	if sess, ok := r.svc.Session(tenant, id); ok {
		ch, cancel := sess.Subscribe()
		defer cancel()
		events = ch
		run = sess.Snapshot()
	} else {
		run, err = r.svc.Get(req.Context(), tenant, id)
		if err != nil {
			return err
		}
	}

	conn, err := r.upgrader().Upgrade(w, req, nil)
	if err != nil {
		// Upgrade already replied to the client
		r.logger.Warn("websocket upgrade failed", "run_id", id, "err", err)
		return nil
	}
	defer conn.Close()

	closed := make(chan struct{})
	go readPump(conn, closed)

	if err := writeFrame(conn, snapshotEvent{Type: "snapshot", Run: run}); err != nil {
		return nil
	}
	if events == nil {
		closeNormal(conn)
		return nil
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				closeNormal(conn)
				return nil
			}
			if err := writeFrame(conn, ev); err != nil {
				return nil
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		case <-closed:
			return nil
		case <-req.Context().Done():
			return nil
		}
	}
}

// readPump drains client frames so pongs and close frames get handled.
func readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(1024)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

func closeNormal(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
