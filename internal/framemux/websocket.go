package framemux

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/kestrel-sense/driverwatch/internal/monitoring"
)

// ingestReadLimit bounds one frame message; a 68-point frame is about 2KB.
const ingestReadLimit = 256 * 1024

var ingestUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 1024,
	// Frames may arrive from a detector page served off-origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// IngestHandler returns an http.Handler that accepts detector frames over a
// WebSocket connection, injecting each text message into the mux as one
// frame line. Binary messages are ignored.
func IngestHandler[T LineSource](m *FrameMux[T]) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := ingestUpgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote the HTTP error response.
			monitoring.Debugf("framemux: websocket upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		conn.SetReadLimit(ingestReadLimit)

		monitoring.Logf("Detector connected over websocket from %s", r.RemoteAddr)
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					monitoring.Debugf("framemux: websocket read failed: %v", err)
				}
				monitoring.Logf("Detector websocket from %s disconnected", r.RemoteAddr)
				return
			}
			if msgType != websocket.TextMessage {
				continue
			}
			m.Inject(string(trimEOL(data)))
		}
	})
}
