// Package framemux distributes detector landmark frames to multiple
// consumers. A FrameMux reads newline-delimited JSON frames from a single
// source (serial link, UDP socket, replay file, synthetic detector) and fans
// each line out to every subscriber; WebSocket and debug endpoints inject
// lines directly. Subscribers that fall behind lose frames rather than stall
// the feed.
package framemux

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"sync"

	"tailscale.com/tsweb"
)

// subscriberBuffer softens tick-boundary races between the feed and a
// consumer mid-parse. A full channel still drops.
const subscriberBuffer = 4

// LineSource is the minimal interface a frame feed must provide.
type LineSource interface {
	io.Reader
	io.Closer
}

// MuxStats is a snapshot of feed counters.
type MuxStats struct {
	Lines    uint64 `json:"lines"`
	Bytes    uint64 `json:"bytes"`
	Injected uint64 `json:"injected"`
	Dropped  uint64 `json:"dropped"`
}

// FrameMux fans detector frame lines out from one source to any number of
// subscribers.
type FrameMux[T LineSource] struct {
	src T

	mu          sync.Mutex
	subscribers map[string]chan string
	closing     bool
	stats       MuxStats
}

// NewFrameMux creates a FrameMux over the given source.
func NewFrameMux[T LineSource](src T) *FrameMux[T] {
	return &FrameMux[T]{
		src:         src,
		subscribers: make(map[string]chan string),
	}
}

// Source returns the underlying feed.
func (m *FrameMux[T]) Source() T {
	return m.src
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe creates a channel receiving each frame line. The returned ID
// identifies the channel for Unsubscribe.
func (m *FrameMux[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, subscriberBuffer)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscriber channel.
func (m *FrameMux[T]) Unsubscribe(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.subscribers[id]; ok {
		close(ch)
		delete(m.subscribers, id)
	}
}

// Inject delivers a frame line that did not come from the source, such as a
// WebSocket message or a debug form post.
func (m *FrameMux[T]) Inject(line string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closing {
		return
	}
	m.stats.Injected++
	m.fanoutLocked(line)
}

// Stats returns a snapshot of the feed counters.
func (m *FrameMux[T]) Stats() MuxStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Monitor reads frame lines from the source and fans them out until the
// context is cancelled, the source ends, or Close is called.
func (m *FrameMux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(m.src)
	scan.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// The blocking scan.Scan runs in its own goroutine so the outer loop can
	// await lines and context cancellation together.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			if !ok {
				// Source ended.
				if err := scan.Err(); err != nil {
					return err
				}
				return nil
			}

			m.mu.Lock()
			if m.closing {
				m.mu.Unlock()
				return nil
			}
			m.stats.Lines++
			m.stats.Bytes += uint64(len(line))
			m.fanoutLocked(line)
			m.mu.Unlock()
		}
	}
}

// fanoutLocked sends line to every subscriber without blocking. Callers hold
// mu.
func (m *FrameMux[T]) fanoutLocked(line string) {
	for _, ch := range m.subscribers {
		select {
		case ch <- line:
		default:
			m.stats.Dropped++
		}
	}
}

// Close closes all subscriber channels and the source.
func (m *FrameMux[T]) Close() error {
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		return nil
	}
	m.closing = true
	for id, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, id)
	}
	m.mu.Unlock()

	return m.src.Close()
}

var tailPageTemplate = template.Must(template.New("tail").Parse(`<!DOCTYPE html>
<html>
<head><title>detector tail</title></head>
<body>
<h1>Detector frame tail</h1>
<form method="POST" action="/debug/inject">
<input type="text" name="frame" size="120" placeholder='{"points":[[x,y],...],"expressions":{...}}'>
<input type="submit" value="Inject frame">
</form>
<pre id="tail"></pre>
<script>
const pre = document.getElementById("tail");
const es = new EventSource("/debug/tail");
es.onmessage = (e) => {
  pre.textContent += e.data + "\n";
  const lines = pre.textContent.split("\n");
  if (lines.length > 50) pre.textContent = lines.slice(-50).join("\n");
};
</script>
</body>
</html>
`))

// AttachAdminRoutes attaches frame feed debugging endpoints to the given HTTP
// mux served at /debug/. These routes are accessible only over localhost/via
// Tailscale and are not publicly accessible.
func (m *FrameMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("detector", "live detector frame tail and manual injection", func(w http.ResponseWriter, r *http.Request) {
		if err := tailPageTemplate.Execute(w, nil); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
		}
	})

	// Manual frame injection, mostly for poking the pipeline without a
	// detector attached.
	debug.HandleSilentFunc("inject", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		frame := strings.TrimSpace(r.FormValue("frame"))
		if frame == "" {
			http.Error(w, "Missing frame", http.StatusBadRequest)
			return
		}
		m.Inject(frame)
		io.WriteString(w, fmt.Sprintf("Injected %d byte frame", len(frame)))
	})

	debug.HandleSilentFunc("framemux-stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.Stats())
	})

	// Server-Side Events stream of frame lines as they arrive.
	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := m.Subscribe()
		defer m.Unsubscribe(id)

		// Send initial ping to establish connection
		w.Write([]byte(": ping\n\n"))
		w.(http.Flusher).Flush()

		for {
			select {
			case payload, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				w.(http.Flusher).Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
