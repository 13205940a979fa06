package relay

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Filter selects events by context and type. A nil set accepts everything.
type Filter struct {
	contexts map[string]bool
	types    map[string]bool
}

// ParseFilter reads ?contexts=a,b and ?types=request,failed.
func ParseFilter(r *http.Request) Filter {
	q := r.URL.Query()
	return Filter{
		contexts: parseSet(q.Get("contexts")),
		types:    parseSet(q.Get("types")),
	}
}

func parseSet(v string) map[string]bool {
	if v == "" {
		return nil
	}
	set := make(map[string]bool)
	for _, f := range strings.Split(v, ",") {
		if f = strings.TrimSpace(f); f != "" {
			set[f] = true
		}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

func (f Filter) Match(evt Event) bool {
	if f.contexts != nil && !f.contexts[evt.Feed] {
		return false
	}
	if f.types != nil && !f.types[evt.Type] {
		return false
	}
	return true
}

// SSEHandler returns an http.HandlerFunc that streams capture events as SSE.
func SSEHandler(broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}
		filter := ParseFilter(r)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		flusher.Flush()

		id, ch := broker.Subscribe()
		defer broker.Unsubscribe(id)

		for {
			select {
			case <-r.Context().Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if !filter.Match(evt) {
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, evt.Payload)
				flusher.Flush()
			}
		}
	}
}

// lockedWriter serializes frame writes from the stream loop and the control
// frame replies issued while reading.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// WebSocketHandler streams capture events as websocket text frames. It takes
// the same filter parameters as SSEHandler; client messages are ignored.
func WebSocketHandler(broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := ParseFilter(r)
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			slog.Debug("relay: websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		out := &lockedWriter{w: conn}
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			rw := struct {
				io.Reader
				io.Writer
			}{conn, out}
			for {
				if _, _, err := wsutil.ReadClientData(rw); err != nil {
					return
				}
			}
		}()

		id, ch := broker.Subscribe()
		defer broker.Unsubscribe(id)

		for {
			select {
			case <-closed:
				return
			case <-r.Context().Done():
				return
			case evt, ok := <-ch:
				if !ok {
					_, _ = out.Write(ws.CompiledClose)
					return
				}
				if !filter.Match(evt) {
					continue
				}
				frame, err := ws.CompileFrame(ws.NewTextFrame([]byte(evt.Payload)))
				if err != nil {
					return
				}
				if _, err := out.Write(frame); err != nil {
					slog.Debug("relay: websocket write failed", "subscriber", id, "error", err)
					return
				}
			}
		}
	}
}
