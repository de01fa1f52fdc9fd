package broadcast

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	// messageBufferSize bounds per-client buffering; a client that falls this
	// far behind is evicted by the hub rather than buffered further.
	messageBufferSize = 16
	pingInterval      = 25 * time.Second
)

type envelope struct {
	event string
	data  []byte
}

// Client is one live SSE connection. The hub pushes frames into its buffer;
// Serve drains them onto the HTTP response from the handler goroutine, so
// the response writer is never touched concurrently.
type Client struct {
	events    chan envelope
	closed    chan struct{}
	closeOnce sync.Once
	clock     clockwork.Clock
}

func NewClient(clock clockwork.Clock) *Client {
	return &Client{
		events: make(chan envelope, messageBufferSize),
		closed: make(chan struct{}),
		clock:  clock,
	}
}

// offer enqueues a frame without blocking. Returns false when the buffer is
// full or the client is closed, signalling the hub to evict.
func (c *Client) offer(event string, data []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.events <- envelope{event: event, data: data}:
		return true
	default:
		return false
	}
}

// Send serializes payload and enqueues one frame for this client only.
// Used for the initial snapshot on connect; later frames come from the hub.
func (c *Client) Send(event string, payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	return c.offer(event, data)
}

// Close releases the client. Idempotent; Serve returns soon after.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// Serve writes SSE frames to w until the request context ends or the client
// is closed. Pings ride an independent ticker so idle proxies keep the
// connection open; consumers distinguish them from data by the event name.
func (c *Client) Serve(w http.ResponseWriter, r *http.Request) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("response writer does not support streaming")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := c.clock.NewTicker(pingInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case env := <-c.events:
			if err := writeFrame(w, env.event, env.data); err != nil {
				return err
			}
			flusher.Flush()
		case <-ticker.Chan():
			ping := fmt.Sprintf(`{"ts":%d}`, c.clock.Now().UnixMilli())
			if err := writeFrame(w, "ping", []byte(ping)); err != nil {
				return err
			}
			flusher.Flush()
		case <-ctx.Done():
			return nil
		case <-c.closed:
			return nil
		}
	}
}

// writeFrame emits one `event: <name>\ndata: <json>\n\n` SSE message.
func writeFrame(w io.Writer, event string, data []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return nil
}
