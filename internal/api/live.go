package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/goquran/tilawa/internal/observe"
	"github.com/goquran/tilawa/internal/session"
	"github.com/goquran/tilawa/internal/speech/browser"
)

// liveMessage is an inbound message on the live socket.
type liveMessage struct {
	Type string `json:"type"` // "transcript" or "spoken"
	Text string `json:"text,omitempty"`
	ID   string `json:"id,omitempty"`
}

// liveClient is one connected live-socket consumer. Outbound messages go
// through a buffered channel so a stalled client never blocks the machine.
type liveClient struct {
	mu     sync.Mutex
	closed bool
	out    chan []byte
}

func newLiveClient() *liveClient {
	return &liveClient{out: make(chan []byte, 64)}
}

// send queues one outbound frame. Fails when the client is gone or its
// buffer is full.
func (c *liveClient) send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("client disconnected")
	}
	select {
	case c.out <- msg:
		return nil
	default:
		return errors.New("client send buffer full")
	}
}

func (c *liveClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.out)
	}
}

// liveHub tracks connected live clients and fans session notifications out
// to them.
type liveHub struct {
	metrics *observe.Metrics

	mu      sync.Mutex
	clients map[*liveClient]struct{}
	speech  *liveClient // client currently attached to the speaker
}

func newLiveHub(metrics *observe.Metrics) *liveHub {
	return &liveHub{
		metrics: metrics,
		clients: make(map[*liveClient]struct{}),
	}
}

func (h *liveHub) add(c *liveClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.speech = c
	h.mu.Unlock()
}

// remove drops a client and reports whether it was the speaker's client.
func (h *liveHub) remove(c *liveClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
	if h.speech == c {
		h.speech = nil
		return true
	}
	return false
}

// broadcast sends a session notification to all connected clients. Slow
// clients drop frames rather than delaying the caller.
func (h *liveHub) broadcast(n session.Notification) {
	msg, err := json.Marshal(n)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		_ = c.send(msg)
	}
}

// handleLive upgrades to a WebSocket and runs the bidirectional live
// protocol: transcript deltas and speech acks come up, session notifications
// and speak commands go down.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.allowedOrigins,
	})
	if err != nil {
		s.logger.Warn("live socket upgrade failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "connection lost")

	ctx := r.Context()
	client := newLiveClient()
	s.live.add(client)
	s.metrics.LiveClients.Add(ctx, 1)

	// The newest client becomes the speech output. Speak commands ride the
	// same socket as notifications.
	if s.speaker != nil {
		s.speaker.Attach(func(cmd browser.Command) error {
			msg, err := json.Marshal(cmd)
			if err != nil {
				return err
			}
			return client.send(msg)
		})
	}

	defer func() {
		wasSpeech := s.live.remove(client)
		client.close()
		if wasSpeech && s.speaker != nil {
			s.speaker.Detach()
		}
		s.metrics.LiveClients.Add(context.Background(), -1)
	}()

	go s.writeLive(ctx, conn, client)
	s.readLive(ctx, conn)

	conn.Close(websocket.StatusNormalClosure, "")
}

// writeLive drains the client's outbound queue onto the socket.
func (s *Server) writeLive(ctx context.Context, conn *websocket.Conn, client *liveClient) {
	for msg := range client.out {
		if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
			return
		}
	}
}

// readLive dispatches inbound messages until the socket closes.
func (s *Server) readLive(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var msg liveMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debug("unparseable live message", "error", err)
			continue
		}

		switch msg.Type {
		case "transcript":
			if s.transcripts != nil && msg.Text != "" {
				s.transcripts.Push(msg.Text)
				s.metrics.RecordTranscriptDelta(ctx, "continuous")
			}
		case "spoken":
			if s.speaker != nil && msg.ID != "" {
				s.speaker.Ack(msg.ID)
			}
		default:
			s.logger.Debug("unknown live message type", "type", msg.Type)
		}
	}
}
