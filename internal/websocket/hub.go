package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/hireloop/api/internal/model"
)

const (
	pingPeriod     = 30 * time.Second
	sendBufferSize = 64
)

// subscriber is one WebSocket connection watching a single render job. The
// send channel is never closed; done signals the writer to stop, so late
// sends race nothing.
type subscriber struct {
	jobID string
	send  chan []byte
	done  chan struct{}
	once  sync.Once
}

func (s *subscriber) shutdown() {
	s.once.Do(func() { close(s.done) })
}

// Hub fans render job events out to job-scoped WebSocket subscribers. A
// subscriber that cannot keep up with its send buffer is dropped rather than
// blocking the publisher.
type Hub struct {
	mu   sync.RWMutex
	jobs map[string]map[*subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{jobs: make(map[string]map[*subscriber]struct{})}
}

func (h *Hub) attach(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.jobs[s.jobID]
	if !ok {
		subs = make(map[*subscriber]struct{})
		h.jobs[s.jobID] = subs
	}
	subs[s] = struct{}{}
	log.Printf("WS subscriber attached to job %s", s.jobID)
}

func (h *Hub) detach(s *subscriber) {
	h.mu.Lock()
	if subs, ok := h.jobs[s.jobID]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(h.jobs, s.jobID)
		}
	}
	h.mu.Unlock()
	s.shutdown()
	log.Printf("WS subscriber detached from job %s", s.jobID)
}

// publish marshals v and delivers it to every subscriber of the job. Slow
// subscribers are dropped inline.
func (h *Hub) publish(jobID string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("Failed to marshal WS message for job %s: %v", jobID, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.jobs[jobID]
	if !ok {
		return
	}
	for s := range subs {
		select {
		case s.send <- data:
		default:
			delete(subs, s)
			s.shutdown()
		}
	}
	if len(subs) == 0 {
		delete(h.jobs, jobID)
	}
}

// BroadcastProgress sends a progress update to all job subscribers.
func (h *Hub) BroadcastProgress(jobID string, progress int, status model.JobStatus, step string) {
	h.publish(jobID, model.WSProgressMessage{
		Type:        model.WSMessageTypeProgress,
		JobID:       jobID,
		Progress:    progress,
		Status:      status,
		CurrentStep: step,
	})
}

// BroadcastComplete sends the finished render record to all job subscribers.
func (h *Hub) BroadcastComplete(jobID string, result *model.VideoRenderTask) {
	h.publish(jobID, model.WSCompleteMessage{
		Type:   model.WSMessageTypeComplete,
		JobID:  jobID,
		Result: result,
	})
}

// BroadcastError sends a render failure to all job subscribers.
func (h *Hub) BroadcastError(jobID string, code, message string) {
	h.publish(jobID, model.WSErrorMessage{
		Type:  model.WSMessageTypeError,
		JobID: jobID,
		Error: model.WSError{Code: code, Message: message},
	})
}

// HandleConnection serves one subscriber connection until the client goes
// away. Must be called from the fiber websocket handler goroutine.
func (h *Hub) HandleConnection(c *websocket.Conn, jobID string) {
	s := &subscriber{
		jobID: jobID,
		send:  make(chan []byte, sendBufferSize),
		done:  make(chan struct{}),
	}
	h.attach(s)
	defer h.detach(s)

	go writeLoop(c, s)

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error on job %s: %v", jobID, err)
			}
			return
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == model.WSMessageTypePing {
			data, _ := json.Marshal(model.WSMessage{Type: model.WSMessageTypePong})
			select {
			case s.send <- data:
			default:
			}
		}
	}
}

// writeLoop drains the subscriber's send channel onto the wire and keeps the
// connection alive with periodic pings.
func writeLoop(c *websocket.Conn, s *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			c.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-s.send:
			if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
