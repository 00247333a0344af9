package service

import (
	"sync"

	"electronic_load/internal/models"
)

// Sink receives the result of every poll cycle. Implementations must not
// block the caller.
type Sink interface {
	Publish(t models.Telemetry)
	PublishError(e models.PollError)
}

// Message types pushed to stream subscribers.
const (
	MessageTelemetry = "telemetry"
	MessageError     = "error"
)

// Message is one item of the telemetry stream.
type Message struct {
	Type      string            `json:"type"`
	Telemetry *models.Telemetry `json:"telemetry,omitempty"`
	Error     *models.PollError `json:"error,omitempty"`
}

// Subscription is a live view of the stream. Close it when done.
type Subscription struct {
	ch  chan Message
	hub *Hub
}

func (s *Subscription) C() <-chan Message { return s.ch }
func (s *Subscription) Close()            { s.hub.unsubscribe(s) }

// Hub fans telemetry out to subscribers. A subscriber whose queue is full
// misses messages; the engine never waits. The latest telemetry is retained
// and delivered to new subscribers.
type Hub struct {
	mu       sync.RWMutex
	subs     map[*Subscription]struct{}
	qLen     int
	retained *Message
	dropped  uint64
}

func NewHub(queueLen int) *Hub {
	if queueLen <= 0 {
		queueLen = 16
	}
	return &Hub{subs: make(map[*Subscription]struct{}), qLen: queueLen}
}

var _ Sink = (*Hub)(nil)

func (h *Hub) Subscribe() *Subscription {
	s := &Subscription{ch: make(chan Message, h.qLen), hub: h}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[s] = struct{}{}
	if h.retained != nil {
		s.ch <- *h.retained
	}
	return s
}

func (h *Hub) unsubscribe(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.ch)
	}
}

func (h *Hub) Publish(t models.Telemetry) {
	t = t.Copy()
	msg := Message{Type: MessageTelemetry, Telemetry: &t}
	h.mu.Lock()
	h.retained = &msg
	h.mu.Unlock()
	h.broadcast(msg)
}

func (h *Hub) PublishError(e models.PollError) {
	h.broadcast(Message{Type: MessageError, Error: &e})
}

func (h *Hub) broadcast(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.ch <- msg:
		default:
			h.dropped++
		}
	}
}

// Dropped counts messages lost to slow subscribers.
func (h *Hub) Dropped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// Subscribers returns the number of open subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
