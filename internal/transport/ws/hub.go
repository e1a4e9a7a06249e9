package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"npcsim.ai/internal/protocol"
)

// Hub fans each tick's presentable messages out to connected observers.
// Present runs on the kernel loop and never blocks: a slow observer loses its
// oldest queued frame.
type Hub struct {
	log *slog.Logger

	mu      sync.RWMutex
	clients map[uint64]chan []byte
	nextID  atomic.Uint64

	framesDropped atomic.Uint64
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{log: log, clients: map[uint64]chan []byte{}}
}

// Subscribe registers an observer with an outbound queue of the given size.
func (h *Hub) Subscribe(queue int) (id uint64, out <-chan []byte) {
	ch := make(chan []byte, max(1, queue))
	id = h.nextID.Add(1)
	h.mu.Lock()
	h.clients[id] = ch
	h.mu.Unlock()
	return id, ch
}

// Unsubscribe closes the observer's queue.
func (h *Hub) Unsubscribe(id uint64) {
	h.mu.Lock()
	ch, ok := h.clients[id]
	delete(h.clients, id)
	h.mu.Unlock()
	if ok {
		close(ch)
	}
}

func (h *Hub) Present(tick uint64, msgs []protocol.Message) {
	frame := protocol.MessagesFrame{
		Type:            protocol.TypeMessages,
		ProtocolVersion: protocol.Version,
		Tick:            tick,
	}
	for _, m := range msgs {
		if !m.IsLog() {
			frame.Messages = append(frame.Messages, m)
		}
	}
	if len(frame.Messages) == 0 {
		return
	}
	b, err := json.Marshal(frame)
	if err != nil {
		h.log.Error("encode messages frame", "tick", tick, "err", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		if sendLatest(ch, b) {
			h.framesDropped.Add(1)
		}
	}
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) FramesDropped() uint64 { return h.framesDropped.Load() }

// sendLatest reports whether an older frame had to be dropped.
func sendLatest(ch chan []byte, b []byte) (dropped bool) {
	select {
	case ch <- b:
		return false
	default:
	}
	select {
	case <-ch:
		dropped = true
	default:
	}
	select {
	case ch <- b:
	default:
		dropped = true
	}
	return dropped
}
