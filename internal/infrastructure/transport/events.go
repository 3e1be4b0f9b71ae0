package transport

import (
	"log/slog"
	"sync"

	"copywriter/internal/domain/entity"
	"copywriter/internal/infrastructure/metrics"
)

// Hub fans run events out to per-run subscribers. Slow subscribers lose events
// rather than stall the run that publishes them.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*subscriber]struct{}
	buffer int
	logger *slog.Logger
}

type subscriber struct {
	ch chan entity.Event
}

func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = 256
	}
	return &Hub{
		subs:   map[string]map[*subscriber]struct{}{},
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe returns a channel of events for runID. The channel is closed after
// the run's terminal event or when cancel is called.
func (h *Hub) Subscribe(runID string) (<-chan entity.Event, func()) {
	s := &subscriber{ch: make(chan entity.Event, h.buffer)}

	h.mu.Lock()
	if h.subs[runID] == nil {
		h.subs[runID] = map[*subscriber]struct{}{}
	}
	h.subs[runID][s] = struct{}{}
	h.mu.Unlock()
	metrics.IncEventSubscribers()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.remove(runID, s)
	}
	return s.ch, cancel
}

// Publish delivers e to the subscribers of e.RunID.
func (h *Hub) Publish(e entity.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.subs[e.RunID] {
		select {
		case s.ch <- e:
		default:
			h.logger.Debug("event dropped for slow subscriber", "run_id", e.RunID, "type", e.Type)
		}
	}
	if isTerminal(e.Type) {
		for s := range h.subs[e.RunID] {
			h.remove(e.RunID, s)
		}
	}
}

// Subscribers reports how many listeners runID currently has.
func (h *Hub) Subscribers(runID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[runID])
}

// remove must be called with h.mu held.
func (h *Hub) remove(runID string, s *subscriber) {
	set := h.subs[runID]
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.subs, runID)
	}
	close(s.ch)
	metrics.DecEventSubscribers()
}

func isTerminal(t entity.EventType) bool {
	return t == entity.EventRunCompleted || t == entity.EventRunFailed
}
