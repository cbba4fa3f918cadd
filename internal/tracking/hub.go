package tracking

import (
	"sync"

	"github.com/example/instant-dispatch/internal/models"
)

// hub fans trip location updates out to subscribers. Subscriptions carry an
// explicit unsubscribe func, and StopTracking closes every subscriber for
// the trip so nothing leaks past the monitor's lifetime.
type hub struct {
	mu     sync.Mutex
	subs   map[string]map[int]chan models.Coordinate
	nextID int
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[int]chan models.Coordinate)}
}

func (h *hub) subscribe(tripID string) (<-chan models.Coordinate, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[tripID] == nil {
		h.subs[tripID] = make(map[int]chan models.Coordinate)
	}
	id := h.nextID
	h.nextID++
	ch := make(chan models.Coordinate, 8)
	h.subs[tripID][id] = ch

	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if m, ok := h.subs[tripID]; ok {
			if c, ok := m[id]; ok {
				delete(m, id)
				close(c)
			}
		}
	}
	return ch, unsubscribe
}

// publish delivers without blocking; a slow subscriber drops updates rather
// than stalling the monitor tick.
func (h *hub) publish(tripID string, loc models.Coordinate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[tripID] {
		select {
		case ch <- loc:
		default:
		}
	}
}

func (h *hub) count(tripID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[tripID])
}

func (h *hub) closeTrip(tripID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs[tripID] {
		delete(h.subs[tripID], id)
		close(ch)
	}
	delete(h.subs, tripID)
}
