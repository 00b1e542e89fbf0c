package device

import (
	"sync"

	"assetflow/domain"

	"github.com/fundwit/go-commons/types"
)

const (
	// RecentBufferCap bounds the per-hub replay buffer
	RecentBufferCap = 100

	subscriberBufferSize = 64
)

// ReadingHub fans sensor readings out to stream subscribers and keeps a
// bounded replay buffer of the most recent readings.
type ReadingHub struct {
	mu          sync.RWMutex
	subscribers map[chan domain.SensorReading]types.ID
	recent      []domain.SensorReading
}

var ActiveReadingHub = NewReadingHub()

func NewReadingHub() *ReadingHub {
	return &ReadingHub{subscribers: map[chan domain.SensorReading]types.ID{}}
}

// Subscribe registers a listener for readings of one device, or all
// devices when deviceID is zero. The returned channel is closed by
// Unsubscribe only, never by the hub.
func (h *ReadingHub) Subscribe(deviceID types.ID) chan domain.SensorReading {
	ch := make(chan domain.SensorReading, subscriberBufferSize)
	h.mu.Lock()
	h.subscribers[ch] = deviceID
	h.mu.Unlock()
	return ch
}

func (h *ReadingHub) Unsubscribe(ch chan domain.SensorReading) {
	h.mu.Lock()
	_, found := h.subscribers[ch]
	delete(h.subscribers, ch)
	h.mu.Unlock()
	if found {
		close(ch)
	}
}

// Publish delivers a reading to matching subscribers without blocking,
// a subscriber with a full channel misses the reading.
func (h *ReadingHub) Publish(reading domain.SensorReading) {
	h.mu.Lock()
	h.recent = append([]domain.SensorReading{reading}, h.recent...)
	if len(h.recent) > RecentBufferCap {
		h.recent = h.recent[:RecentBufferCap]
	}

	for ch, deviceID := range h.subscribers {
		if deviceID != 0 && deviceID != reading.DeviceID {
			continue
		}
		select {
		case ch <- reading:
		default:
		}
	}
	h.mu.Unlock()
}

// Recent returns up to limit buffered readings, most recent first.
func (h *ReadingHub) Recent(limit int) []domain.SensorReading {
	if limit <= 0 || limit > RecentBufferCap {
		limit = RecentBufferCap
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if limit > len(h.recent) {
		limit = len(h.recent)
	}
	out := make([]domain.SensorReading, limit)
	copy(out, h.recent[:limit])
	return out
}

func (h *ReadingHub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
