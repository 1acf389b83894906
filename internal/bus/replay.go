package bus

import (
	"sync"
	"time"
)

// DefaultReplayCapacity is the retained-event count when none is configured.
const DefaultReplayCapacity = 200

// ReplayEvent is one retained bus event with its authoritative sequence id.
type ReplayEvent struct {
	ID        uint64                 `json:"id"`
	EventType string                 `json:"event_type"`
	Payload   map[string]interface{} `json:"payload"`
	SourceApp string                 `json:"source_app,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// ReplayBuffer is a fixed-capacity ring of sequence-numbered events. Ids are
// assigned monotonically starting at 1; once full, the oldest entry is
// evicted first.
type ReplayBuffer struct {
	mu       sync.RWMutex
	entries  []ReplayEvent
	capacity int
	nextID   uint64
}

// NewReplayBuffer creates a buffer retaining at most capacity events.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = DefaultReplayCapacity
	}
	return &ReplayBuffer{
		entries:  make([]ReplayEvent, 0, capacity),
		capacity: capacity,
		nextID:   1,
	}
}

// Append stores an event, assigns it the next sequential id, and returns the
// stored entry.
func (b *ReplayBuffer) Append(eventType string, payload map[string]interface{}, sourceApp string) ReplayEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	event := ReplayEvent{
		ID:        b.nextID,
		EventType: eventType,
		Payload:   payload,
		SourceApp: sourceApp,
		Timestamp: time.Now(),
	}
	b.nextID++

	if len(b.entries) == b.capacity {
		copy(b.entries, b.entries[1:])
		b.entries[len(b.entries)-1] = event
	} else {
		b.entries = append(b.entries, event)
	}
	return event
}

// After returns, in ascending id order, every retained entry with id >
// lastID. A lastID predating the oldest retained entry simply yields the
// whole buffer; there is no gap signal.
func (b *ReplayBuffer) After(lastID uint64) []ReplayEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()

	// Entries are stored in ascending id order; find the first qualifying one.
	start := len(b.entries)
	for i, e := range b.entries {
		if e.ID > lastID {
			start = i
			break
		}
	}

	out := make([]ReplayEvent, len(b.entries)-start)
	copy(out, b.entries[start:])
	return out
}

// Len returns the number of retained entries.
func (b *ReplayBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Capacity returns the configured retention limit.
func (b *ReplayBuffer) Capacity() int { return b.capacity }

// LatestID returns the most recently assigned id, zero when empty.
func (b *ReplayBuffer) LatestID() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.entries) == 0 {
		return 0
	}
	return b.entries[len(b.entries)-1].ID
}

// OldestID returns the oldest retained id, zero when empty.
func (b *ReplayBuffer) OldestID() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.entries) == 0 {
		return 0
	}
	return b.entries[0].ID
}
