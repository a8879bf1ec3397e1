package worker

import "github.com/kirsrus/safetywatch/model"

// Bounded buffer of the last readings of a worker, oldest first. Guarded by the entry lock
type history struct {
	buffer   []model.Reading
	capacity int
}

func newHistory(capacity int) *history {
	return &history{
		buffer:   make([]model.Reading, 0, capacity),
		capacity: capacity,
	}
}

func (h *history) add(r model.Reading) {
	if len(h.buffer) >= h.capacity {
		// Drop the oldest reading
		copy(h.buffer, h.buffer[1:])
		h.buffer = h.buffer[:len(h.buffer)-1]
	}
	h.buffer = append(h.buffer, r)
}

// Last count readings in chronological order, count <= 0 means all
func (h *history) recent(count int) []model.Reading {
	if count <= 0 || count > len(h.buffer) {
		count = len(h.buffer)
	}
	res := make([]model.Reading, count)
	copy(res, h.buffer[len(h.buffer)-count:])
	return res
}
