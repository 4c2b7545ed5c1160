package searchrouter

import "time"

// SetClock replaces the tracker's time source.
func (h *HealthTracker) SetClock(now func() time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = now
}
