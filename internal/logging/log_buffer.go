package logging

import "sync"

// LogBuffer retains the newest entries up to a fixed capacity.
type LogBuffer struct {
	mu      sync.Mutex
	ring    []LogEntry
	next    int
	wrapped bool
}

func NewLogBuffer(size int) *LogBuffer {
	return &LogBuffer{ring: make([]LogEntry, max(size, 1))}
}

func (b *LogBuffer) Add(entry LogEntry) {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.ring[b.next] = entry
	b.next++
	if b.next == len(b.ring) {
		b.next = 0
		b.wrapped = true
	}
	b.mu.Unlock()
}

func (b *LogBuffer) List() []LogEntry {
	return b.Tail(0, "")
}

// Tail returns up to limit of the newest entries at or above minLevel, oldest first.
// A limit of zero returns every retained entry.
func (b *LogBuffer) Tail(limit int, minLevel Level) []LogEntry {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	ordered := make([]LogEntry, 0, len(b.ring))
	if b.wrapped {
		ordered = append(ordered, b.ring[b.next:]...)
	}
	ordered = append(ordered, b.ring[:b.next]...)
	b.mu.Unlock()

	var out []LogEntry
	for _, entry := range ordered {
		if LevelAtLeast(entry.Level, minLevel) {
			out = append(out, entry)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
