package hub

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// AgentEntry is the registry record of one registered agent connection.
type AgentEntry struct {
	Machine     string
	Hostname    string
	Conn        Peer
	ConnectedAt time.Time

	lastActivity atomic.Int64
}

func newAgentEntry(machine, hostname string, conn Peer, now time.Time) *AgentEntry {
	entry := &AgentEntry{
		Machine:     machine,
		Hostname:    hostname,
		Conn:        conn,
		ConnectedAt: now,
	}
	entry.Touch(now)
	return entry
}

func (e *AgentEntry) Touch(now time.Time) {
	e.lastActivity.Store(now.UnixNano())
}

func (e *AgentEntry) LastActivity() time.Time {
	return time.Unix(0, e.lastActivity.Load())
}

// Registry maps machine ids to the current agent entry. At most one entry exists per id.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*AgentEntry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*AgentEntry)}
}

// Insert stores entry, replacing and returning any previous entry for the same machine.
func (r *Registry) Insert(entry *AgentEntry) *AgentEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	previous := r.entries[entry.Machine]
	r.entries[entry.Machine] = entry
	return previous
}

// RemoveIfCurrent deletes entry only while it is still the stored entry for its machine.
// A stale connection tearing down after a re-registration leaves the newer entry alone.
func (r *Registry) RemoveIfCurrent(entry *AgentEntry) bool {
	if entry == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries[entry.Machine] != entry {
		return false
	}
	delete(r.entries, entry.Machine)
	return true
}

func (r *Registry) Lookup(machine string) (*AgentEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[machine]
	return entry, ok
}

// IDs returns the registered machine ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns the current entries ordered by machine id.
func (r *Registry) Snapshot() []*AgentEntry {
	r.mu.RLock()
	entries := make([]*AgentEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		entries = append(entries, entry)
	}
	r.mu.RUnlock()
	sort.Slice(entries, func(i, j int) bool { return entries[i].Machine < entries[j].Machine })
	return entries
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
