package hub

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryReplacesEntryForSameMachine(t *testing.T) {
	registry := NewRegistry()
	now := time.Now()
	first := newAgentEntry("m1", "host-a", newFakePeer("c1"), now)
	second := newAgentEntry("m1", "host-b", newFakePeer("c2"), now)

	assert.Nil(t, registry.Insert(first))
	assert.Same(t, first, registry.Insert(second))

	current, ok := registry.Lookup("m1")
	require.True(t, ok)
	assert.Same(t, second, current)
	assert.Equal(t, 1, registry.Len())
}

func TestRegistryStaleTeardownKeepsNewerEntry(t *testing.T) {
	registry := NewRegistry()
	now := time.Now()
	stale := newAgentEntry("m1", "", newFakePeer("c1"), now)
	fresh := newAgentEntry("m1", "", newFakePeer("c2"), now)
	registry.Insert(stale)
	registry.Insert(fresh)

	assert.False(t, registry.RemoveIfCurrent(stale))
	assert.Equal(t, []string{"m1"}, registry.IDs())

	assert.True(t, registry.RemoveIfCurrent(fresh))
	assert.Empty(t, registry.IDs())
	assert.False(t, registry.RemoveIfCurrent(fresh))
	assert.False(t, registry.RemoveIfCurrent(nil))
}

func TestRegistryIDsSorted(t *testing.T) {
	registry := NewRegistry()
	for _, id := range []string{"m3", "m1", "m2"} {
		registry.Insert(newAgentEntry(id, "", newFakePeer("c-"+id), time.Now()))
	}
	assert.Equal(t, []string{"m1", "m2", "m3"}, registry.IDs())

	snapshot := registry.Snapshot()
	require.Len(t, snapshot, 3)
	assert.Equal(t, "m1", snapshot[0].Machine)
	assert.Equal(t, "m3", snapshot[2].Machine)
}

func TestRegistryConcurrentRegistrationsKeepOneEntryPerMachine(t *testing.T) {
	registry := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			machine := fmt.Sprintf("m%d", i%5)
			entry := newAgentEntry(machine, "", newFakePeer(fmt.Sprintf("c%d", i)), time.Now())
			registry.Insert(entry)
			if i%3 == 0 {
				registry.RemoveIfCurrent(entry)
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, entry := range registry.Snapshot() {
		assert.False(t, seen[entry.Machine], "duplicate entry for %s", entry.Machine)
		seen[entry.Machine] = true
	}
	assert.LessOrEqual(t, registry.Len(), 5)
}

func TestAgentEntryTouch(t *testing.T) {
	start := time.Unix(1000, 0)
	entry := newAgentEntry("m1", "", newFakePeer("c1"), start)
	assert.True(t, entry.LastActivity().Equal(start))

	later := start.Add(time.Minute)
	entry.Touch(later)
	assert.True(t, entry.LastActivity().Equal(later))
}
