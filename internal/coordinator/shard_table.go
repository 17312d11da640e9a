package coordinator

import (
	"sync"

	"github.com/rizkyandriawan/polylog/internal/model"
	"github.com/rizkyandriawan/polylog/internal/shard"
)

// ShardTable is a per-core view of which core owns each partition replica.
// Lookups see a snapshot: a later lookup may return a different core if
// ownership moved in between. The router never pins a decision beyond one
// operation.
type ShardTable struct {
	mu     sync.RWMutex
	owners map[model.NTP]shard.CoreID
}

// NewShardTable creates an empty shard table.
func NewShardTable() *ShardTable {
	return &ShardTable{owners: make(map[model.NTP]shard.CoreID)}
}

// CoreFor returns the core owning the partition, or false if the partition
// has no local replica.
func (t *ShardTable) CoreFor(ntp model.NTP) (shard.CoreID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	core, ok := t.owners[ntp]
	return core, ok
}

// SetOwner records the owning core for a partition.
func (t *ShardTable) SetOwner(ntp model.NTP, core shard.CoreID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.owners[ntp] = core
}

// RemoveOwner drops the ownership entry for a partition.
func (t *ShardTable) RemoveOwner(ntp model.NTP) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.owners, ntp)
}

// Partitions returns the partitions with a local owner entry.
func (t *ShardTable) Partitions() []model.NTP {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]model.NTP, 0, len(t.owners))
	for ntp := range t.owners {
		out = append(out, ntp)
	}
	return out
}
