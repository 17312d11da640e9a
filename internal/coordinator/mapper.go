package coordinator

import (
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/rizkyandriawan/polylog/internal/model"
)

// Mapper maps a group id to the partition of the internal offsets topic
// that coordinates it. The mapping is pure: the same group always hashes
// to the same partition for a given partition count. One instance lives on
// each core; lookups never block.
type Mapper struct {
	partitions atomic.Int32
}

// NewMapper creates a mapper. The offsets topic has no partitions until
// SetPartitionCount is called, so lookups return absent while the broker
// is still bootstrapping.
func NewMapper() *Mapper {
	return &Mapper{}
}

// NewMapperWithPartitions creates a mapper over a fixed partition count.
func NewMapperWithPartitions(n int32) *Mapper {
	m := &Mapper{}
	m.partitions.Store(n)
	return m
}

// SetPartitionCount records the offsets topic partition count.
func (m *Mapper) SetPartitionCount(n int32) {
	m.partitions.Store(n)
}

// NTPFor returns the offsets topic partition coordinating the group, or
// false while the offsets topic does not exist.
func (m *Mapper) NTPFor(group string) (model.NTP, bool) {
	n := m.partitions.Load()
	if n <= 0 {
		return model.NTP{}, false
	}
	partition := int32(xxhash.Sum64String(group) % uint64(n))
	return model.OffsetsNTP(partition), true
}
