package coordinator

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rizkyandriawan/polylog/internal/model"
)

func TestMapperIsPure(t *testing.T) {
	m := NewMapperWithPartitions(16)

	first, ok := m.NTPFor("my-group")
	require.True(t, ok)
	for i := 0; i < 100; i++ {
		ntp, ok := m.NTPFor("my-group")
		require.True(t, ok)
		require.Equal(t, first, ntp)
	}
}

func TestMapperAbsentWithoutPartitions(t *testing.T) {
	m := NewMapper()

	_, ok := m.NTPFor("my-group")
	require.False(t, ok)

	m.SetPartitionCount(8)
	_, ok = m.NTPFor("my-group")
	require.True(t, ok)
}

func TestMapperTargetsOffsetsTopic(t *testing.T) {
	m := NewMapperWithPartitions(4)

	ntp, ok := m.NTPFor("g")
	require.True(t, ok)
	require.Equal(t, model.KafkaInternalNamespace, ntp.Namespace)
	require.Equal(t, model.OffsetsTopic, ntp.Topic)
	require.GreaterOrEqual(t, ntp.Partition, int32(0))
	require.Less(t, ntp.Partition, int32(4))
}

func TestMapperSpreadsGroups(t *testing.T) {
	m := NewMapperWithPartitions(16)

	seen := make(map[int32]bool)
	for i := 0; i < 200; i++ {
		ntp, ok := m.NTPFor(fmt.Sprintf("group-%d", i))
		require.True(t, ok)
		seen[ntp.Partition] = true
	}
	// 200 groups over 16 partitions should touch most of them
	require.Greater(t, len(seen), 8)
}

func TestShardTableLookup(t *testing.T) {
	tbl := NewShardTable()
	ntp := model.OffsetsNTP(3)

	_, ok := tbl.CoreFor(ntp)
	require.False(t, ok)

	tbl.SetOwner(ntp, 2)
	core, ok := tbl.CoreFor(ntp)
	require.True(t, ok)
	require.Equal(t, 2, int(core))
}

func TestShardTableOwnershipMoves(t *testing.T) {
	tbl := NewShardTable()
	ntp := model.OffsetsNTP(0)

	tbl.SetOwner(ntp, 0)
	tbl.SetOwner(ntp, 1)
	core, ok := tbl.CoreFor(ntp)
	require.True(t, ok)
	require.Equal(t, 1, int(core))

	tbl.RemoveOwner(ntp)
	_, ok = tbl.CoreFor(ntp)
	require.False(t, ok)
}

func TestShardTablePartitions(t *testing.T) {
	tbl := NewShardTable()
	tbl.SetOwner(model.OffsetsNTP(0), 0)
	tbl.SetOwner(model.OffsetsNTP(1), 1)

	require.Len(t, tbl.Partitions(), 2)
}
