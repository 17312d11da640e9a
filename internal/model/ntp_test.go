package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOffsetsNTP(t *testing.T) {
	ntp := OffsetsNTP(7)
	require.Equal(t, KafkaInternalNamespace, ntp.Namespace)
	require.Equal(t, OffsetsTopic, ntp.Topic)
	require.Equal(t, int32(7), ntp.Partition)
	require.False(t, ntp.IsZero())
}

func TestNTPOrdering(t *testing.T) {
	a := NTP{Namespace: "kafka", Topic: "a", Partition: 0}
	b := NTP{Namespace: "kafka", Topic: "a", Partition: 1}
	c := NTP{Namespace: "kafka", Topic: "b", Partition: 0}
	d := NTP{Namespace: "kafka_internal", Topic: "a", Partition: 0}

	require.True(t, a.Less(b))
	require.True(t, b.Less(c))
	require.True(t, c.Less(d))
	require.False(t, d.Less(a))
	require.False(t, a.Less(a))
}

func TestNTPUsableAsMapKey(t *testing.T) {
	m := map[NTP]int{
		OffsetsNTP(0): 0,
		OffsetsNTP(1): 1,
	}
	require.Equal(t, 1, m[OffsetsNTP(1)])
}

func TestNTPString(t *testing.T) {
	require.Equal(t, "{kafka_internal/__consumer_offsets/3}", OffsetsNTP(3).String())
}
