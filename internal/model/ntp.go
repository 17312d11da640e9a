package model

import "fmt"

// Namespaces for internal topics.
const (
	KafkaNamespace         = "kafka"
	KafkaInternalNamespace = "kafka_internal"
)

// OffsetsTopic is the internal topic backing consumer group coordination.
const OffsetsTopic = "__consumer_offsets"

// NTP identifies a single partition as (namespace, topic, partition).
// It is comparable and usable as a map key.
type NTP struct {
	Namespace string
	Topic     string
	Partition int32
}

// OffsetsNTP returns the NTP for a partition of the internal offsets topic.
func OffsetsNTP(partition int32) NTP {
	return NTP{
		Namespace: KafkaInternalNamespace,
		Topic:     OffsetsTopic,
		Partition: partition,
	}
}

// IsZero reports whether the NTP is the zero value (no partition assigned).
func (n NTP) IsZero() bool {
	return n.Namespace == "" && n.Topic == "" && n.Partition == 0
}

// Less defines a total order: namespace, then topic, then partition.
func (n NTP) Less(other NTP) bool {
	if n.Namespace != other.Namespace {
		return n.Namespace < other.Namespace
	}
	if n.Topic != other.Topic {
		return n.Topic < other.Topic
	}
	return n.Partition < other.Partition
}

func (n NTP) String() string {
	return fmt.Sprintf("{%s/%s/%d}", n.Namespace, n.Topic, n.Partition)
}
