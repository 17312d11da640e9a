package store

import (
	"time"

	"github.com/rizkyandriawan/polylog/internal/model"
)

// TopicMeta contains topic metadata
type TopicMeta struct {
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	LatestOffset int64     `json:"latest_offset"`
}

// Record represents a stored message
type Record struct {
	Offset     int64             `json:"offset"`
	LastOffset int64             `json:"last_offset"` // for batches, the last offset in the batch
	Timestamp  int64             `json:"timestamp"`
	Key        []byte            `json:"key,omitempty"`
	Value      []byte            `json:"value"`
	Headers    map[string][]byte `json:"headers,omitempty"`
	Codec      int8              `json:"codec"` // compression codec (passthrough)
}

// CommittedOffset is a single committed consumer offset.
type CommittedOffset struct {
	Topic       string `json:"topic"`
	Partition   int32  `json:"partition"`
	Offset      int64  `json:"offset"`
	LeaderEpoch int32  `json:"leader_epoch"`
	Metadata    string `json:"metadata,omitempty"`
	CommittedAt int64  `json:"committed_at"`
}

// GroupMetadata is the persisted state of a consumer group, scoped to the
// offsets partition that coordinates it.
type GroupMetadata struct {
	ID           string           `json:"id"`
	State        string           `json:"state"`
	Generation   int32            `json:"generation"`
	LeaderID     string           `json:"leader_id"`
	ProtocolType string           `json:"protocol_type"`
	Protocol     string           `json:"protocol"`
	Members      []MemberMetadata `json:"members,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// MemberMetadata is the persisted state of a group member.
type MemberMetadata struct {
	ID                 string `json:"id"`
	ClientID           string `json:"client_id"`
	InstanceID         string `json:"instance_id,omitempty"`
	SessionTimeoutMs   int32  `json:"session_timeout_ms"`
	RebalanceTimeoutMs int32  `json:"rebalance_timeout_ms"`
	Metadata           []byte `json:"metadata,omitempty"`
	Assignment         []byte `json:"assignment,omitempty"`
}

// TopicStoreInterface defines topic store operations
type TopicStoreInterface interface {
	CreateTopic(name string) error
	TopicExists(name string) bool
	ListTopics() []string
	DeleteTopic(name string) error
	Append(topic string, records []Record) (int64, error)
	AppendRaw(topic string, data []byte, codec int8, recordCount int) (int64, error)
	Read(topic string, fromOffset int64, maxRecords int) ([]Record, error)
	LatestOffset(topic string) (int64, error)
	EarliestOffset(topic string) (int64, error)
	DeleteBefore(topic string, cutoff time.Time) (int, error)
	GetMeta(topic string) (*TopicMeta, error)
}

// OffsetStoreInterface defines the per-partition offsets log used by the
// group manager. CommitOffsets is two-phase: a synchronous error means the
// write could not be staged and done will never run; otherwise done runs
// exactly once, after CommitOffsets has returned, when the write is
// durable.
type OffsetStoreInterface interface {
	CommitOffsets(ntp model.NTP, group string, offsets []CommittedOffset, done func(error)) error
	FetchOffsets(ntp model.NTP, group string) ([]CommittedOffset, error)
	SaveGroup(ntp model.NTP, meta *GroupMetadata) error
	LoadGroups(ntp model.NTP) ([]*GroupMetadata, error)
	DeleteGroup(ntp model.NTP, group string) error
	Close() error
}
