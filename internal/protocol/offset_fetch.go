package protocol

import "github.com/rizkyandriawan/polylog/internal/model"

// ============================================================================
// OffsetFetch (API Key 9)
// Supported versions: 0-5
// ============================================================================

// ----------------------------------------------------------------------------
// Request
// ----------------------------------------------------------------------------

type OffsetFetchRequest struct {
	GroupID string
	Topics  []OffsetFetchRequestTopic

	// Coordinator is not part of the wire format; set by the router.
	Coordinator model.NTP
}

type OffsetFetchRequestTopic struct {
	Name       string
	Partitions []int32
}

// CoordinatorKey returns the id used to locate the group's coordinator.
func (r *OffsetFetchRequest) CoordinatorKey() string {
	return r.GroupID
}

// SetCoordinator records the coordinating partition on the request.
func (r *OffsetFetchRequest) SetCoordinator(ntp model.NTP) {
	r.Coordinator = ntp
}

// Request Readers

func (r *OffsetFetchRequest) readGroupID(d *Decoder) {
	r.GroupID, _ = d.ReadString()
}

func (r *OffsetFetchRequest) readTopics(d *Decoder) {
	count, _ := d.ReadInt32()
	if count < 0 {
		return // null array means all topics (v2+)
	}

	r.Topics = make([]OffsetFetchRequestTopic, count)
	for i := range r.Topics {
		r.Topics[i].readFrom(d)
	}
}

func (t *OffsetFetchRequestTopic) readFrom(d *Decoder) {
	t.Name, _ = d.ReadString()

	count, _ := d.ReadInt32()
	t.Partitions = make([]int32, count)
	for i := range t.Partitions {
		t.Partitions[i], _ = d.ReadInt32()
	}
}

// Decode - the recipe

func DecodeOffsetFetchRequest(d *Decoder, v int16) (*OffsetFetchRequest, error) {
	r := &OffsetFetchRequest{}

	r.readGroupID(d)                            // v0+
	r.readTopics(d)                             // v0+

	return r, nil
}

// ----------------------------------------------------------------------------
// Response
// ----------------------------------------------------------------------------

type OffsetFetchResponse struct {
	ThrottleTimeMs int32 // v3+
	Topics         []OffsetFetchResponseTopic
	ErrorCode      int16 // v2+
}

type OffsetFetchResponseTopic struct {
	Name       string
	Partitions []OffsetFetchResponsePartition
}

type OffsetFetchResponsePartition struct {
	Index           int32
	CommittedOffset int64
	LeaderEpoch     int32 // v5+
	Metadata        *string
	ErrorCode       int16
}

// NewOffsetFetchErrorResponse builds a reply carrying the error at the top
// level and on every requested partition.
func NewOffsetFetchErrorResponse(req *OffsetFetchRequest, code int16) *OffsetFetchResponse {
	resp := &OffsetFetchResponse{ErrorCode: code}
	for _, t := range req.Topics {
		topic := OffsetFetchResponseTopic{Name: t.Name}
		for _, p := range t.Partitions {
			topic.Partitions = append(topic.Partitions, OffsetFetchResponsePartition{
				Index:           p,
				CommittedOffset: -1,
				LeaderEpoch:     -1,
				ErrorCode:       code,
			})
		}
		resp.Topics = append(resp.Topics, topic)
	}
	return resp
}

// Response Writers

func (r *OffsetFetchResponse) writeThrottleTime(e *Encoder) {
	e.WriteInt32(r.ThrottleTimeMs)
}

func (r *OffsetFetchResponse) writeTopics(e *Encoder, version int16) {
	e.WriteArrayLen(len(r.Topics))

	for _, t := range r.Topics {
		t.writeTo(e, version)
	}
}

func (t *OffsetFetchResponseTopic) writeTo(e *Encoder, version int16) {
	e.WriteString(t.Name)
	e.WriteArrayLen(len(t.Partitions))

	for _, p := range t.Partitions {
		p.writeTo(e, version)
	}
}

func (p *OffsetFetchResponsePartition) writeTo(e *Encoder, version int16) {
	e.WriteInt32(p.Index)
	e.WriteInt64(p.CommittedOffset)

	if version >= 5 {
		e.WriteInt32(p.LeaderEpoch)              // v5+
	}

	e.WriteNullableString(p.Metadata)
	e.WriteInt16(p.ErrorCode)
}

func (r *OffsetFetchResponse) writeErrorCode(e *Encoder) {
	e.WriteInt16(r.ErrorCode)
}

// Encode - the recipe

func EncodeOffsetFetchResponse(e *Encoder, v int16, r *OffsetFetchResponse) {
	if v >= 3 {
		r.writeThrottleTime(e)                  // v3+
	}
	r.writeTopics(e, v)                         // v0+
	if v >= 2 {
		r.writeErrorCode(e)                     // v2+
	}
}
