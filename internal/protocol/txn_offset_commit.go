package protocol

import "github.com/rizkyandriawan/polylog/internal/model"

// ============================================================================
// TxnOffsetCommit (API Key 28)
// Supported versions: 0-2
// ============================================================================

// ----------------------------------------------------------------------------
// Request
// ----------------------------------------------------------------------------

type TxnOffsetCommitRequest struct {
	TransactionalID string
	GroupID         string
	ProducerID      int64
	ProducerEpoch   int16
	GenerationID    int32  // v3+
	MemberID        string // v3+
	GroupInstanceID string // v3+
	Topics          []TxnOffsetCommitRequestTopic

	// Coordinator is not part of the wire format; set by the router.
	Coordinator model.NTP
}

type TxnOffsetCommitRequestTopic struct {
	Name       string
	Partitions []TxnOffsetCommitRequestPartition
}

type TxnOffsetCommitRequestPartition struct {
	Index           int32
	CommittedOffset int64
	LeaderEpoch     int32 // v2+
	Metadata        *string
}

// CoordinatorKey returns the id used to locate the group's coordinator.
func (r *TxnOffsetCommitRequest) CoordinatorKey() string {
	return r.GroupID
}

// SetCoordinator records the coordinating partition on the request.
func (r *TxnOffsetCommitRequest) SetCoordinator(ntp model.NTP) {
	r.Coordinator = ntp
}

// Request Readers

func (r *TxnOffsetCommitRequest) readTransactionalID(d *Decoder) {
	r.TransactionalID, _ = d.ReadString()
}

func (r *TxnOffsetCommitRequest) readGroupID(d *Decoder) {
	r.GroupID, _ = d.ReadString()
}

func (r *TxnOffsetCommitRequest) readProducer(d *Decoder) {
	r.ProducerID, _ = d.ReadInt64()
	r.ProducerEpoch, _ = d.ReadInt16()
}

func (r *TxnOffsetCommitRequest) readMemberInfo(d *Decoder) {
	r.GenerationID, _ = d.ReadInt32()
	r.MemberID, _ = d.ReadString()
	s, _ := d.ReadNullableString()
	if s != nil {
		r.GroupInstanceID = *s
	}
}

func (r *TxnOffsetCommitRequest) readTopics(d *Decoder, version int16) {
	count, _ := d.ReadInt32()
	r.Topics = make([]TxnOffsetCommitRequestTopic, count)

	for i := range r.Topics {
		r.Topics[i].readFrom(d, version)
	}
}

func (t *TxnOffsetCommitRequestTopic) readFrom(d *Decoder, version int16) {
	t.Name, _ = d.ReadString()

	count, _ := d.ReadInt32()
	t.Partitions = make([]TxnOffsetCommitRequestPartition, count)

	for i := range t.Partitions {
		t.Partitions[i].readFrom(d, version)
	}
}

func (p *TxnOffsetCommitRequestPartition) readFrom(d *Decoder, version int16) {
	p.Index, _ = d.ReadInt32()
	p.CommittedOffset, _ = d.ReadInt64()

	if version >= 2 {
		p.LeaderEpoch, _ = d.ReadInt32()
	}

	p.Metadata, _ = d.ReadNullableString()
}

// Decode - the recipe

func DecodeTxnOffsetCommitRequest(d *Decoder, v int16) (*TxnOffsetCommitRequest, error) {
	r := &TxnOffsetCommitRequest{}

	r.readTransactionalID(d)                    // v0+
	r.readGroupID(d)                            // v0+
	r.readProducer(d)                           // v0+
	if v >= 3 {
		r.readMemberInfo(d)                     // v3+
	}
	r.readTopics(d, v)                          // v0+

	return r, nil
}

// ----------------------------------------------------------------------------
// Response
// ----------------------------------------------------------------------------

type TxnOffsetCommitResponse struct {
	ThrottleTimeMs int32
	Topics         []TxnOffsetCommitResponseTopic
}

type TxnOffsetCommitResponseTopic struct {
	Name       string
	Partitions []TxnOffsetCommitResponsePartition
}

type TxnOffsetCommitResponsePartition struct {
	Index     int32
	ErrorCode int16
}

// NewTxnOffsetCommitErrorResponse builds a reply mirroring the request's
// topic/partition layout with every partition carrying the error.
func NewTxnOffsetCommitErrorResponse(req *TxnOffsetCommitRequest, code int16) *TxnOffsetCommitResponse {
	resp := &TxnOffsetCommitResponse{}
	for _, t := range req.Topics {
		topic := TxnOffsetCommitResponseTopic{Name: t.Name}
		for _, p := range t.Partitions {
			topic.Partitions = append(topic.Partitions, TxnOffsetCommitResponsePartition{
				Index:     p.Index,
				ErrorCode: code,
			})
		}
		resp.Topics = append(resp.Topics, topic)
	}
	return resp
}

// Response Writers

func (r *TxnOffsetCommitResponse) writeThrottleTime(e *Encoder) {
	e.WriteInt32(r.ThrottleTimeMs)
}

func (r *TxnOffsetCommitResponse) writeTopics(e *Encoder) {
	e.WriteArrayLen(len(r.Topics))

	for _, t := range r.Topics {
		e.WriteString(t.Name)
		e.WriteArrayLen(len(t.Partitions))
		for _, p := range t.Partitions {
			e.WriteInt32(p.Index)
			e.WriteInt16(p.ErrorCode)
		}
	}
}

// Encode - the recipe

func EncodeTxnOffsetCommitResponse(e *Encoder, v int16, r *TxnOffsetCommitResponse) {
	r.writeThrottleTime(e)                      // v0+
	r.writeTopics(e)                            // v0+
}
