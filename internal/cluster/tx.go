package cluster

import (
	"fmt"

	"github.com/rizkyandriawan/polylog/internal/model"
)

// TxErr is the cluster-internal transaction error taxonomy. It is carried
// on intra-cluster requests only and is deliberately disjoint from the
// Kafka protocol error codes, which cannot be extended.
type TxErr int16

const (
	TxErrNone TxErr = iota
	TxErrNotCoordinator
	TxErrCoordinatorNotAvailable
	TxErrStaleProducer
	TxErrInvalidProducerEpoch
	TxErrInvalidTxnState
	TxErrTimeout
)

func (e TxErr) String() string {
	switch e {
	case TxErrNone:
		return "none"
	case TxErrNotCoordinator:
		return "not_coordinator"
	case TxErrCoordinatorNotAvailable:
		return "coordinator_not_available"
	case TxErrStaleProducer:
		return "stale_producer"
	case TxErrInvalidProducerEpoch:
		return "invalid_producer_epoch"
	case TxErrInvalidTxnState:
		return "invalid_txn_state"
	case TxErrTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("tx_errc(%d)", int16(e))
	}
}

// ProducerIdentity identifies a transactional producer.
type ProducerIdentity struct {
	ID    int64
	Epoch int16
}

func (p ProducerIdentity) String() string {
	return fmt.Sprintf("{producer_id: %d, epoch: %d}", p.ID, p.Epoch)
}

// BeginGroupTxRequest opens a transaction on a group.
type BeginGroupTxRequest struct {
	GroupID   string
	PID       ProducerIdentity
	TxSeq     int64
	TimeoutMs int32

	// Coordinator is stamped by the router before the cross-core hop.
	Coordinator model.NTP
}

// CoordinatorKey returns the id used to locate the group's coordinator.
func (r *BeginGroupTxRequest) CoordinatorKey() string {
	return r.GroupID
}

// SetCoordinator records the coordinating partition on the request.
func (r *BeginGroupTxRequest) SetCoordinator(ntp model.NTP) {
	r.Coordinator = ntp
}

// BeginGroupTxResponse carries the transaction etag on success.
type BeginGroupTxResponse struct {
	Err  TxErr
	Etag int64
}

// NewBeginGroupTxErrorResponse builds the reply for a request that could
// not be routed.
func NewBeginGroupTxErrorResponse(_ *BeginGroupTxRequest, ec TxErr) *BeginGroupTxResponse {
	return &BeginGroupTxResponse{Err: ec}
}

// PrepareGroupTxRequest fences the transaction before commit.
type PrepareGroupTxRequest struct {
	GroupID string
	PID     ProducerIdentity
	TxSeq   int64
	Etag    int64

	Coordinator model.NTP
}

// CoordinatorKey returns the id used to locate the group's coordinator.
func (r *PrepareGroupTxRequest) CoordinatorKey() string {
	return r.GroupID
}

// SetCoordinator records the coordinating partition on the request.
func (r *PrepareGroupTxRequest) SetCoordinator(ntp model.NTP) {
	r.Coordinator = ntp
}

type PrepareGroupTxResponse struct {
	Err TxErr
}

func NewPrepareGroupTxErrorResponse(_ *PrepareGroupTxRequest, ec TxErr) *PrepareGroupTxResponse {
	return &PrepareGroupTxResponse{Err: ec}
}

// CommitGroupTxRequest folds the staged offsets into the committed state.
type CommitGroupTxRequest struct {
	GroupID string
	PID     ProducerIdentity
	TxSeq   int64

	Coordinator model.NTP
}

// CoordinatorKey returns the id used to locate the group's coordinator.
func (r *CommitGroupTxRequest) CoordinatorKey() string {
	return r.GroupID
}

// SetCoordinator records the coordinating partition on the request.
func (r *CommitGroupTxRequest) SetCoordinator(ntp model.NTP) {
	r.Coordinator = ntp
}

type CommitGroupTxResponse struct {
	Err TxErr
}

func NewCommitGroupTxErrorResponse(_ *CommitGroupTxRequest, ec TxErr) *CommitGroupTxResponse {
	return &CommitGroupTxResponse{Err: ec}
}

// AbortGroupTxRequest discards the staged offsets.
type AbortGroupTxRequest struct {
	GroupID string
	PID     ProducerIdentity
	TxSeq   int64

	Coordinator model.NTP
}

// CoordinatorKey returns the id used to locate the group's coordinator.
func (r *AbortGroupTxRequest) CoordinatorKey() string {
	return r.GroupID
}

// SetCoordinator records the coordinating partition on the request.
func (r *AbortGroupTxRequest) SetCoordinator(ntp model.NTP) {
	r.Coordinator = ntp
}

type AbortGroupTxResponse struct {
	Err TxErr
}

func NewAbortGroupTxErrorResponse(_ *AbortGroupTxRequest, ec TxErr) *AbortGroupTxResponse {
	return &AbortGroupTxResponse{Err: ec}
}
