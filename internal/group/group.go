package group

import (
	"time"

	"github.com/rizkyandriawan/polylog/internal/cluster"
	"github.com/rizkyandriawan/polylog/internal/model"
	"github.com/rizkyandriawan/polylog/internal/store"
)

// Group states, reported verbatim in ListGroups and DescribeGroups.
const (
	StateEmpty               = "Empty"
	StatePreparingRebalance  = "PreparingRebalance"
	StateCompletingRebalance = "CompletingRebalance"
	StateStable              = "Stable"
	StateDead                = "Dead"
)

// Member is a consumer group member.
type Member struct {
	ID                 string
	ClientID           string
	InstanceID         string
	SessionTimeoutMs   int32
	RebalanceTimeoutMs int32
	Metadata           []byte
	Assignment         []byte
	LastHeartbeat      time.Time
}

type offsetKey struct {
	topic     string
	partition int32
}

// txSession is an open transaction staged against a group by one producer.
type txSession struct {
	pid      cluster.ProducerIdentity
	seq      int64
	etag     int64
	prepared bool
	offsets  map[offsetKey]store.CommittedOffset
}

// Group is the in-memory state of a consumer group. A group lives on
// exactly one core, the owner of its coordinating offsets partition, and
// is never touched from any other core.
type Group struct {
	ID           string
	NTP          model.NTP
	State        string
	Generation   int32
	LeaderID     string
	ProtocolType string
	Protocol     string
	Members      map[string]*Member
	Offsets      map[offsetKey]store.CommittedOffset
	CreatedAt    time.Time
	UpdatedAt    time.Time

	txEtag   int64
	sessions map[cluster.ProducerIdentity]*txSession
}

func newGroup(id string, ntp model.NTP) *Group {
	now := time.Now()
	return &Group{
		ID:        id,
		NTP:       ntp,
		State:     StateEmpty,
		Members:   make(map[string]*Member),
		Offsets:   make(map[offsetKey]store.CommittedOffset),
		CreatedAt: now,
		UpdatedAt: now,
		sessions:  make(map[cluster.ProducerIdentity]*txSession),
	}
}

// addMember registers or refreshes a member and moves the group into a new
// rebalance round. The first member becomes leader.
func (g *Group) addMember(m *Member) {
	g.Members[m.ID] = m
	if len(g.Members) == 1 {
		g.LeaderID = m.ID
	}
	g.Generation++
	g.State = StateCompletingRebalance
	g.UpdatedAt = time.Now()
}

// removeMember drops a member, re-electing a leader if needed. An emptied
// group returns to the Empty state.
func (g *Group) removeMember(memberID string) {
	delete(g.Members, memberID)
	g.UpdatedAt = time.Now()

	if g.LeaderID == memberID {
		g.LeaderID = ""
		for id := range g.Members {
			g.LeaderID = id
			break
		}
	}

	if len(g.Members) == 0 {
		g.State = StateEmpty
		g.Protocol = ""
		return
	}
	// survivors must re-join before assignments are handed out again
	g.Generation++
	g.State = StatePreparingRebalance
}

// inRebalance reports whether a rebalance round is in progress.
func (g *Group) inRebalance() bool {
	return g.State == StatePreparingRebalance || g.State == StateCompletingRebalance
}

// commitOffsets folds offsets into the group's committed view.
func (g *Group) commitOffsets(offsets []store.CommittedOffset) {
	for _, off := range offsets {
		g.Offsets[offsetKey{off.Topic, off.Partition}] = off
	}
	g.UpdatedAt = time.Now()
}

// committedOffset returns the committed offset for a topic partition, or
// false if nothing is committed.
func (g *Group) committedOffset(topic string, partition int32) (store.CommittedOffset, bool) {
	off, ok := g.Offsets[offsetKey{topic, partition}]
	return off, ok
}

// beginTx opens a transaction session for the producer. A session already
// open under a newer epoch fences the request.
func (g *Group) beginTx(pid cluster.ProducerIdentity, seq int64) (int64, cluster.TxErr) {
	for open := range g.sessions {
		if open.ID == pid.ID && open.Epoch > pid.Epoch {
			return 0, cluster.TxErrInvalidProducerEpoch
		}
	}
	// a re-begin under the same pid replaces the stale session
	for open := range g.sessions {
		if open.ID == pid.ID {
			delete(g.sessions, open)
		}
	}

	g.txEtag++
	g.sessions[pid] = &txSession{
		pid:     pid,
		seq:     seq,
		etag:    g.txEtag,
		offsets: make(map[offsetKey]store.CommittedOffset),
	}
	return g.txEtag, cluster.TxErrNone
}

// stageTxOffsets stages offsets into the producer's open session.
func (g *Group) stageTxOffsets(pid cluster.ProducerIdentity, offsets []store.CommittedOffset) bool {
	s, ok := g.sessions[pid]
	if !ok {
		return false
	}
	for _, off := range offsets {
		s.offsets[offsetKey{off.Topic, off.Partition}] = off
	}
	return true
}

// prepareTx fences the session ahead of commit.
func (g *Group) prepareTx(pid cluster.ProducerIdentity, seq, etag int64) cluster.TxErr {
	s, ok := g.sessions[pid]
	if !ok {
		return cluster.TxErrInvalidTxnState
	}
	if s.seq != seq || s.etag != etag {
		return cluster.TxErrStaleProducer
	}
	s.prepared = true
	return cluster.TxErrNone
}

// takeTxOffsets closes the producer's session and returns its staged
// offsets for committing.
func (g *Group) takeTxOffsets(pid cluster.ProducerIdentity, seq int64) ([]store.CommittedOffset, cluster.TxErr) {
	s, ok := g.sessions[pid]
	if !ok {
		return nil, cluster.TxErrInvalidTxnState
	}
	if s.seq != seq {
		return nil, cluster.TxErrStaleProducer
	}
	delete(g.sessions, pid)

	out := make([]store.CommittedOffset, 0, len(s.offsets))
	for _, off := range s.offsets {
		out = append(out, off)
	}
	return out, cluster.TxErrNone
}

// abortTx discards the producer's session.
func (g *Group) abortTx(pid cluster.ProducerIdentity, seq int64) cluster.TxErr {
	s, ok := g.sessions[pid]
	if !ok {
		return cluster.TxErrInvalidTxnState
	}
	if s.seq != seq {
		return cluster.TxErrStaleProducer
	}
	delete(g.sessions, pid)
	return cluster.TxErrNone
}

// metadata converts the group into its persisted form.
func (g *Group) metadata() *store.GroupMetadata {
	meta := &store.GroupMetadata{
		ID:           g.ID,
		State:        g.State,
		Generation:   g.Generation,
		LeaderID:     g.LeaderID,
		ProtocolType: g.ProtocolType,
		Protocol:     g.Protocol,
		CreatedAt:    g.CreatedAt,
		UpdatedAt:    g.UpdatedAt,
	}
	for _, m := range g.Members {
		meta.Members = append(meta.Members, store.MemberMetadata{
			ID:                 m.ID,
			ClientID:           m.ClientID,
			InstanceID:         m.InstanceID,
			SessionTimeoutMs:   m.SessionTimeoutMs,
			RebalanceTimeoutMs: m.RebalanceTimeoutMs,
			Metadata:           m.Metadata,
			Assignment:         m.Assignment,
		})
	}
	return meta
}

// groupFromMetadata rebuilds a group from its persisted form.
func groupFromMetadata(ntp model.NTP, meta *store.GroupMetadata, offsets []store.CommittedOffset) *Group {
	g := newGroup(meta.ID, ntp)
	g.State = meta.State
	g.Generation = meta.Generation
	g.LeaderID = meta.LeaderID
	g.ProtocolType = meta.ProtocolType
	g.Protocol = meta.Protocol
	g.CreatedAt = meta.CreatedAt
	g.UpdatedAt = meta.UpdatedAt
	for _, m := range meta.Members {
		g.Members[m.ID] = &Member{
			ID:                 m.ID,
			ClientID:           m.ClientID,
			InstanceID:         m.InstanceID,
			SessionTimeoutMs:   m.SessionTimeoutMs,
			RebalanceTimeoutMs: m.RebalanceTimeoutMs,
			Metadata:           m.Metadata,
			Assignment:         m.Assignment,
			LastHeartbeat:      time.Now(),
		}
	}
	g.commitOffsets(offsets)
	return g
}
