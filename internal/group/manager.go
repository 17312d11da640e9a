package group

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/rizkyandriawan/polylog/internal/cluster"
	"github.com/rizkyandriawan/polylog/internal/model"
	"github.com/rizkyandriawan/polylog/internal/protocol"
	"github.com/rizkyandriawan/polylog/internal/shard"
	"github.com/rizkyandriawan/polylog/internal/store"
)

// OffsetCommitStages are the two completion moments of an offset commit:
// Dispatched resolves once the commit has been validated and handed to the
// offsets log; Committed resolves when the write is durable. Dispatched
// always resolves before Committed.
type OffsetCommitStages struct {
	Dispatched *shard.Signal[struct{}]
	Committed  *shard.Signal[*protocol.OffsetCommitResponse]
}

func readyStages(resp *protocol.OffsetCommitResponse) *OffsetCommitStages {
	return &OffsetCommitStages{
		Dispatched: shard.Resolved(struct{}{}),
		Committed:  shard.Resolved(resp),
	}
}

type attachedPartition struct {
	ntp     model.NTP
	loading bool
	groups  map[string]*Group
}

// Manager holds the authoritative state for every group whose coordinating
// offsets partition is owned by its core. One instance lives on each core;
// all methods must run on that core.
type Manager struct {
	core    shard.CoreID
	pool    *shard.Pool
	logger  log.Logger
	offsets store.OffsetStoreInterface

	partitions map[model.NTP]*attachedPartition

	invocations atomic.Int64
	expired     atomic.Int64
}

// NewManager creates the manager for one core. The pool is used to hop
// back onto the owning core from storage completion callbacks.
func NewManager(core shard.CoreID, pool *shard.Pool, offsets store.OffsetStoreInterface, logger log.Logger) *Manager {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Manager{
		core:       core,
		pool:       pool,
		logger:     log.With(logger, "component", "group-manager", "core", int(core)),
		offsets:    offsets,
		partitions: make(map[model.NTP]*attachedPartition),
	}
}

// onCore runs fn on the manager's core; it falls back to running inline if
// the pool is shutting down.
func (m *Manager) onCore(fn func()) {
	if m.pool == nil || m.pool.SubmitTo(m.core, fn) != nil {
		fn()
	}
}

// Core returns the core this manager lives on.
func (m *Manager) Core() shard.CoreID {
	return m.core
}

// Invocations returns how many operations the manager has handled.
func (m *Manager) Invocations() int64 {
	return m.invocations.Load()
}

// AttachPartition registers ownership of an offsets partition. The
// partition stays in the loading state until FinishRecovery runs; requests
// against a loading partition report the coordinator as loading.
func (m *Manager) AttachPartition(ntp model.NTP) {
	m.partitions[ntp] = &attachedPartition{
		ntp:     ntp,
		loading: true,
		groups:  make(map[string]*Group),
	}
}

// FinishRecovery replays the partition's persisted groups and offsets into
// memory and opens the partition for traffic.
func (m *Manager) FinishRecovery(ntp model.NTP) error {
	p, ok := m.partitions[ntp]
	if !ok {
		return fmt.Errorf("partition not attached: %s", ntp)
	}

	metas, err := m.offsets.LoadGroups(ntp)
	if err != nil {
		return err
	}
	for _, meta := range metas {
		offs, err := m.offsets.FetchOffsets(ntp, meta.ID)
		if err != nil {
			return err
		}
		p.groups[meta.ID] = groupFromMetadata(ntp, meta, offs)
	}

	p.loading = false
	level.Debug(m.logger).Log("msg", "partition recovered", "ntp", ntp.String(), "groups", len(p.groups))
	return nil
}

// DetachPartition drops ownership of a partition and its groups.
func (m *Manager) DetachPartition(ntp model.NTP) {
	delete(m.partitions, ntp)
}

func (m *Manager) partition(ntp model.NTP) *attachedPartition {
	return m.partitions[ntp]
}

func (m *Manager) saveGroup(g *Group) {
	if err := m.offsets.SaveGroup(g.NTP, g.metadata()); err != nil {
		level.Warn(m.logger).Log("msg", "failed to persist group", "group", g.ID, "err", err)
	}
}

// ----------------------------------------------------------------------------
// Kafka protocol operations
// ----------------------------------------------------------------------------

// JoinGroup admits a member into a group and starts a rebalance round.
func (m *Manager) JoinGroup(req *protocol.JoinGroupRequest) *shard.Signal[*protocol.JoinGroupResponse] {
	m.invocations.Add(1)

	p := m.partition(req.Coordinator)
	if p == nil {
		return shard.Resolved(protocol.NewJoinGroupErrorResponse(req, protocol.ErrNotCoordinator))
	}
	if p.loading {
		return shard.Resolved(protocol.NewJoinGroupErrorResponse(req, protocol.ErrCoordinatorLoadInProgress))
	}
	if req.SessionTimeoutMs < 1000 {
		return shard.Resolved(protocol.NewJoinGroupErrorResponse(req, protocol.ErrInvalidSessionTimeout))
	}

	g, ok := p.groups[req.GroupID]
	if !ok {
		g = newGroup(req.GroupID, req.Coordinator)
		g.ProtocolType = req.ProtocolType
		p.groups[req.GroupID] = g
	}
	if g.ProtocolType != "" && g.ProtocolType != req.ProtocolType {
		return shard.Resolved(protocol.NewJoinGroupErrorResponse(req, protocol.ErrInconsistentGroupProtocol))
	}

	memberID := req.MemberID
	if memberID == "" {
		memberID = fmt.Sprintf("%s-%d", req.GroupID, time.Now().UnixNano())
	}

	member := &Member{
		ID:                 memberID,
		InstanceID:         req.GroupInstanceID,
		SessionTimeoutMs:   req.SessionTimeoutMs,
		RebalanceTimeoutMs: req.RebalanceTimeout,
		LastHeartbeat:      time.Now(),
	}
	if len(req.Protocols) > 0 {
		member.Metadata = req.Protocols[0].Metadata
		g.Protocol = req.Protocols[0].Name
	}
	g.ProtocolType = req.ProtocolType
	g.addMember(member)
	m.saveGroup(g)

	resp := &protocol.JoinGroupResponse{
		ErrorCode:    protocol.ErrNone,
		GenerationID: g.Generation,
		ProtocolType: g.ProtocolType,
		ProtocolName: g.Protocol,
		LeaderID:     g.LeaderID,
		MemberID:     memberID,
	}
	if memberID == g.LeaderID {
		for _, gm := range g.Members {
			resp.Members = append(resp.Members, protocol.JoinGroupResponseMember{
				MemberID:        gm.ID,
				GroupInstanceID: gm.InstanceID,
				Metadata:        gm.Metadata,
			})
		}
	}
	return shard.Resolved(resp)
}

// SyncGroup distributes the leader's assignments and stabilizes the group.
func (m *Manager) SyncGroup(req *protocol.SyncGroupRequest) *shard.Signal[*protocol.SyncGroupResponse] {
	m.invocations.Add(1)

	g, code := m.lookupGroup(req.Coordinator, req.GroupID)
	if code != protocol.ErrNone {
		return shard.Resolved(protocol.NewSyncGroupErrorResponse(req, code))
	}
	member, ok := g.Members[req.MemberID]
	if !ok {
		return shard.Resolved(protocol.NewSyncGroupErrorResponse(req, protocol.ErrUnknownMemberID))
	}
	if req.GenerationID != g.Generation {
		return shard.Resolved(protocol.NewSyncGroupErrorResponse(req, protocol.ErrIllegalGeneration))
	}

	if req.MemberID == g.LeaderID {
		for _, a := range req.Assignments {
			if target, ok := g.Members[a.MemberID]; ok {
				target.Assignment = a.Assignment
			}
		}
		g.State = StateStable
		g.UpdatedAt = time.Now()
		m.saveGroup(g)
	}

	return shard.Resolved(&protocol.SyncGroupResponse{
		ErrorCode:    protocol.ErrNone,
		ProtocolType: g.ProtocolType,
		ProtocolName: g.Protocol,
		Assignment:   member.Assignment,
	})
}

// Heartbeat refreshes a member's liveness.
func (m *Manager) Heartbeat(req *protocol.HeartbeatRequest) *shard.Signal[*protocol.HeartbeatResponse] {
	m.invocations.Add(1)

	g, code := m.lookupGroup(req.Coordinator, req.GroupID)
	if code != protocol.ErrNone {
		return shard.Resolved(protocol.NewHeartbeatErrorResponse(req, code))
	}
	member, ok := g.Members[req.MemberID]
	if !ok {
		return shard.Resolved(protocol.NewHeartbeatErrorResponse(req, protocol.ErrUnknownMemberID))
	}
	if req.GenerationID != g.Generation {
		return shard.Resolved(protocol.NewHeartbeatErrorResponse(req, protocol.ErrIllegalGeneration))
	}

	member.LastHeartbeat = time.Now()
	if g.inRebalance() {
		return shard.Resolved(protocol.NewHeartbeatErrorResponse(req, protocol.ErrRebalanceInProgress))
	}
	return shard.Resolved(&protocol.HeartbeatResponse{ErrorCode: protocol.ErrNone})
}

// LeaveGroup removes members and triggers a rebalance for the rest.
func (m *Manager) LeaveGroup(req *protocol.LeaveGroupRequest) *shard.Signal[*protocol.LeaveGroupResponse] {
	m.invocations.Add(1)

	g, code := m.lookupGroup(req.Coordinator, req.GroupID)
	if code != protocol.ErrNone {
		return shard.Resolved(protocol.NewLeaveGroupErrorResponse(req, code))
	}

	resp := &protocol.LeaveGroupResponse{ErrorCode: protocol.ErrNone}
	for _, lm := range req.LeavingMembers() {
		memberCode := protocol.ErrNone
		if _, ok := g.Members[lm.MemberID]; !ok {
			memberCode = protocol.ErrUnknownMemberID
		} else {
			g.removeMember(lm.MemberID)
		}
		resp.Members = append(resp.Members, protocol.LeaveGroupResponseMember{
			MemberID:        lm.MemberID,
			GroupInstanceID: lm.GroupInstanceID,
			ErrorCode:       memberCode,
		})
	}
	m.saveGroup(g)
	return shard.Resolved(resp)
}

// OffsetFetch reads the committed offsets for the requested partitions.
func (m *Manager) OffsetFetch(req *protocol.OffsetFetchRequest) *shard.Signal[*protocol.OffsetFetchResponse] {
	m.invocations.Add(1)

	p := m.partition(req.Coordinator)
	if p == nil {
		return shard.Resolved(protocol.NewOffsetFetchErrorResponse(req, protocol.ErrNotCoordinator))
	}
	if p.loading {
		return shard.Resolved(protocol.NewOffsetFetchErrorResponse(req, protocol.ErrCoordinatorLoadInProgress))
	}

	g := p.groups[req.GroupID]
	resp := &protocol.OffsetFetchResponse{ErrorCode: protocol.ErrNone}
	for _, t := range req.Topics {
		topic := protocol.OffsetFetchResponseTopic{Name: t.Name}
		for _, idx := range t.Partitions {
			part := protocol.OffsetFetchResponsePartition{
				Index:           idx,
				CommittedOffset: -1,
				LeaderEpoch:     -1,
			}
			if g != nil {
				if off, ok := g.committedOffset(t.Name, idx); ok {
					part.CommittedOffset = off.Offset
					part.LeaderEpoch = off.LeaderEpoch
					if off.Metadata != "" {
						md := off.Metadata
						part.Metadata = &md
					}
				}
			}
			topic.Partitions = append(topic.Partitions, part)
		}
		resp.Topics = append(resp.Topics, topic)
	}
	return shard.Resolved(resp)
}

// OffsetCommit validates and stages an offset commit, returning the
// two-stage pair. The dispatched stage always resolves before the
// committed stage: the committed resolution is chained behind it.
func (m *Manager) OffsetCommit(req *protocol.OffsetCommitRequest) *OffsetCommitStages {
	m.invocations.Add(1)

	p := m.partition(req.Coordinator)
	if p == nil {
		return readyStages(protocol.NewOffsetCommitErrorResponse(req, protocol.ErrNotCoordinator))
	}
	if p.loading {
		return readyStages(protocol.NewOffsetCommitErrorResponse(req, protocol.ErrCoordinatorLoadInProgress))
	}

	g, ok := p.groups[req.GroupID]
	if !ok {
		// standalone consumers commit without a generation
		if req.GenerationID > 0 {
			return readyStages(protocol.NewOffsetCommitErrorResponse(req, protocol.ErrIllegalGeneration))
		}
		g = newGroup(req.GroupID, req.Coordinator)
		p.groups[req.GroupID] = g
		m.saveGroup(g)
	} else if req.MemberID != "" {
		if _, ok := g.Members[req.MemberID]; !ok {
			return readyStages(protocol.NewOffsetCommitErrorResponse(req, protocol.ErrUnknownMemberID))
		}
		if req.GenerationID != g.Generation {
			return readyStages(protocol.NewOffsetCommitErrorResponse(req, protocol.ErrIllegalGeneration))
		}
	}

	offsets := offsetsFromCommit(req)
	resp := protocol.NewOffsetCommitErrorResponse(req, protocol.ErrNone)

	dispatched := shard.NewPromise[struct{}]()
	committed := shard.NewPromise[*protocol.OffsetCommitResponse]()

	err := m.offsets.CommitOffsets(req.Coordinator, req.GroupID, offsets, func(werr error) {
		// chain behind the dispatched stage so the stages can never be
		// observed out of order, and hop back onto the owning core before
		// touching group state
		dispatched.Signal().WhenReady(func(_ struct{}, _ error) {
			m.onCore(func() {
				if werr != nil {
					committed.Fail(werr)
					return
				}
				g.commitOffsets(offsets)
				committed.Complete(resp)
			})
		})
	})
	if err != nil {
		dispatched.Fail(err)
		committed.Fail(err)
		return &OffsetCommitStages{Dispatched: dispatched.Signal(), Committed: committed.Signal()}
	}

	dispatched.Complete(struct{}{})
	return &OffsetCommitStages{Dispatched: dispatched.Signal(), Committed: committed.Signal()}
}

func offsetsFromCommit(req *protocol.OffsetCommitRequest) []store.CommittedOffset {
	now := time.Now().UnixMilli()
	var out []store.CommittedOffset
	for _, t := range req.Topics {
		for _, p := range t.Partitions {
			off := store.CommittedOffset{
				Topic:       t.Name,
				Partition:   p.Index,
				Offset:      p.CommittedOffset,
				LeaderEpoch: p.LeaderEpoch,
				CommittedAt: now,
			}
			if p.Metadata != nil {
				off.Metadata = *p.Metadata
			}
			out = append(out, off)
		}
	}
	return out
}

// DescribeGroup reports the group's state and member roster.
func (m *Manager) DescribeGroup(ntp model.NTP, groupID string) *shard.Signal[protocol.DescribedGroup] {
	m.invocations.Add(1)

	p := m.partition(ntp)
	if p == nil {
		return shard.Resolved(protocol.MakeEmptyDescribedGroup(groupID, protocol.ErrNotCoordinator))
	}
	if p.loading {
		return shard.Resolved(protocol.MakeEmptyDescribedGroup(groupID, protocol.ErrCoordinatorLoadInProgress))
	}

	g, ok := p.groups[groupID]
	if !ok {
		described := protocol.MakeEmptyDescribedGroup(groupID, protocol.ErrNone)
		described.GroupState = StateDead
		return shard.Resolved(described)
	}

	described := protocol.DescribedGroup{
		ErrorCode:    protocol.ErrNone,
		GroupID:      g.ID,
		GroupState:   g.State,
		ProtocolType: g.ProtocolType,
		ProtocolData: g.Protocol,
	}
	for _, member := range g.Members {
		described.Members = append(described.Members, protocol.DescribedGroupMember{
			MemberID:        member.ID,
			GroupInstanceID: member.InstanceID,
			ClientID:        member.ClientID,
			Metadata:        member.Metadata,
			Assignment:      member.Assignment,
		})
	}
	return shard.Resolved(described)
}

// ListGroups reports every group on this core. The error is non-none while
// any attached partition is still loading, meaning the list may be
// incomplete.
func (m *Manager) ListGroups() (int16, []protocol.ListedGroup) {
	m.invocations.Add(1)

	code := protocol.ErrNone
	var groups []protocol.ListedGroup
	for _, p := range m.partitions {
		if p.loading {
			code = protocol.ErrCoordinatorLoadInProgress
			continue
		}
		for _, g := range p.groups {
			groups = append(groups, protocol.ListedGroup{
				GroupID:      g.ID,
				ProtocolType: g.ProtocolType,
				GroupState:   g.State,
			})
		}
	}
	return code, groups
}

// PartitionGroup pairs a group with its coordinating partition for the
// delete-groups fan-out.
type PartitionGroup struct {
	NTP   model.NTP
	Group string
}

// DeleteGroups deletes the given groups, reporting one result per input.
// Only empty groups are deletable.
func (m *Manager) DeleteGroups(pairs []PartitionGroup) []protocol.DeletableGroupResult {
	m.invocations.Add(1)

	results := make([]protocol.DeletableGroupResult, 0, len(pairs))
	for _, pair := range pairs {
		results = append(results, protocol.DeletableGroupResult{
			GroupID:   pair.Group,
			ErrorCode: m.deleteGroup(pair),
		})
	}
	return results
}

func (m *Manager) deleteGroup(pair PartitionGroup) int16 {
	p := m.partition(pair.NTP)
	if p == nil {
		return protocol.ErrNotCoordinator
	}
	if p.loading {
		return protocol.ErrCoordinatorLoadInProgress
	}
	g, ok := p.groups[pair.Group]
	if !ok {
		return protocol.ErrGroupIDNotFound
	}
	if len(g.Members) > 0 {
		return protocol.ErrNonEmptyGroup
	}

	if err := m.offsets.DeleteGroup(pair.NTP, pair.Group); err != nil {
		level.Warn(m.logger).Log("msg", "failed to delete group", "group", pair.Group, "err", err)
		return protocol.ErrCoordinatorNotAvailable
	}
	g.State = StateDead
	delete(p.groups, pair.Group)
	return protocol.ErrNone
}

// ----------------------------------------------------------------------------
// Transactional operations (cluster-internal error taxonomy)
// ----------------------------------------------------------------------------

// TxnOffsetCommit stages transactional offsets into the producer's open
// session. They become visible on CommitTx.
func (m *Manager) TxnOffsetCommit(req *protocol.TxnOffsetCommitRequest) *shard.Signal[*protocol.TxnOffsetCommitResponse] {
	m.invocations.Add(1)

	p := m.partition(req.Coordinator)
	if p == nil {
		return shard.Resolved(protocol.NewTxnOffsetCommitErrorResponse(req, protocol.ErrNotCoordinator))
	}
	if p.loading {
		return shard.Resolved(protocol.NewTxnOffsetCommitErrorResponse(req, protocol.ErrCoordinatorLoadInProgress))
	}

	g, ok := p.groups[req.GroupID]
	if !ok {
		return shard.Resolved(protocol.NewTxnOffsetCommitErrorResponse(req, protocol.ErrInvalidTxnState))
	}

	pid := cluster.ProducerIdentity{ID: req.ProducerID, Epoch: req.ProducerEpoch}
	offsets := offsetsFromTxnCommit(req)
	if !g.stageTxOffsets(pid, offsets) {
		return shard.Resolved(protocol.NewTxnOffsetCommitErrorResponse(req, protocol.ErrInvalidTxnState))
	}
	return shard.Resolved(protocol.NewTxnOffsetCommitErrorResponse(req, protocol.ErrNone))
}

func offsetsFromTxnCommit(req *protocol.TxnOffsetCommitRequest) []store.CommittedOffset {
	now := time.Now().UnixMilli()
	var out []store.CommittedOffset
	for _, t := range req.Topics {
		for _, p := range t.Partitions {
			off := store.CommittedOffset{
				Topic:       t.Name,
				Partition:   p.Index,
				Offset:      p.CommittedOffset,
				LeaderEpoch: p.LeaderEpoch,
				CommittedAt: now,
			}
			if p.Metadata != nil {
				off.Metadata = *p.Metadata
			}
			out = append(out, off)
		}
	}
	return out
}

// BeginTx opens a transaction on the group.
func (m *Manager) BeginTx(req *cluster.BeginGroupTxRequest) *shard.Signal[*cluster.BeginGroupTxResponse] {
	m.invocations.Add(1)

	g, ec := m.lookupTxGroup(req.Coordinator, req.GroupID, true)
	if ec != cluster.TxErrNone {
		return shard.Resolved(&cluster.BeginGroupTxResponse{Err: ec})
	}

	etag, ec := g.beginTx(req.PID, req.TxSeq)
	if ec != cluster.TxErrNone {
		return shard.Resolved(&cluster.BeginGroupTxResponse{Err: ec})
	}
	return shard.Resolved(&cluster.BeginGroupTxResponse{Err: cluster.TxErrNone, Etag: etag})
}

// PrepareTx fences the transaction before commit.
func (m *Manager) PrepareTx(req *cluster.PrepareGroupTxRequest) *shard.Signal[*cluster.PrepareGroupTxResponse] {
	m.invocations.Add(1)

	g, ec := m.lookupTxGroup(req.Coordinator, req.GroupID, false)
	if ec != cluster.TxErrNone {
		return shard.Resolved(&cluster.PrepareGroupTxResponse{Err: ec})
	}
	return shard.Resolved(&cluster.PrepareGroupTxResponse{Err: g.prepareTx(req.PID, req.TxSeq, req.Etag)})
}

// CommitTx folds the staged offsets into the committed state. The response
// resolves once the fold is durable.
func (m *Manager) CommitTx(req *cluster.CommitGroupTxRequest) *shard.Signal[*cluster.CommitGroupTxResponse] {
	m.invocations.Add(1)

	g, ec := m.lookupTxGroup(req.Coordinator, req.GroupID, false)
	if ec != cluster.TxErrNone {
		return shard.Resolved(&cluster.CommitGroupTxResponse{Err: ec})
	}

	offsets, ec := g.takeTxOffsets(req.PID, req.TxSeq)
	if ec != cluster.TxErrNone {
		return shard.Resolved(&cluster.CommitGroupTxResponse{Err: ec})
	}
	if len(offsets) == 0 {
		return shard.Resolved(&cluster.CommitGroupTxResponse{Err: cluster.TxErrNone})
	}

	p := shard.NewPromise[*cluster.CommitGroupTxResponse]()
	err := m.offsets.CommitOffsets(req.Coordinator, req.GroupID, offsets, func(werr error) {
		m.onCore(func() {
			if werr != nil {
				p.Fail(werr)
				return
			}
			g.commitOffsets(offsets)
			p.Complete(&cluster.CommitGroupTxResponse{Err: cluster.TxErrNone})
		})
	})
	if err != nil {
		p.Fail(err)
	}
	return p.Signal()
}

// AbortTx discards the staged offsets.
func (m *Manager) AbortTx(req *cluster.AbortGroupTxRequest) *shard.Signal[*cluster.AbortGroupTxResponse] {
	m.invocations.Add(1)

	g, ec := m.lookupTxGroup(req.Coordinator, req.GroupID, false)
	if ec != cluster.TxErrNone {
		return shard.Resolved(&cluster.AbortGroupTxResponse{Err: ec})
	}
	return shard.Resolved(&cluster.AbortGroupTxResponse{Err: g.abortTx(req.PID, req.TxSeq)})
}

// ----------------------------------------------------------------------------
// Member expiry
// ----------------------------------------------------------------------------

// ExpireMembers removes members that have not heartbeated within their
// session timeout, using fallback for members that never declared one.
// Surviving members are pushed into a new rebalance round.
func (m *Manager) ExpireMembers(fallback time.Duration) int {
	now := time.Now()
	removed := 0

	for _, p := range m.partitions {
		if p.loading {
			continue
		}
		for _, g := range p.groups {
			var stale []string
			for id, member := range g.Members {
				timeout := fallback
				if member.SessionTimeoutMs > 0 {
					timeout = time.Duration(member.SessionTimeoutMs) * time.Millisecond
				}
				if now.Sub(member.LastHeartbeat) > timeout {
					stale = append(stale, id)
				}
			}
			for _, id := range stale {
				g.removeMember(id)
				removed++
				level.Debug(m.logger).Log("msg", "expired member", "group", g.ID, "member", id)
			}
			if len(stale) > 0 {
				m.saveGroup(g)
			}
		}
	}

	m.expired.Add(int64(removed))
	return removed
}

// ----------------------------------------------------------------------------
// Lookup helpers
// ----------------------------------------------------------------------------

func (m *Manager) lookupGroup(ntp model.NTP, groupID string) (*Group, int16) {
	p := m.partition(ntp)
	if p == nil {
		return nil, protocol.ErrNotCoordinator
	}
	if p.loading {
		return nil, protocol.ErrCoordinatorLoadInProgress
	}
	g, ok := p.groups[groupID]
	if !ok {
		return nil, protocol.ErrUnknownMemberID
	}
	return g, protocol.ErrNone
}

func (m *Manager) lookupTxGroup(ntp model.NTP, groupID string, create bool) (*Group, cluster.TxErr) {
	p := m.partition(ntp)
	if p == nil {
		return nil, cluster.TxErrNotCoordinator
	}
	if p.loading {
		return nil, cluster.TxErrCoordinatorNotAvailable
	}
	g, ok := p.groups[groupID]
	if !ok {
		if !create {
			return nil, cluster.TxErrInvalidTxnState
		}
		g = newGroup(groupID, ntp)
		p.groups[groupID] = g
		m.saveGroup(g)
	}
	return g, cluster.TxErrNone
}
