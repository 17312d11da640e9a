package group

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/rizkyandriawan/polylog/internal/cluster"
	"github.com/rizkyandriawan/polylog/internal/coordinator"
	"github.com/rizkyandriawan/polylog/internal/model"
	"github.com/rizkyandriawan/polylog/internal/protocol"
	"github.com/rizkyandriawan/polylog/internal/shard"
	"github.com/rizkyandriawan/polylog/internal/store"
)

type testRig struct {
	t        *testing.T
	pool     *shard.Pool
	store    *store.MemoryOffsetStore
	mappers  *shard.Sharded[*coordinator.Mapper]
	tables   *shard.Sharded[*coordinator.ShardTable]
	managers *shard.Sharded[*Manager]
	sg       *shard.SchedulingGroup
	ssg      *shard.SMPServiceGroup
	routers  []*Router
}

func newTestRig(t *testing.T, cores int, partitions int32) *testRig {
	t.Helper()

	pool := shard.NewPool(cores, nil)
	t.Cleanup(pool.Close)

	st := store.NewMemoryOffsetStore()
	mappers := shard.NewSharded(pool, func(shard.CoreID) *coordinator.Mapper {
		if partitions > 0 {
			return coordinator.NewMapperWithPartitions(partitions)
		}
		return coordinator.NewMapper()
	})
	tables := shard.NewSharded(pool, func(shard.CoreID) *coordinator.ShardTable {
		return coordinator.NewShardTable()
	})
	managers := shard.NewSharded(pool, func(core shard.CoreID) *Manager {
		return NewManager(core, pool, st, nil)
	})

	sg := shard.NewSchedulingGroup("test", prometheus.NewRegistry())
	ssg := shard.NewSMPServiceGroup("test", 16)

	routers := make([]*Router, cores)
	for c := 0; c < cores; c++ {
		routers[c] = NewRouter(shard.CoreID(c), sg, ssg, managers, tables, mappers, nil)
	}

	return &testRig{
		t:        t,
		pool:     pool,
		store:    st,
		mappers:  mappers,
		tables:   tables,
		managers: managers,
		sg:       sg,
		ssg:      ssg,
		routers:  routers,
	}
}

// onCore runs fn against the core's manager on that core and waits.
func (r *testRig) onCore(core shard.CoreID, fn func(*Manager)) {
	r.t.Helper()
	_, err := shard.InvokeOn(r.managers, core, r.ssg, func(m *Manager) (struct{}, error) {
		fn(m)
		return struct{}{}, nil
	}).Wait()
	require.NoError(r.t, err)
}

// ntpFor resolves the mapper's partition for a group.
func (r *testRig) ntpFor(group string) model.NTP {
	r.t.Helper()
	ntp, ok := r.mappers.Local(0).NTPFor(group)
	require.True(r.t, ok)
	return ntp
}

// assign routes the partition to owner in every core's shard table and
// attaches it, recovered, on the owner.
func (r *testRig) assign(ntp model.NTP, owner shard.CoreID) {
	r.t.Helper()
	for c := 0; c < r.pool.Size(); c++ {
		r.tables.Local(shard.CoreID(c)).SetOwner(ntp, owner)
	}
	r.onCore(owner, func(m *Manager) {
		m.AttachPartition(ntp)
		require.NoError(r.t, m.FinishRecovery(ntp))
	})
}

// assignLoading is assign without recovery: the partition stays loading.
func (r *testRig) assignLoading(ntp model.NTP, owner shard.CoreID) {
	r.t.Helper()
	for c := 0; c < r.pool.Size(); c++ {
		r.tables.Local(shard.CoreID(c)).SetOwner(ntp, owner)
	}
	r.onCore(owner, func(m *Manager) {
		m.AttachPartition(ntp)
	})
}

// seedGroup creates a bare group on the owning core.
func (r *testRig) seedGroup(owner shard.CoreID, ntp model.NTP, id string) {
	r.t.Helper()
	r.onCore(owner, func(m *Manager) {
		p := m.partition(ntp)
		require.NotNil(r.t, p)
		p.groups[id] = newGroup(id, ntp)
	})
}

func (r *testRig) totalInvocations() int64 {
	var total int64
	for c := 0; c < r.pool.Size(); c++ {
		total += r.managers.Local(shard.CoreID(c)).Invocations()
	}
	return total
}

func joinRequest(group string) *protocol.JoinGroupRequest {
	return &protocol.JoinGroupRequest{
		GroupID:          group,
		SessionTimeoutMs: 30000,
		ProtocolType:     "consumer",
		Protocols: []protocol.JoinGroupRequestProtocol{
			{Name: "range", Metadata: []byte("topics")},
		},
	}
}

func commitRequest(group, topic string, partition int32, offset int64) *protocol.OffsetCommitRequest {
	return &protocol.OffsetCommitRequest{
		GroupID: group,
		Topics: []protocol.OffsetCommitRequestTopic{
			{Name: topic, Partitions: []protocol.OffsetCommitRequestPartition{
				{Index: partition, CommittedOffset: offset},
			}},
		},
	}
}

// ----------------------------------------------------------------------------
// Stateless routing
// ----------------------------------------------------------------------------

func TestRouteUnmappedHeartbeat(t *testing.T) {
	rig := newTestRig(t, 2, 0) // no offsets topic yet

	resp, err := rig.routers[0].Heartbeat(&protocol.HeartbeatRequest{
		GroupID:      "g",
		MemberID:     "m",
		GenerationID: 3,
	}).Wait()
	require.NoError(t, err)
	require.Equal(t, protocol.ErrNotCoordinator, resp.ErrorCode)
	require.Equal(t, int64(0), rig.totalInvocations())
}

func TestRouteUnmappedAllOperations(t *testing.T) {
	rig := newTestRig(t, 2, 0)
	r := rig.routers[0]

	join, err := r.JoinGroup(joinRequest("g")).Wait()
	require.NoError(t, err)
	require.Equal(t, protocol.ErrNotCoordinator, join.ErrorCode)

	sync, err := r.SyncGroup(&protocol.SyncGroupRequest{GroupID: "g"}).Wait()
	require.NoError(t, err)
	require.Equal(t, protocol.ErrNotCoordinator, sync.ErrorCode)

	leave, err := r.LeaveGroup(&protocol.LeaveGroupRequest{GroupID: "g", MemberID: "m"}).Wait()
	require.NoError(t, err)
	require.Equal(t, protocol.ErrNotCoordinator, leave.ErrorCode)

	fetch, err := r.OffsetFetch(&protocol.OffsetFetchRequest{GroupID: "g"}).Wait()
	require.NoError(t, err)
	require.Equal(t, protocol.ErrNotCoordinator, fetch.ErrorCode)

	described, err := r.DescribeGroup("g").Wait()
	require.NoError(t, err)
	require.Equal(t, protocol.ErrNotCoordinator, described.ErrorCode)
	require.Equal(t, "g", described.GroupID)

	require.Equal(t, int64(0), rig.totalInvocations())
}

func TestRouteUnmappedTxUsesClusterErrors(t *testing.T) {
	rig := newTestRig(t, 2, 0)
	r := rig.routers[0]
	pid := cluster.ProducerIdentity{ID: 9, Epoch: 0}

	begin, err := r.BeginTx(&cluster.BeginGroupTxRequest{GroupID: "g", PID: pid, TxSeq: 1}).Wait()
	require.NoError(t, err)
	require.Equal(t, cluster.TxErrNotCoordinator, begin.Err)

	prepare, err := r.PrepareTx(&cluster.PrepareGroupTxRequest{GroupID: "g", PID: pid, TxSeq: 1}).Wait()
	require.NoError(t, err)
	require.Equal(t, cluster.TxErrNotCoordinator, prepare.Err)

	commit, err := r.CommitTx(&cluster.CommitGroupTxRequest{GroupID: "g", PID: pid, TxSeq: 1}).Wait()
	require.NoError(t, err)
	require.Equal(t, cluster.TxErrNotCoordinator, commit.Err)

	abort, err := r.AbortTx(&cluster.AbortGroupTxRequest{GroupID: "g", PID: pid, TxSeq: 1}).Wait()
	require.NoError(t, err)
	require.Equal(t, cluster.TxErrNotCoordinator, abort.Err)

	txn, err := r.TxnOffsetCommit(&protocol.TxnOffsetCommitRequest{GroupID: "g"}).Wait()
	require.NoError(t, err)
	require.Empty(t, txn.Topics)

	require.Equal(t, int64(0), rig.totalInvocations())
}

// ----------------------------------------------------------------------------
// Pass-through
// ----------------------------------------------------------------------------

func TestRouteMappedJoin(t *testing.T) {
	rig := newTestRig(t, 3, 16)
	ntp := rig.ntpFor("g")
	rig.assign(ntp, 2)

	req := joinRequest("g")
	resp, err := rig.routers[0].JoinGroup(req).Wait()
	require.NoError(t, err)
	require.Equal(t, protocol.ErrNone, resp.ErrorCode)
	require.NotEmpty(t, resp.MemberID)

	// the request reached core 2 with the partition slot stamped
	require.Equal(t, ntp, req.Coordinator)
	require.Equal(t, int64(1), rig.managers.Local(2).Invocations())
	require.Equal(t, int64(1), rig.totalInvocations())

	rig.onCore(2, func(m *Manager) {
		g, ok := m.partition(ntp).groups["g"]
		require.True(t, ok)
		require.Equal(t, "g", g.ID)
		require.Equal(t, ntp, g.NTP)
	})
}

func TestRouteBusinessErrorPassesThrough(t *testing.T) {
	rig := newTestRig(t, 2, 16)
	ntp := rig.ntpFor("g")
	rig.assign(ntp, 1)
	rig.seedGroup(1, ntp, "g")

	resp, err := rig.routers[0].Heartbeat(&protocol.HeartbeatRequest{
		GroupID:  "g",
		MemberID: "ghost",
	}).Wait()
	require.NoError(t, err)
	require.Equal(t, protocol.ErrUnknownMemberID, resp.ErrorCode)
}

func TestRouteSchedulingEnvelope(t *testing.T) {
	rig := newTestRig(t, 2, 16)
	ntp := rig.ntpFor("g")
	rig.assign(ntp, 1)

	before := rig.sg.Entered()
	_, err := rig.routers[0].JoinGroup(joinRequest("g")).Wait()
	require.NoError(t, err)

	require.Greater(t, rig.sg.Entered(), before)
	require.Eventually(t, func() bool {
		return rig.sg.Inflight() == 0
	}, time.Second, 5*time.Millisecond)
}

// ----------------------------------------------------------------------------
// Two-stage offset commit
// ----------------------------------------------------------------------------

func TestOffsetCommitHappyPath(t *testing.T) {
	rig := newTestRig(t, 5, 16)
	ntp := rig.ntpFor("g")
	rig.assign(ntp, 4)

	stages := rig.routers[0].OffsetCommit(commitRequest("g", "topic-a", 0, 42))

	resp, err := stages.Committed.Wait()
	require.NoError(t, err)

	// dispatched resolved no later than committed
	select {
	case <-stages.Dispatched.Done():
	default:
		t.Fatal("committed resolved before dispatched")
	}
	_, err = stages.Dispatched.Wait()
	require.NoError(t, err)

	require.Len(t, resp.Topics, 1)
	require.Equal(t, protocol.ErrNone, resp.Topics[0].Partitions[0].ErrorCode)

	// the commit is visible to offset fetch
	fetch, err := rig.routers[0].OffsetFetch(&protocol.OffsetFetchRequest{
		GroupID: "g",
		Topics: []protocol.OffsetFetchRequestTopic{
			{Name: "topic-a", Partitions: []int32{0}},
		},
	}).Wait()
	require.NoError(t, err)
	require.Equal(t, int64(42), fetch.Topics[0].Partitions[0].CommittedOffset)
}

func TestOffsetCommitUnmapped(t *testing.T) {
	rig := newTestRig(t, 2, 0)

	stages := rig.routers[0].OffsetCommit(commitRequest("g", "topic-a", 0, 1))

	// the dispatched signal completes successfully; the committed signal
	// carries the synthesized response
	_, err := stages.Dispatched.Wait()
	require.NoError(t, err)

	resp, err := stages.Committed.Wait()
	require.NoError(t, err)
	require.Equal(t, protocol.ErrNotCoordinator, resp.Topics[0].Partitions[0].ErrorCode)
	require.Equal(t, int64(0), rig.totalInvocations())
}

func TestOffsetCommitDispatchFailure(t *testing.T) {
	rig := newTestRig(t, 3, 16)
	ntp := rig.ntpFor("g")
	rig.assign(ntp, 2)

	logClosed := errors.New("log closed")
	rig.store.FailCommits(logClosed)

	stages := rig.routers[0].OffsetCommit(commitRequest("g", "topic-a", 0, 7))

	_, err := stages.Dispatched.Wait()
	require.EqualError(t, err, "log closed")

	_, err = stages.Committed.Wait()
	require.EqualError(t, err, "log closed")
}

func TestOffsetCommitUnknownMember(t *testing.T) {
	rig := newTestRig(t, 2, 16)
	ntp := rig.ntpFor("g")
	rig.assign(ntp, 1)
	rig.seedGroup(1, ntp, "g")

	req := commitRequest("g", "topic-a", 0, 5)
	req.MemberID = "ghost"
	req.GenerationID = 9

	stages := rig.routers[0].OffsetCommit(req)
	_, err := stages.Dispatched.Wait()
	require.NoError(t, err)

	resp, err := stages.Committed.Wait()
	require.NoError(t, err)
	require.Equal(t, protocol.ErrUnknownMemberID, resp.Topics[0].Partitions[0].ErrorCode)
}

// ----------------------------------------------------------------------------
// List groups fan-out
// ----------------------------------------------------------------------------

func TestListGroupsMergesAllCores(t *testing.T) {
	rig := newTestRig(t, 3, 16)

	p0, p1, p2 := model.OffsetsNTP(0), model.OffsetsNTP(1), model.OffsetsNTP(2)
	rig.assign(p0, 0)
	rig.assign(p1, 1)
	rig.assign(p2, 2)
	rig.seedGroup(0, p0, "alpha")
	rig.seedGroup(1, p1, "beta")
	rig.seedGroup(2, p2, "gamma")

	result, err := rig.routers[0].ListGroups().Wait()
	require.NoError(t, err)
	require.Equal(t, protocol.ErrNone, result.ErrorCode)

	names := make(map[string]bool)
	for _, g := range result.Groups {
		names[g.GroupID] = true
	}
	require.Equal(t, map[string]bool{"alpha": true, "beta": true, "gamma": true}, names)
}

func TestListGroupsLoadingCoreDegrades(t *testing.T) {
	rig := newTestRig(t, 3, 16)

	p0, p1, p2 := model.OffsetsNTP(0), model.OffsetsNTP(1), model.OffsetsNTP(2)
	rig.assign(p0, 0)
	rig.assignLoading(p1, 1) // core 1 still loading
	rig.assign(p2, 2)
	rig.seedGroup(0, p0, "A")
	rig.seedGroup(2, p2, "B")
	rig.seedGroup(2, p2, "C")

	result, err := rig.routers[0].ListGroups().Wait()
	require.NoError(t, err)
	require.Equal(t, protocol.ErrCoordinatorLoadInProgress, result.ErrorCode)

	names := make(map[string]bool)
	for _, g := range result.Groups {
		names[g.GroupID] = true
	}
	require.Equal(t, map[string]bool{"A": true, "B": true, "C": true}, names)
}

// ----------------------------------------------------------------------------
// Delete groups fan-out
// ----------------------------------------------------------------------------

func TestDeleteGroupsCoverage(t *testing.T) {
	rig := newTestRig(t, 3, 16)

	groups := []string{"del-0", "del-1", "del-2", "del-3"}
	for _, g := range groups {
		ntp := rig.ntpFor(g)
		owner := shard.CoreID(int(ntp.Partition) % 3)
		if _, ok := rig.tables.Local(0).CoreFor(ntp); !ok {
			rig.assign(ntp, owner)
		}
		rig.seedGroup(owner, ntp, g)
	}

	results, err := rig.routers[0].DeleteGroups(groups).Wait()
	require.NoError(t, err)
	require.Len(t, results, len(groups))

	byID := make(map[string]int16)
	for _, res := range results {
		byID[res.GroupID] = res.ErrorCode
	}
	for _, g := range groups {
		code, ok := byID[g]
		require.True(t, ok, "missing result for %s", g)
		require.Equal(t, protocol.ErrNone, code)
	}
}

func TestDeleteGroupsMixed(t *testing.T) {
	rig := newTestRig(t, 3, 16)

	g1, g3 := "g1", "g3"
	p1 := rig.ntpFor(g1)
	p3 := rig.ntpFor(g3)
	rig.assign(p1, 1)
	if p3 != p1 {
		rig.assign(p3, 1)
	}
	rig.seedGroup(1, p1, g1)
	rig.seedGroup(1, p3, g3)

	// pick an unmapped group: its partition must have no shard-table entry
	g2 := ""
	for i := 0; i < 100; i++ {
		candidate := fmt.Sprintf("g2-%d", i)
		ntp := rig.ntpFor(candidate)
		if ntp != p1 && ntp != p3 {
			g2 = candidate
			break
		}
	}
	require.NotEmpty(t, g2)

	before := rig.managers.Local(1).Invocations()
	results, err := rig.routers[0].DeleteGroups([]string{g1, g2, g3}).Wait()
	require.NoError(t, err)
	require.Len(t, results, 3)

	byID := make(map[string]int16)
	for _, res := range results {
		byID[res.GroupID] = res.ErrorCode
	}
	require.Equal(t, protocol.ErrNotCoordinator, byID[g2])
	require.Equal(t, protocol.ErrNone, byID[g1])
	require.Equal(t, protocol.ErrNone, byID[g3])

	// one bucketed call reached core 1; the unmapped group crossed no core
	require.Equal(t, before+1, rig.managers.Local(1).Invocations())
	require.Equal(t, int64(0), rig.managers.Local(0).Invocations())
	require.Equal(t, int64(0), rig.managers.Local(2).Invocations())
}

func TestDeleteGroupsNonEmpty(t *testing.T) {
	rig := newTestRig(t, 2, 16)
	ntp := rig.ntpFor("busy")
	rig.assign(ntp, 1)

	_, err := rig.routers[0].JoinGroup(joinRequest("busy")).Wait()
	require.NoError(t, err)

	results, err := rig.routers[0].DeleteGroups([]string{"busy"}).Wait()
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, protocol.ErrNonEmptyGroup, results[0].ErrorCode)
}

func TestDeleteGroupsUnknown(t *testing.T) {
	rig := newTestRig(t, 2, 16)
	ntp := rig.ntpFor("nobody")
	rig.assign(ntp, 0)

	results, err := rig.routers[0].DeleteGroups([]string{"nobody"}).Wait()
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, protocol.ErrGroupIDNotFound, results[0].ErrorCode)
}

// ----------------------------------------------------------------------------
// Transactional flow
// ----------------------------------------------------------------------------

func TestTransactionalOffsetCommitFlow(t *testing.T) {
	rig := newTestRig(t, 3, 16)
	ntp := rig.ntpFor("tx-group")
	rig.assign(ntp, 1)

	r := rig.routers[0]
	pid := cluster.ProducerIdentity{ID: 7, Epoch: 1}

	begin, err := r.BeginTx(&cluster.BeginGroupTxRequest{GroupID: "tx-group", PID: pid, TxSeq: 1}).Wait()
	require.NoError(t, err)
	require.Equal(t, cluster.TxErrNone, begin.Err)
	require.Greater(t, begin.Etag, int64(0))

	txn, err := r.TxnOffsetCommit(&protocol.TxnOffsetCommitRequest{
		GroupID:       "tx-group",
		ProducerID:    pid.ID,
		ProducerEpoch: pid.Epoch,
		Topics: []protocol.TxnOffsetCommitRequestTopic{
			{Name: "topic-a", Partitions: []protocol.TxnOffsetCommitRequestPartition{
				{Index: 0, CommittedOffset: 99},
			}},
		},
	}).Wait()
	require.NoError(t, err)
	require.Equal(t, protocol.ErrNone, txn.Topics[0].Partitions[0].ErrorCode)

	// staged offsets are invisible until commit
	fetch, err := r.OffsetFetch(&protocol.OffsetFetchRequest{
		GroupID: "tx-group",
		Topics:  []protocol.OffsetFetchRequestTopic{{Name: "topic-a", Partitions: []int32{0}}},
	}).Wait()
	require.NoError(t, err)
	require.Equal(t, int64(-1), fetch.Topics[0].Partitions[0].CommittedOffset)

	prepare, err := r.PrepareTx(&cluster.PrepareGroupTxRequest{
		GroupID: "tx-group", PID: pid, TxSeq: 1, Etag: begin.Etag,
	}).Wait()
	require.NoError(t, err)
	require.Equal(t, cluster.TxErrNone, prepare.Err)

	commit, err := r.CommitTx(&cluster.CommitGroupTxRequest{GroupID: "tx-group", PID: pid, TxSeq: 1}).Wait()
	require.NoError(t, err)
	require.Equal(t, cluster.TxErrNone, commit.Err)

	fetch, err = r.OffsetFetch(&protocol.OffsetFetchRequest{
		GroupID: "tx-group",
		Topics:  []protocol.OffsetFetchRequestTopic{{Name: "topic-a", Partitions: []int32{0}}},
	}).Wait()
	require.NoError(t, err)
	require.Equal(t, int64(99), fetch.Topics[0].Partitions[0].CommittedOffset)
}

func TestAbortDiscardsStagedOffsets(t *testing.T) {
	rig := newTestRig(t, 2, 16)
	ntp := rig.ntpFor("tx-group")
	rig.assign(ntp, 1)

	r := rig.routers[0]
	pid := cluster.ProducerIdentity{ID: 3, Epoch: 0}

	begin, err := r.BeginTx(&cluster.BeginGroupTxRequest{GroupID: "tx-group", PID: pid, TxSeq: 5}).Wait()
	require.NoError(t, err)
	require.Equal(t, cluster.TxErrNone, begin.Err)

	_, err = r.TxnOffsetCommit(&protocol.TxnOffsetCommitRequest{
		GroupID:       "tx-group",
		ProducerID:    pid.ID,
		ProducerEpoch: pid.Epoch,
		Topics: []protocol.TxnOffsetCommitRequestTopic{
			{Name: "topic-a", Partitions: []protocol.TxnOffsetCommitRequestPartition{
				{Index: 0, CommittedOffset: 11},
			}},
		},
	}).Wait()
	require.NoError(t, err)

	abort, err := r.AbortTx(&cluster.AbortGroupTxRequest{GroupID: "tx-group", PID: pid, TxSeq: 5}).Wait()
	require.NoError(t, err)
	require.Equal(t, cluster.TxErrNone, abort.Err)

	fetch, err := r.OffsetFetch(&protocol.OffsetFetchRequest{
		GroupID: "tx-group",
		Topics:  []protocol.OffsetFetchRequestTopic{{Name: "topic-a", Partitions: []int32{0}}},
	}).Wait()
	require.NoError(t, err)
	require.Equal(t, int64(-1), fetch.Topics[0].Partitions[0].CommittedOffset)
}

// ----------------------------------------------------------------------------
// Shard-for helper
// ----------------------------------------------------------------------------

func TestShardForSnapshot(t *testing.T) {
	rig := newTestRig(t, 2, 16)
	ntp := rig.ntpFor("g")
	rig.assign(ntp, 0)

	gotNTP, core, ok := rig.routers[0].ShardFor("g")
	require.True(t, ok)
	require.Equal(t, ntp, gotNTP)
	require.Equal(t, shard.CoreID(0), core)

	// ownership moves between calls; the next lookup sees the new owner
	for c := 0; c < 2; c++ {
		rig.tables.Local(shard.CoreID(c)).SetOwner(ntp, 1)
	}
	_, core, ok = rig.routers[0].ShardFor("g")
	require.True(t, ok)
	require.Equal(t, shard.CoreID(1), core)
}

func TestShardForUnownedPartition(t *testing.T) {
	rig := newTestRig(t, 2, 16)

	// mapper resolves but no shard-table entry exists
	_, _, ok := rig.routers[0].ShardFor("orphan")
	require.False(t, ok)
}
