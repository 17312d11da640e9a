package group

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rizkyandriawan/polylog/internal/model"
	"github.com/rizkyandriawan/polylog/internal/protocol"
	"github.com/rizkyandriawan/polylog/internal/store"
)

func newTestManager(t *testing.T) (*Manager, model.NTP, *store.MemoryOffsetStore) {
	t.Helper()
	st := store.NewMemoryOffsetStore()
	m := NewManager(0, nil, st, nil)
	ntp := model.OffsetsNTP(0)
	m.AttachPartition(ntp)
	require.NoError(t, m.FinishRecovery(ntp))
	return m, ntp, st
}

func testJoin(t *testing.T, m *Manager, ntp model.NTP, group, member string) *protocol.JoinGroupResponse {
	t.Helper()
	req := &protocol.JoinGroupRequest{
		GroupID:          group,
		SessionTimeoutMs: 30000,
		MemberID:         member,
		ProtocolType:     "consumer",
		Protocols: []protocol.JoinGroupRequestProtocol{
			{Name: "range", Metadata: []byte("meta")},
		},
		Coordinator: ntp,
	}
	resp, err := m.JoinGroup(req).Wait()
	require.NoError(t, err)
	return resp
}

func TestJoinCreatesGroupAndElectsLeader(t *testing.T) {
	m, ntp, _ := newTestManager(t)

	resp := testJoin(t, m, ntp, "g", "")
	require.Equal(t, protocol.ErrNone, resp.ErrorCode)
	require.NotEmpty(t, resp.MemberID)
	require.Equal(t, resp.MemberID, resp.LeaderID)
	require.Equal(t, int32(1), resp.GenerationID)
	require.Len(t, resp.Members, 1) // leader sees the roster

	g := m.partition(ntp).groups["g"]
	require.Equal(t, StateCompletingRebalance, g.State)
}

func TestSecondJoinBumpsGeneration(t *testing.T) {
	m, ntp, _ := newTestManager(t)

	first := testJoin(t, m, ntp, "g", "")
	second := testJoin(t, m, ntp, "g", "")
	require.Equal(t, first.GenerationID+1, second.GenerationID)
	require.Equal(t, first.MemberID, second.LeaderID)
	require.Empty(t, second.Members) // followers get no roster
}

func TestJoinLoadingPartition(t *testing.T) {
	st := store.NewMemoryOffsetStore()
	m := NewManager(0, nil, st, nil)
	ntp := model.OffsetsNTP(0)
	m.AttachPartition(ntp) // no recovery

	req := &protocol.JoinGroupRequest{
		GroupID:          "g",
		SessionTimeoutMs: 30000,
		Coordinator:      ntp,
	}
	resp, err := m.JoinGroup(req).Wait()
	require.NoError(t, err)
	require.Equal(t, protocol.ErrCoordinatorLoadInProgress, resp.ErrorCode)
}

func TestJoinRejectsTinySessionTimeout(t *testing.T) {
	m, ntp, _ := newTestManager(t)

	req := &protocol.JoinGroupRequest{
		GroupID:          "g",
		SessionTimeoutMs: 10,
		Coordinator:      ntp,
	}
	resp, err := m.JoinGroup(req).Wait()
	require.NoError(t, err)
	require.Equal(t, protocol.ErrInvalidSessionTimeout, resp.ErrorCode)
}

func TestSyncStabilizesGroup(t *testing.T) {
	m, ntp, _ := newTestManager(t)

	join := testJoin(t, m, ntp, "g", "")
	sync, err := m.SyncGroup(&protocol.SyncGroupRequest{
		GroupID:      "g",
		GenerationID: join.GenerationID,
		MemberID:     join.MemberID,
		Assignments: []protocol.SyncGroupRequestAssignment{
			{MemberID: join.MemberID, Assignment: []byte("partitions 0-3")},
		},
		Coordinator: ntp,
	}).Wait()
	require.NoError(t, err)
	require.Equal(t, protocol.ErrNone, sync.ErrorCode)
	require.Equal(t, []byte("partitions 0-3"), sync.Assignment)

	g := m.partition(ntp).groups["g"]
	require.Equal(t, StateStable, g.State)

	// a stable group heartbeats cleanly
	hb, err := m.Heartbeat(&protocol.HeartbeatRequest{
		GroupID:      "g",
		GenerationID: join.GenerationID,
		MemberID:     join.MemberID,
		Coordinator:  ntp,
	}).Wait()
	require.NoError(t, err)
	require.Equal(t, protocol.ErrNone, hb.ErrorCode)
}

func TestSyncWrongGeneration(t *testing.T) {
	m, ntp, _ := newTestManager(t)

	join := testJoin(t, m, ntp, "g", "")
	sync, err := m.SyncGroup(&protocol.SyncGroupRequest{
		GroupID:      "g",
		GenerationID: join.GenerationID + 5,
		MemberID:     join.MemberID,
		Coordinator:  ntp,
	}).Wait()
	require.NoError(t, err)
	require.Equal(t, protocol.ErrIllegalGeneration, sync.ErrorCode)
}

func TestHeartbeatDuringRebalance(t *testing.T) {
	m, ntp, _ := newTestManager(t)

	join := testJoin(t, m, ntp, "g", "")
	hb, err := m.Heartbeat(&protocol.HeartbeatRequest{
		GroupID:      "g",
		GenerationID: join.GenerationID,
		MemberID:     join.MemberID,
		Coordinator:  ntp,
	}).Wait()
	require.NoError(t, err)
	require.Equal(t, protocol.ErrRebalanceInProgress, hb.ErrorCode)
}

func TestLeaveEmptiesGroup(t *testing.T) {
	m, ntp, _ := newTestManager(t)

	join := testJoin(t, m, ntp, "g", "")
	leave, err := m.LeaveGroup(&protocol.LeaveGroupRequest{
		GroupID:     "g",
		MemberID:    join.MemberID,
		Coordinator: ntp,
	}).Wait()
	require.NoError(t, err)
	require.Equal(t, protocol.ErrNone, leave.ErrorCode)
	require.Equal(t, protocol.ErrNone, leave.Members[0].ErrorCode)

	g := m.partition(ntp).groups["g"]
	require.Equal(t, StateEmpty, g.State)
	require.Empty(t, g.Members)
	require.Empty(t, g.LeaderID)
}

func TestLeaveUnknownMember(t *testing.T) {
	m, ntp, _ := newTestManager(t)
	testJoin(t, m, ntp, "g", "")

	leave, err := m.LeaveGroup(&protocol.LeaveGroupRequest{
		GroupID:     "g",
		MemberID:    "ghost",
		Coordinator: ntp,
	}).Wait()
	require.NoError(t, err)
	require.Equal(t, protocol.ErrUnknownMemberID, leave.Members[0].ErrorCode)
}

func TestDescribeGroupRoster(t *testing.T) {
	m, ntp, _ := newTestManager(t)
	join := testJoin(t, m, ntp, "g", "")

	described, err := m.DescribeGroup(ntp, "g").Wait()
	require.NoError(t, err)
	require.Equal(t, protocol.ErrNone, described.ErrorCode)
	require.Equal(t, "g", described.GroupID)
	require.Equal(t, "consumer", described.ProtocolType)
	require.Len(t, described.Members, 1)
	require.Equal(t, join.MemberID, described.Members[0].MemberID)
}

func TestDescribeMissingGroupIsDead(t *testing.T) {
	m, ntp, _ := newTestManager(t)

	described, err := m.DescribeGroup(ntp, "nope").Wait()
	require.NoError(t, err)
	require.Equal(t, protocol.ErrNone, described.ErrorCode)
	require.Equal(t, StateDead, described.GroupState)
	require.Empty(t, described.Members)
}

func TestExpireMembersEmptiesGroup(t *testing.T) {
	m, ntp, _ := newTestManager(t)

	join := testJoin(t, m, ntp, "g", "")
	g := m.partition(ntp).groups["g"]
	g.Members[join.MemberID].LastHeartbeat = time.Now().Add(-time.Hour)

	removed := m.ExpireMembers(30 * time.Second)
	require.Equal(t, 1, removed)
	require.Empty(t, g.Members)
	require.Equal(t, StateEmpty, g.State)
}

func TestExpireKeepsLiveMembers(t *testing.T) {
	m, ntp, _ := newTestManager(t)
	testJoin(t, m, ntp, "g", "")

	require.Equal(t, 0, m.ExpireMembers(30*time.Second))
}

func TestGroupStatePersistsAcrossRecovery(t *testing.T) {
	st := store.NewMemoryOffsetStore()
	ntp := model.OffsetsNTP(2)

	m1 := NewManager(0, nil, st, nil)
	m1.AttachPartition(ntp)
	require.NoError(t, m1.FinishRecovery(ntp))
	join := testJoin(t, m1, ntp, "durable", "")

	// a second manager recovering the same partition sees the group
	m2 := NewManager(1, nil, st, nil)
	m2.AttachPartition(ntp)
	require.NoError(t, m2.FinishRecovery(ntp))

	g, ok := m2.partition(ntp).groups["durable"]
	require.True(t, ok)
	require.Equal(t, join.GenerationID, g.Generation)
	require.Contains(t, g.Members, join.MemberID)
}

func TestListGroupsReportsState(t *testing.T) {
	m, ntp, _ := newTestManager(t)
	testJoin(t, m, ntp, "g", "")

	code, groups := m.ListGroups()
	require.Equal(t, protocol.ErrNone, code)
	require.Len(t, groups, 1)
	require.Equal(t, "g", groups[0].GroupID)
	require.Equal(t, StateCompletingRebalance, groups[0].GroupState)
}
