package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rizkyandriawan/polylog/internal/model"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func waitDone(t *testing.T, done chan error) {
	t.Helper()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("commit callback never fired")
	}
}

func TestOffsetStoreCommitAndFetch(t *testing.T) {
	s := NewOffsetStore(openTestDB(t))
	ntp := model.OffsetsNTP(1)

	done := make(chan error, 1)
	err := s.CommitOffsets(ntp, "g", []CommittedOffset{
		{Topic: "a", Partition: 0, Offset: 42},
		{Topic: "a", Partition: 1, Offset: 7},
	}, func(err error) { done <- err })
	require.NoError(t, err)
	waitDone(t, done)

	offsets, err := s.FetchOffsets(ntp, "g")
	require.NoError(t, err)
	require.Len(t, offsets, 2)
}

func TestOffsetStoreCommitOverwrites(t *testing.T) {
	s := NewOffsetStore(openTestDB(t))
	ntp := model.OffsetsNTP(0)

	for _, offset := range []int64{10, 20} {
		done := make(chan error, 1)
		err := s.CommitOffsets(ntp, "g", []CommittedOffset{
			{Topic: "a", Partition: 0, Offset: offset},
		}, func(err error) { done <- err })
		require.NoError(t, err)
		waitDone(t, done)
	}

	offsets, err := s.FetchOffsets(ntp, "g")
	require.NoError(t, err)
	require.Len(t, offsets, 1)
	require.Equal(t, int64(20), offsets[0].Offset)
}

func TestOffsetStoreScopedByPartition(t *testing.T) {
	s := NewOffsetStore(openTestDB(t))

	done := make(chan error, 1)
	require.NoError(t, s.CommitOffsets(model.OffsetsNTP(0), "g", []CommittedOffset{
		{Topic: "a", Partition: 0, Offset: 1},
	}, func(err error) { done <- err }))
	waitDone(t, done)

	offsets, err := s.FetchOffsets(model.OffsetsNTP(1), "g")
	require.NoError(t, err)
	require.Empty(t, offsets)
}

func TestOffsetStoreClosedRejectsCommits(t *testing.T) {
	s := NewOffsetStore(openTestDB(t))
	require.NoError(t, s.Close())

	err := s.CommitOffsets(model.OffsetsNTP(0), "g", nil, func(error) {
		t.Fatal("done must not run for a rejected commit")
	})
	require.ErrorIs(t, err, ErrStoreClosed)
}

func TestOffsetStoreGroupMetadata(t *testing.T) {
	s := NewOffsetStore(openTestDB(t))
	ntp := model.OffsetsNTP(4)

	require.NoError(t, s.SaveGroup(ntp, &GroupMetadata{
		ID:         "g",
		State:      "Stable",
		Generation: 3,
		LeaderID:   "m-1",
		Members: []MemberMetadata{
			{ID: "m-1", SessionTimeoutMs: 30000},
		},
	}))

	groups, err := s.LoadGroups(ntp)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Equal(t, "g", groups[0].ID)
	require.Equal(t, int32(3), groups[0].Generation)
	require.Len(t, groups[0].Members, 1)
}

func TestOffsetStoreDeleteGroup(t *testing.T) {
	s := NewOffsetStore(openTestDB(t))
	ntp := model.OffsetsNTP(2)

	require.NoError(t, s.SaveGroup(ntp, &GroupMetadata{ID: "g"}))
	done := make(chan error, 1)
	require.NoError(t, s.CommitOffsets(ntp, "g", []CommittedOffset{
		{Topic: "a", Partition: 0, Offset: 5},
	}, func(err error) { done <- err }))
	waitDone(t, done)

	require.NoError(t, s.DeleteGroup(ntp, "g"))

	groups, err := s.LoadGroups(ntp)
	require.NoError(t, err)
	require.Empty(t, groups)

	offsets, err := s.FetchOffsets(ntp, "g")
	require.NoError(t, err)
	require.Empty(t, offsets)
}

func TestMemoryOffsetStoreFailCommits(t *testing.T) {
	s := NewMemoryOffsetStore()
	s.FailCommits(ErrStoreClosed)

	err := s.CommitOffsets(model.OffsetsNTP(0), "g", nil, func(error) {
		t.Fatal("done must not run for a rejected commit")
	})
	require.ErrorIs(t, err, ErrStoreClosed)
}
