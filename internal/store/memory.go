package store

import (
	"sync"

	"github.com/rizkyandriawan/polylog/internal/model"
)

// MemoryOffsetStore is an in-memory OffsetStoreInterface. It backs the
// ephemeral storage mode and the test suites.
type MemoryOffsetStore struct {
	mu      sync.Mutex
	closed  bool
	offsets map[model.NTP]map[string]map[offsetKey]CommittedOffset
	groups  map[model.NTP]map[string]*GroupMetadata

	// commitErr, when set, fails every subsequent commit at the staging
	// step, as if the backing log had been closed.
	commitErr error
}

type offsetKey struct {
	topic     string
	partition int32
}

// NewMemoryOffsetStore creates an empty in-memory store.
func NewMemoryOffsetStore() *MemoryOffsetStore {
	return &MemoryOffsetStore{
		offsets: make(map[model.NTP]map[string]map[offsetKey]CommittedOffset),
		groups:  make(map[model.NTP]map[string]*GroupMetadata),
	}
}

// FailCommits makes every subsequent CommitOffsets fail with err at the
// staging step.
func (s *MemoryOffsetStore) FailCommits(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitErr = err
}

// CommitOffsets applies the offsets and schedules done on a fresh
// goroutine, mirroring the asynchronous durability of the real backends.
func (s *MemoryOffsetStore) CommitOffsets(ntp model.NTP, group string, offsets []CommittedOffset, done func(error)) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	if s.commitErr != nil {
		err := s.commitErr
		s.mu.Unlock()
		return err
	}

	byGroup, ok := s.offsets[ntp]
	if !ok {
		byGroup = make(map[string]map[offsetKey]CommittedOffset)
		s.offsets[ntp] = byGroup
	}
	byKey, ok := byGroup[group]
	if !ok {
		byKey = make(map[offsetKey]CommittedOffset)
		byGroup[group] = byKey
	}
	for _, off := range offsets {
		byKey[offsetKey{off.Topic, off.Partition}] = off
	}
	s.mu.Unlock()

	go done(nil)
	return nil
}

// FetchOffsets returns every committed offset stored for the group.
func (s *MemoryOffsetStore) FetchOffsets(ntp model.NTP, group string) ([]CommittedOffset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []CommittedOffset
	for _, off := range s.offsets[ntp][group] {
		out = append(out, off)
	}
	return out, nil
}

// SaveGroup persists the group's metadata.
func (s *MemoryOffsetStore) SaveGroup(ntp model.NTP, meta *GroupMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	byGroup, ok := s.groups[ntp]
	if !ok {
		byGroup = make(map[string]*GroupMetadata)
		s.groups[ntp] = byGroup
	}
	copied := *meta
	byGroup[meta.ID] = &copied
	return nil
}

// LoadGroups returns the metadata of every group coordinated by the
// partition.
func (s *MemoryOffsetStore) LoadGroups(ntp model.NTP) ([]*GroupMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*GroupMetadata
	for _, meta := range s.groups[ntp] {
		copied := *meta
		out = append(out, &copied)
	}
	return out, nil
}

// DeleteGroup removes the group's metadata and offsets.
func (s *MemoryOffsetStore) DeleteGroup(ntp model.NTP, group string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	delete(s.groups[ntp], group)
	delete(s.offsets[ntp], group)
	return nil
}

// Close marks the store closed.
func (s *MemoryOffsetStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ OffsetStoreInterface = (*MemoryOffsetStore)(nil)
