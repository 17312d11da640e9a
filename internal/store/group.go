package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

	"github.com/rizkyandriawan/polylog/internal/model"
)

// ErrStoreClosed is returned when staging a write against a closed store.
var ErrStoreClosed = errors.New("offset store closed")

// OffsetStore persists committed offsets and group metadata in badger,
// keyed by the coordinating offsets partition. Durability for offset
// commits is asynchronous: the badger transaction is handed off with
// CommitWith and the caller's done callback fires once the write has been
// applied.
type OffsetStore struct {
	db     *DB
	closed atomic.Bool
}

// NewOffsetStore creates an OffsetStore over the given database.
func NewOffsetStore(db *DB) *OffsetStore {
	return &OffsetStore{db: db}
}

func groupMetaKey(ntp model.NTP, group string) []byte {
	return []byte(fmt.Sprintf("coord:%s/%s/%d:%s:meta", ntp.Namespace, ntp.Topic, ntp.Partition, group))
}

func groupOffsetKey(ntp model.NTP, group, topic string, partition int32) []byte {
	return []byte(fmt.Sprintf("coord:%s/%s/%d:%s:off:%s:%d", ntp.Namespace, ntp.Topic, ntp.Partition, group, topic, partition))
}

func groupPrefix(ntp model.NTP, group string) []byte {
	return []byte(fmt.Sprintf("coord:%s/%s/%d:%s:", ntp.Namespace, ntp.Topic, ntp.Partition, group))
}

func partitionPrefix(ntp model.NTP) []byte {
	return []byte(fmt.Sprintf("coord:%s/%s/%d:", ntp.Namespace, ntp.Topic, ntp.Partition))
}

// CommitOffsets stages an offset commit. A synchronous error means nothing
// was written and done will not run; otherwise done fires exactly once
// after the badger commit completes.
func (s *OffsetStore) CommitOffsets(ntp model.NTP, group string, offsets []CommittedOffset, done func(error)) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}

	txn := s.db.Badger().NewTransaction(true)
	for _, off := range offsets {
		val, err := json.Marshal(off)
		if err != nil {
			txn.Discard()
			return err
		}
		if err := txn.Set(groupOffsetKey(ntp, group, off.Topic, off.Partition), val); err != nil {
			txn.Discard()
			return err
		}
	}

	txn.CommitWith(done)
	return nil
}

// FetchOffsets returns every committed offset stored for the group.
func (s *OffsetStore) FetchOffsets(ntp model.NTP, group string) ([]CommittedOffset, error) {
	var out []CommittedOffset
	prefix := groupPrefix(ntp, group)

	err := s.db.Badger().View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		metaSuffix := ":meta"
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())
			if len(key) >= len(metaSuffix) && key[len(key)-len(metaSuffix):] == metaSuffix {
				continue
			}
			err := item.Value(func(val []byte) error {
				var off CommittedOffset
				if err := json.Unmarshal(val, &off); err != nil {
					return err
				}
				out = append(out, off)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	return out, err
}

// SaveGroup persists the group's metadata.
func (s *OffsetStore) SaveGroup(ntp model.NTP, meta *GroupMetadata) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	val, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return s.db.Badger().Update(func(txn *badger.Txn) error {
		return txn.Set(groupMetaKey(ntp, meta.ID), val)
	})
}

// LoadGroups returns the metadata of every group coordinated by the
// partition. Used to recover state when a partition is attached.
func (s *OffsetStore) LoadGroups(ntp model.NTP) ([]*GroupMetadata, error) {
	var out []*GroupMetadata

	err := s.db.Badger().View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = partitionPrefix(ntp)
		it := txn.NewIterator(opts)
		defer it.Close()

		metaSuffix := ":meta"
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())
			if len(key) < len(metaSuffix) || key[len(key)-len(metaSuffix):] != metaSuffix {
				continue
			}
			err := item.Value(func(val []byte) error {
				var meta GroupMetadata
				if err := json.Unmarshal(val, &meta); err != nil {
					return err
				}
				out = append(out, &meta)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	return out, err
}

// DeleteGroup removes the group's metadata and offsets.
func (s *OffsetStore) DeleteGroup(ntp model.NTP, group string) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	prefix := groupPrefix(ntp, group)

	return s.db.Badger().Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)

		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close marks the store closed. Writes staged afterwards fail with
// ErrStoreClosed; the underlying database is owned by the caller.
func (s *OffsetStore) Close() error {
	s.closed.Store(true)
	return nil
}

var _ OffsetStoreInterface = (*OffsetStore)(nil)
