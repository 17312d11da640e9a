package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rizkyandriawan/polylog/internal/model"
)

// SQLiteDB wraps SQLite database
type SQLiteDB struct {
	db *sql.DB
}

// OpenSQLite opens or creates a SQLite database. Mode is "disk" or
// "memory".
func OpenSQLite(dataDir, mode string) (*SQLiteDB, error) {
	var dsn string
	if mode == "memory" {
		dsn = "file::memory:?cache=shared"
	} else {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, err
		}
		dbPath := filepath.Join(dataDir, "polylog.db")
		dsn = dbPath + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	// SQLite works best with a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteDB{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *SQLiteDB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS topics (
		name TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		latest_offset INTEGER NOT NULL DEFAULT -1
	);

	CREATE TABLE IF NOT EXISTS messages (
		topic TEXT NOT NULL,
		offset INTEGER NOT NULL,
		last_offset INTEGER NOT NULL,
		timestamp INTEGER NOT NULL,
		key BLOB,
		value BLOB,
		codec INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (topic, offset)
	);
	CREATE INDEX IF NOT EXISTS idx_messages_topic_ts ON messages(topic, timestamp);

	CREATE TABLE IF NOT EXISTS coordinator_groups (
		ntp TEXT NOT NULL,
		group_id TEXT NOT NULL,
		meta BLOB NOT NULL,
		PRIMARY KEY (ntp, group_id)
	);

	CREATE TABLE IF NOT EXISTS coordinator_offsets (
		ntp TEXT NOT NULL,
		group_id TEXT NOT NULL,
		topic TEXT NOT NULL,
		partition INTEGER NOT NULL,
		committed_offset INTEGER NOT NULL,
		leader_epoch INTEGER NOT NULL DEFAULT -1,
		metadata TEXT,
		committed_at INTEGER NOT NULL,
		PRIMARY KEY (ntp, group_id, topic, partition)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

func (s *SQLiteDB) DB() *sql.DB {
	return s.db
}

func ntpKey(ntp model.NTP) string {
	return fmt.Sprintf("%s/%s/%d", ntp.Namespace, ntp.Topic, ntp.Partition)
}

// ============================================================================
// SQLiteTopicStore
// ============================================================================

type SQLiteTopicStore struct {
	db     *SQLiteDB
	mu     sync.RWMutex
	topics map[string]*TopicMeta // in-memory cache
}

func NewSQLiteTopicStore(db *SQLiteDB) *SQLiteTopicStore {
	ts := &SQLiteTopicStore{
		db:     db,
		topics: make(map[string]*TopicMeta),
	}
	ts.loadTopics()
	return ts
}

func (s *SQLiteTopicStore) loadTopics() {
	rows, err := s.db.DB().Query("SELECT name, created_at, latest_offset FROM topics")
	if err != nil {
		return
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var createdAtMs, latestOffset int64
		if err := rows.Scan(&name, &createdAtMs, &latestOffset); err != nil {
			continue
		}
		s.topics[name] = &TopicMeta{
			Name:         name,
			CreatedAt:    time.UnixMilli(createdAtMs),
			LatestOffset: latestOffset,
		}
	}
}

func (s *SQLiteTopicStore) CreateTopic(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.topics[name]; exists {
		return fmt.Errorf("topic already exists: %s", name)
	}

	now := time.Now()
	_, err := s.db.DB().Exec(
		"INSERT INTO topics (name, created_at, latest_offset) VALUES (?, ?, ?)",
		name, now.UnixMilli(), -1,
	)
	if err != nil {
		return err
	}

	s.topics[name] = &TopicMeta{
		Name:         name,
		CreatedAt:    now,
		LatestOffset: -1,
	}
	return nil
}

func (s *SQLiteTopicStore) TopicExists(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.topics[name]
	return exists
}

func (s *SQLiteTopicStore) ListTopics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.topics))
	for name := range s.topics {
		names = append(names, name)
	}
	return names
}

func (s *SQLiteTopicStore) DeleteTopic(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.topics[name]; !exists {
		return fmt.Errorf("topic not found: %s", name)
	}

	tx, err := s.db.DB().Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM messages WHERE topic = ?", name); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM topics WHERE name = ?", name); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	delete(s.topics, name)
	return nil
}

func (s *SQLiteTopicStore) Append(topic string, records []Record) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, exists := s.topics[topic]
	if !exists {
		return 0, fmt.Errorf("topic not found: %s", topic)
	}

	baseOffset := meta.LatestOffset + 1

	tx, err := s.db.DB().Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("INSERT INTO messages (topic, offset, last_offset, timestamp, key, value, codec) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for i, rec := range records {
		offset := baseOffset + int64(i)
		ts := rec.Timestamp
		if ts == 0 {
			ts = time.Now().UnixMilli()
		}
		lastOffset := offset
		if rec.LastOffset > 0 {
			lastOffset = rec.LastOffset
		}

		_, err := stmt.Exec(topic, offset, lastOffset, ts, rec.Key, rec.Value, rec.Codec)
		if err != nil {
			return 0, err
		}
	}

	newLatest := baseOffset + int64(len(records)) - 1
	_, err = tx.Exec("UPDATE topics SET latest_offset = ? WHERE name = ?", newLatest, topic)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	meta.LatestOffset = newLatest
	return baseOffset, nil
}

func (s *SQLiteTopicStore) AppendRaw(topic string, data []byte, codec int8, recordCount int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, exists := s.topics[topic]
	if !exists {
		return 0, fmt.Errorf("topic not found: %s", topic)
	}

	baseOffset := meta.LatestOffset + 1
	lastOffset := baseOffset + int64(recordCount) - 1
	ts := time.Now().UnixMilli()

	tx, err := s.db.DB().Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		"INSERT INTO messages (topic, offset, last_offset, timestamp, key, value, codec) VALUES (?, ?, ?, ?, NULL, ?, ?)",
		topic, baseOffset, lastOffset, ts, data, codec,
	)
	if err != nil {
		return 0, err
	}

	_, err = tx.Exec("UPDATE topics SET latest_offset = ? WHERE name = ?", lastOffset, topic)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	meta.LatestOffset = lastOffset
	return baseOffset, nil
}

func (s *SQLiteTopicStore) Read(topic string, fromOffset int64, maxRecords int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.topics[topic]; !exists {
		return nil, fmt.Errorf("topic not found: %s", topic)
	}

	rows, err := s.db.DB().Query(
		`SELECT offset, last_offset, timestamp, key, value, codec
		 FROM messages
		 WHERE topic = ? AND last_offset >= ?
		 ORDER BY offset ASC
		 LIMIT ?`,
		topic, fromOffset, maxRecords,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var key, value []byte
		if err := rows.Scan(&rec.Offset, &rec.LastOffset, &rec.Timestamp, &key, &value, &rec.Codec); err != nil {
			continue
		}
		rec.Key = key
		rec.Value = value
		records = append(records, rec)
	}

	return records, nil
}

func (s *SQLiteTopicStore) LatestOffset(topic string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, exists := s.topics[topic]
	if !exists {
		return 0, fmt.Errorf("topic not found: %s", topic)
	}
	return meta.LatestOffset, nil
}

func (s *SQLiteTopicStore) EarliestOffset(topic string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.topics[topic]; !exists {
		return 0, fmt.Errorf("topic not found: %s", topic)
	}

	var earliest sql.NullInt64
	err := s.db.DB().QueryRow(
		"SELECT MIN(offset) FROM messages WHERE topic = ?",
		topic,
	).Scan(&earliest)
	if err != nil || !earliest.Valid {
		return 0, nil
	}
	return earliest.Int64, nil
}

func (s *SQLiteTopicStore) DeleteBefore(topic string, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.topics[topic]; !exists {
		return 0, fmt.Errorf("topic not found: %s", topic)
	}

	result, err := s.db.DB().Exec(
		"DELETE FROM messages WHERE topic = ? AND timestamp < ?",
		topic, cutoff.UnixMilli(),
	)
	if err != nil {
		return 0, err
	}

	affected, _ := result.RowsAffected()
	return int(affected), nil
}

func (s *SQLiteTopicStore) GetMeta(topic string) (*TopicMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, exists := s.topics[topic]
	if !exists {
		return nil, fmt.Errorf("topic not found: %s", topic)
	}
	return meta, nil
}

var _ TopicStoreInterface = (*SQLiteTopicStore)(nil)

// ============================================================================
// SQLiteOffsetStore
// ============================================================================

// SQLiteOffsetStore implements OffsetStoreInterface over SQLite. Offset
// commits are applied by a single write loop so the done callbacks fire
// asynchronously, after CommitOffsets has returned, in staging order.
type SQLiteOffsetStore struct {
	db *SQLiteDB

	mu     sync.Mutex
	closed bool
	writes chan sqliteCommit
	wg     sync.WaitGroup
}

type sqliteCommit struct {
	ntp     model.NTP
	group   string
	offsets []CommittedOffset
	done    func(error)
}

func NewSQLiteOffsetStore(db *SQLiteDB) *SQLiteOffsetStore {
	s := &SQLiteOffsetStore{
		db:     db,
		writes: make(chan sqliteCommit, 128),
	}
	s.wg.Add(1)
	go s.writeLoop()
	return s
}

func (s *SQLiteOffsetStore) writeLoop() {
	defer s.wg.Done()
	for w := range s.writes {
		w.done(s.applyCommit(w))
	}
}

func (s *SQLiteOffsetStore) applyCommit(w sqliteCommit) error {
	tx, err := s.db.DB().Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, off := range w.offsets {
		_, err := tx.Exec(
			`INSERT OR REPLACE INTO coordinator_offsets
			 (ntp, group_id, topic, partition, committed_offset, leader_epoch, metadata, committed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			ntpKey(w.ntp), w.group, off.Topic, off.Partition,
			off.Offset, off.LeaderEpoch, off.Metadata, off.CommittedAt,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLiteOffsetStore) CommitOffsets(ntp model.NTP, group string, offsets []CommittedOffset, done func(error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.writes <- sqliteCommit{ntp: ntp, group: group, offsets: offsets, done: done}
	return nil
}

func (s *SQLiteOffsetStore) FetchOffsets(ntp model.NTP, group string) ([]CommittedOffset, error) {
	rows, err := s.db.DB().Query(
		`SELECT topic, partition, committed_offset, leader_epoch, metadata, committed_at
		 FROM coordinator_offsets WHERE ntp = ? AND group_id = ?`,
		ntpKey(ntp), group,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CommittedOffset
	for rows.Next() {
		var off CommittedOffset
		var metadata sql.NullString
		if err := rows.Scan(&off.Topic, &off.Partition, &off.Offset, &off.LeaderEpoch, &metadata, &off.CommittedAt); err != nil {
			continue
		}
		off.Metadata = metadata.String
		out = append(out, off)
	}
	return out, nil
}

func (s *SQLiteOffsetStore) SaveGroup(ntp model.NTP, meta *GroupMetadata) error {
	blob, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	_, err = s.db.DB().Exec(
		"INSERT OR REPLACE INTO coordinator_groups (ntp, group_id, meta) VALUES (?, ?, ?)",
		ntpKey(ntp), meta.ID, blob,
	)
	return err
}

func (s *SQLiteOffsetStore) LoadGroups(ntp model.NTP) ([]*GroupMetadata, error) {
	rows, err := s.db.DB().Query(
		"SELECT meta FROM coordinator_groups WHERE ntp = ?",
		ntpKey(ntp),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*GroupMetadata
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			continue
		}
		var meta GroupMetadata
		if err := json.Unmarshal(blob, &meta); err != nil {
			continue
		}
		out = append(out, &meta)
	}
	return out, nil
}

func (s *SQLiteOffsetStore) DeleteGroup(ntp model.NTP, group string) error {
	tx, err := s.db.DB().Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM coordinator_offsets WHERE ntp = ? AND group_id = ?", ntpKey(ntp), group); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM coordinator_groups WHERE ntp = ? AND group_id = ?", ntpKey(ntp), group); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteOffsetStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.writes)
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

var _ OffsetStoreInterface = (*SQLiteOffsetStore)(nil)
