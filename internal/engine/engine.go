package engine

import (
	"fmt"
	"sync"

	"github.com/go-kit/log"

	"github.com/rizkyandriawan/polylog/internal/config"
	"github.com/rizkyandriawan/polylog/internal/store"
)

// Engine is the topic-side business logic layer: topics, messages and
// parked fetches. Group coordination lives in the per-core group managers,
// not here.
type Engine struct {
	config         *config.Config
	topicStore     store.TopicStoreInterface
	pending        *PendingQueue
	fetchSched     *FetchScheduler
	retentionSched *RetentionScheduler
	logger         log.Logger
	stopChan       chan struct{}
	wg             sync.WaitGroup
}

// New creates a new Engine
func New(cfg *config.Config, topicStore store.TopicStoreInterface, logger log.Logger) *Engine {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	e := &Engine{
		config:     cfg,
		topicStore: topicStore,
		pending:    NewPendingQueue(),
		logger:     log.With(logger, "component", "engine"),
		stopChan:   make(chan struct{}),
	}
	e.fetchSched = NewFetchScheduler(e, cfg.Scheduler.TickInterval)
	e.retentionSched = NewRetentionScheduler(e, cfg.Retention)
	return e
}

// Start starts the engine's background tasks
func (e *Engine) Start() {
	e.fetchSched.Start()
	if e.config.Retention.Enabled {
		e.retentionSched.Start()
	}
}

// Stop stops the engine
func (e *Engine) Stop() {
	close(e.stopChan)
	e.fetchSched.Stop()
	e.retentionSched.Stop()
	e.wg.Wait()
}

// --- Topic Operations ---

// CreateTopic creates a new topic
func (e *Engine) CreateTopic(name string) error {
	if e.topicStore.TopicExists(name) {
		return fmt.Errorf("topic already exists: %s", name)
	}
	return e.topicStore.CreateTopic(name)
}

// EnsureTopic ensures a topic exists, creating it if auto-create is enabled
func (e *Engine) EnsureTopic(name string) error {
	if e.topicStore.TopicExists(name) {
		return nil
	}
	if !e.config.Topics.AutoCreate {
		return fmt.Errorf("topic not found: %s", name)
	}
	return e.topicStore.CreateTopic(name)
}

// ListTopics returns all topic names
func (e *Engine) ListTopics() []string {
	return e.topicStore.ListTopics()
}

// DeleteTopic deletes a topic
func (e *Engine) DeleteTopic(name string) error {
	return e.topicStore.DeleteTopic(name)
}

// GetTopicMeta returns topic metadata
func (e *Engine) GetTopicMeta(name string) (*store.TopicMeta, error) {
	return e.topicStore.GetMeta(name)
}

// TopicExists checks if a topic exists
func (e *Engine) TopicExists(name string) bool {
	return e.topicStore.TopicExists(name)
}

// --- Message Operations ---

// Produce appends records to a topic
func (e *Engine) Produce(topic string, records []store.Record) (int64, error) {
	if err := e.EnsureTopic(topic); err != nil {
		return 0, err
	}
	return e.topicStore.Append(topic, records)
}

// ProduceRaw appends raw record batch data (passthrough for compression)
func (e *Engine) ProduceRaw(topic string, data []byte, codec int8, recordCount int) (int64, error) {
	if err := e.EnsureTopic(topic); err != nil {
		return 0, err
	}
	return e.topicStore.AppendRaw(topic, data, codec, recordCount)
}

// Fetch reads records from a topic
func (e *Engine) Fetch(topic string, offset int64, maxRecords int) ([]store.Record, error) {
	if !e.topicStore.TopicExists(topic) {
		return nil, fmt.Errorf("topic not found: %s", topic)
	}
	return e.topicStore.Read(topic, offset, maxRecords)
}

// LatestOffset returns the latest offset for a topic
func (e *Engine) LatestOffset(topic string) (int64, error) {
	return e.topicStore.LatestOffset(topic)
}

// EarliestOffset returns the earliest offset for a topic
func (e *Engine) EarliestOffset(topic string) (int64, error) {
	return e.topicStore.EarliestOffset(topic)
}

// --- Pending Fetch Operations ---

// ParkFetch parks a fetch request for later processing
func (e *Engine) ParkFetch(req *PendingFetch) {
	e.pending.Add(req)
}

// GetPendingQueue returns the pending queue
func (e *Engine) GetPendingQueue() *PendingQueue {
	return e.pending
}

// GetTopicStore returns the topic store
func (e *Engine) GetTopicStore() store.TopicStoreInterface {
	return e.topicStore
}

// GetConfig returns the config
func (e *Engine) GetConfig() *config.Config {
	return e.config
}
