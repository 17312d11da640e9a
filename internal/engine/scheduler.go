package engine

import (
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/rizkyandriawan/polylog/internal/config"
	"github.com/rizkyandriawan/polylog/internal/group"
	"github.com/rizkyandriawan/polylog/internal/shard"
)

// FetchScheduler processes pending fetch requests on a timer
type FetchScheduler struct {
	engine   *Engine
	ticker   *time.Ticker
	interval time.Duration
	stopChan chan struct{}
}

// NewFetchScheduler creates a new FetchScheduler
func NewFetchScheduler(engine *Engine, interval time.Duration) *FetchScheduler {
	return &FetchScheduler{
		engine:   engine,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start starts the scheduler
func (s *FetchScheduler) Start() {
	s.ticker = time.NewTicker(s.interval)
	go s.loop()
}

// Stop stops the scheduler
func (s *FetchScheduler) Stop() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopChan)
}

func (s *FetchScheduler) loop() {
	for {
		select {
		case <-s.ticker.C:
			s.process()
		case <-s.stopChan:
			return
		}
	}
}

func (s *FetchScheduler) process() {
	queue := s.engine.GetPendingQueue()
	topicStore := s.engine.GetTopicStore()

	completed := queue.Process(topicStore)
	if len(completed) > 0 {
		level.Debug(s.engine.logger).Log("msg", "processed pending fetches", "count", len(completed))
	}
}

// RetentionScheduler cleans up old messages on a timer
type RetentionScheduler struct {
	engine   *Engine
	ticker   *time.Ticker
	config   config.RetentionConfig
	stopChan chan struct{}
}

// NewRetentionScheduler creates a new RetentionScheduler
func NewRetentionScheduler(engine *Engine, cfg config.RetentionConfig) *RetentionScheduler {
	return &RetentionScheduler{
		engine:   engine,
		config:   cfg,
		stopChan: make(chan struct{}),
	}
}

// Start starts the scheduler
func (s *RetentionScheduler) Start() {
	if !s.config.Enabled {
		return
	}
	s.ticker = time.NewTicker(s.config.CheckInterval)
	go s.loop()
}

// Stop stops the scheduler
func (s *RetentionScheduler) Stop() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	select {
	case <-s.stopChan:
		// already closed
	default:
		close(s.stopChan)
	}
}

func (s *RetentionScheduler) loop() {
	for {
		select {
		case <-s.ticker.C:
			s.cleanup()
		case <-s.stopChan:
			return
		}
	}
}

func (s *RetentionScheduler) cleanup() {
	cutoff := time.Now().Add(-s.config.MaxAge)
	topicStore := s.engine.GetTopicStore()

	topics := s.engine.ListTopics()
	for _, topic := range topics {
		deleted, err := topicStore.DeleteBefore(topic, cutoff)
		if err != nil {
			level.Warn(s.engine.logger).Log("msg", "retention cleanup failed", "topic", topic, "err", err)
			continue
		}
		if deleted > 0 {
			level.Info(s.engine.logger).Log("msg", "retention deleted records", "topic", topic, "count", deleted)
		}
	}
}

// MemberExpirationScheduler sweeps expired consumer group members. Each
// tick submits an expiry task to every core, so group state is only ever
// touched from its own core.
type MemberExpirationScheduler struct {
	pool     *shard.Pool
	managers *shard.Sharded[*group.Manager]
	timeout  time.Duration
	interval time.Duration
	logger   log.Logger
	ticker   *time.Ticker
	stopChan chan struct{}
}

// NewMemberExpirationScheduler creates a new MemberExpirationScheduler
func NewMemberExpirationScheduler(pool *shard.Pool, managers *shard.Sharded[*group.Manager], cfg config.GroupsConfig, logger log.Logger) *MemberExpirationScheduler {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	interval := cfg.ExpiryInterval
	if interval <= 0 {
		// check every 1/3 of the timeout
		interval = cfg.SessionTimeout / 3
		if interval < time.Second {
			interval = time.Second
		}
	}
	return &MemberExpirationScheduler{
		pool:     pool,
		managers: managers,
		timeout:  cfg.SessionTimeout,
		interval: interval,
		logger:   log.With(logger, "component", "member-expiry"),
		stopChan: make(chan struct{}),
	}
}

// Start starts the scheduler
func (s *MemberExpirationScheduler) Start() {
	s.ticker = time.NewTicker(s.interval)
	go s.loop()
}

// Stop stops the scheduler
func (s *MemberExpirationScheduler) Stop() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	select {
	case <-s.stopChan:
	default:
		close(s.stopChan)
	}
}

func (s *MemberExpirationScheduler) loop() {
	for {
		select {
		case <-s.ticker.C:
			s.expire()
		case <-s.stopChan:
			return
		}
	}
}

func (s *MemberExpirationScheduler) expire() {
	for i := 0; i < s.pool.Size(); i++ {
		core := shard.CoreID(i)
		mgr := s.managers.Local(core)
		err := s.pool.SubmitTo(core, func() {
			if n := mgr.ExpireMembers(s.timeout); n > 0 {
				level.Debug(s.logger).Log("msg", "expired members", "core", int(core), "count", n)
			}
		})
		if err != nil {
			return
		}
	}
}
