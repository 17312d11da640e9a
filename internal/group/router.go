package group

import (
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/rizkyandriawan/polylog/internal/cluster"
	"github.com/rizkyandriawan/polylog/internal/coordinator"
	"github.com/rizkyandriawan/polylog/internal/model"
	"github.com/rizkyandriawan/polylog/internal/protocol"
	"github.com/rizkyandriawan/polylog/internal/shard"
)

// Router forwards group operations to the owning core.
//
// Routing an operation is a two step process. First, the group id is
// mapped to its coordinating offsets partition using the local mapper.
// Given the partition, the owning core is found using the local shard
// table. Finally, a cross-core call on the destination core's group
// manager is invoked, inside the configured scheduling group and
// submission service group.
//
// The router holds no mutable state: it never retries, caches nothing,
// and synthesizes a "not coordinator" reply whenever the mapping is not
// locally resolvable.
type Router struct {
	self     shard.CoreID
	sg       *shard.SchedulingGroup
	ssg      *shard.SMPServiceGroup
	managers *shard.Sharded[*Manager]
	shards   *shard.Sharded[*coordinator.ShardTable]
	mappers  *shard.Sharded[*coordinator.Mapper]
	logger   log.Logger
}

// NewRouter creates the router instance for one core.
func NewRouter(
	self shard.CoreID,
	sg *shard.SchedulingGroup,
	ssg *shard.SMPServiceGroup,
	managers *shard.Sharded[*Manager],
	shards *shard.Sharded[*coordinator.ShardTable],
	mappers *shard.Sharded[*coordinator.Mapper],
	logger log.Logger,
) *Router {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Router{
		self:     self,
		sg:       sg,
		ssg:      ssg,
		managers: managers,
		shards:   shards,
		mappers:  mappers,
		logger:   log.With(logger, "component", "group-router", "core", int(self)),
	}
}

type routingDecision struct {
	ntp  model.NTP
	core shard.CoreID
}

// shardFor resolves a group to (partition, owning core), or nil when the
// mapping is not locally resolvable. The decision is a snapshot: a later
// call may return a different core if partition ownership moved.
func (r *Router) shardFor(group string) *routingDecision {
	ntp, ok := r.mappers.Local(r.self).NTPFor(group)
	if !ok {
		return nil
	}
	core, ok := r.shards.Local(r.self).CoreFor(ntp)
	if !ok {
		return nil
	}
	return &routingDecision{ntp: ntp, core: core}
}

// ShardFor exposes the routing decision for a group. FindCoordinator uses
// it to decide whether this broker can serve as coordinator.
func (r *Router) ShardFor(group string) (model.NTP, shard.CoreID, bool) {
	m := r.shardFor(group)
	if m == nil {
		return model.NTP{}, 0, false
	}
	return m.ntp, m.core, true
}

// routable is the capability set every routed request carries: a group id
// accessor and a writable coordinator partition slot.
type routable interface {
	CoordinatorKey() string
	SetCoordinator(model.NTP)
}

// route dispatches one request to the group manager on the owning core.
// The request is consumed: the caller must not touch it afterwards.
func route[Req routable, Resp any](
	r *Router,
	req Req,
	fwd func(*Manager, Req) *shard.Signal[Resp],
	errResp func(Req, int16) Resp,
) *shard.Signal[Resp] {
	m := r.shardFor(req.CoordinatorKey())
	if m == nil {
		level.Debug(r.logger).Log("msg", "no coordinator mapping", "group", req.CoordinatorKey())
		return shard.Resolved(errResp(req, protocol.ErrNotCoordinator))
	}
	req.SetCoordinator(m.ntp)
	return shard.WithSchedulingGroup(r.sg, func() *shard.Signal[Resp] {
		return shard.Flatten(shard.InvokeOn(r.managers, m.core, r.ssg, func(mgr *Manager) (*shard.Signal[Resp], error) {
			return fwd(mgr, req), nil
		}))
	})
}

// routeTx is route for intra-cluster transactional operations. These use
// the cluster transaction error taxonomy instead of the Kafka error codes,
// because the latter are part of the Kafka protocol and cannot be
// extended.
func routeTx[Req routable, Resp any](
	r *Router,
	req Req,
	fwd func(*Manager, Req) *shard.Signal[Resp],
	errResp func(Req, cluster.TxErr) Resp,
) *shard.Signal[Resp] {
	m := r.shardFor(req.CoordinatorKey())
	if m == nil {
		return shard.Resolved(errResp(req, cluster.TxErrNotCoordinator))
	}
	req.SetCoordinator(m.ntp)
	return shard.WithSchedulingGroup(r.sg, func() *shard.Signal[Resp] {
		return shard.Flatten(shard.InvokeOn(r.managers, m.core, r.ssg, func(mgr *Manager) (*shard.Signal[Resp], error) {
			return fwd(mgr, req), nil
		}))
	})
}

func (r *Router) JoinGroup(req *protocol.JoinGroupRequest) *shard.Signal[*protocol.JoinGroupResponse] {
	return route(r, req, (*Manager).JoinGroup, protocol.NewJoinGroupErrorResponse)
}

func (r *Router) SyncGroup(req *protocol.SyncGroupRequest) *shard.Signal[*protocol.SyncGroupResponse] {
	return route(r, req, (*Manager).SyncGroup, protocol.NewSyncGroupErrorResponse)
}

func (r *Router) Heartbeat(req *protocol.HeartbeatRequest) *shard.Signal[*protocol.HeartbeatResponse] {
	return route(r, req, (*Manager).Heartbeat, protocol.NewHeartbeatErrorResponse)
}

func (r *Router) LeaveGroup(req *protocol.LeaveGroupRequest) *shard.Signal[*protocol.LeaveGroupResponse] {
	return route(r, req, (*Manager).LeaveGroup, protocol.NewLeaveGroupErrorResponse)
}

func (r *Router) OffsetFetch(req *protocol.OffsetFetchRequest) *shard.Signal[*protocol.OffsetFetchResponse] {
	return route(r, req, (*Manager).OffsetFetch, protocol.NewOffsetFetchErrorResponse)
}

func (r *Router) TxnOffsetCommit(req *protocol.TxnOffsetCommitRequest) *shard.Signal[*protocol.TxnOffsetCommitResponse] {
	return route(r, req, (*Manager).TxnOffsetCommit, protocol.NewTxnOffsetCommitErrorResponse)
}

func (r *Router) BeginTx(req *cluster.BeginGroupTxRequest) *shard.Signal[*cluster.BeginGroupTxResponse] {
	level.Debug(r.logger).Log("msg", "routing begin_tx", "group", req.GroupID, "pid", req.PID.String(), "tx_seq", req.TxSeq)
	return routeTx(r, req, (*Manager).BeginTx, cluster.NewBeginGroupTxErrorResponse)
}

func (r *Router) PrepareTx(req *cluster.PrepareGroupTxRequest) *shard.Signal[*cluster.PrepareGroupTxResponse] {
	level.Debug(r.logger).Log("msg", "routing prepare_tx", "group", req.GroupID, "pid", req.PID.String(), "tx_seq", req.TxSeq, "etag", req.Etag)
	return routeTx(r, req, (*Manager).PrepareTx, cluster.NewPrepareGroupTxErrorResponse)
}

func (r *Router) CommitTx(req *cluster.CommitGroupTxRequest) *shard.Signal[*cluster.CommitGroupTxResponse] {
	level.Debug(r.logger).Log("msg", "routing commit_tx", "group", req.GroupID, "pid", req.PID.String(), "tx_seq", req.TxSeq)
	return routeTx(r, req, (*Manager).CommitTx, cluster.NewCommitGroupTxErrorResponse)
}

func (r *Router) AbortTx(req *cluster.AbortGroupTxRequest) *shard.Signal[*cluster.AbortGroupTxResponse] {
	level.Debug(r.logger).Log("msg", "routing abort_tx", "group", req.GroupID, "pid", req.PID.String(), "tx_seq", req.TxSeq)
	return routeTx(r, req, (*Manager).AbortTx, cluster.NewAbortGroupTxErrorResponse)
}

// OffsetCommit routes an offset commit, surfacing both completion stages
// to the caller. The dispatched stage is resolved on this core by a
// one-way notification posted from the destination; the committed stage is
// chained behind the destination's committed stage through this core's
// task queue. Per-core queues are FIFO and the destination resolves its
// dispatched stage before its committed stage, so the caller can never
// observe committed before dispatched.
func (r *Router) OffsetCommit(req *protocol.OffsetCommitRequest) *OffsetCommitStages {
	m := r.shardFor(req.GroupID)
	if m == nil {
		return readyStages(protocol.NewOffsetCommitErrorResponse(req, protocol.ErrNotCoordinator))
	}
	req.SetCoordinator(m.ntp)

	source := r.self
	pool := r.managers.Pool()
	dispatched := shard.NewPromise[struct{}]()
	committed := shard.NewPromise[*protocol.OffsetCommitResponse]()

	inner := shard.WithSchedulingGroup(r.sg, func() *shard.Signal[*protocol.OffsetCommitResponse] {
		return shard.Flatten(shard.InvokeOn(r.managers, m.core, r.ssg, func(mgr *Manager) (*shard.Signal[*protocol.OffsetCommitResponse], error) {
			stages := mgr.OffsetCommit(req)
			stages.Dispatched.WhenReady(func(_ struct{}, err error) {
				// fire-and-forget notification back to the source core;
				// the promise is single-consumer so a lost notification
				// at shutdown resolves inline instead
				if serr := pool.SubmitTo(source, func() {
					if err != nil {
						dispatched.Fail(err)
						return
					}
					dispatched.Complete(struct{}{})
				}); serr != nil {
					dispatched.Fail(serr)
				}
			})
			return stages.Committed, nil
		}))
	})

	inner.WhenReady(func(resp *protocol.OffsetCommitResponse, err error) {
		if serr := pool.SubmitTo(source, func() {
			if err != nil {
				committed.Fail(err)
				return
			}
			committed.Complete(resp)
		}); serr != nil {
			if err != nil {
				committed.Fail(err)
			} else {
				committed.Complete(resp)
			}
		}
	})

	return &OffsetCommitStages{Dispatched: dispatched.Signal(), Committed: committed.Signal()}
}

// DescribeGroup reports the state of one group from its owning core.
func (r *Router) DescribeGroup(group string) *shard.Signal[protocol.DescribedGroup] {
	m := r.shardFor(group)
	if m == nil {
		return shard.Resolved(protocol.MakeEmptyDescribedGroup(group, protocol.ErrNotCoordinator))
	}
	ntp := m.ntp
	return shard.WithSchedulingGroup(r.sg, func() *shard.Signal[protocol.DescribedGroup] {
		return shard.Flatten(shard.InvokeOn(r.managers, m.core, r.ssg, func(mgr *Manager) (*shard.Signal[protocol.DescribedGroup], error) {
			return mgr.DescribeGroup(ntp, group), nil
		}))
	})
}

// ListGroupsResult is the aggregate of the list-groups fan-out.
type ListGroupsResult struct {
	ErrorCode int16
	Groups    []protocol.ListedGroup
}

// ListGroups returns groups from across all cores, and a non-none error if
// any core was still loading. Partial results are always merged; the first
// non-none error encountered during reduction is retained, so the error
// choice is not deterministic across runs.
func (r *Router) ListGroups() *shard.Signal[ListGroupsResult] {
	n := r.managers.Pool().Size()

	var (
		mu  sync.Mutex
		agg ListGroupsResult
		wg  sync.WaitGroup
	)
	var failure error

	for i := 0; i < n; i++ {
		core := shard.CoreID(i)
		wg.Add(1)
		sig := shard.InvokeOn(r.managers, core, r.ssg, func(mgr *Manager) (ListGroupsResult, error) {
			code, groups := mgr.ListGroups()
			return ListGroupsResult{ErrorCode: code, Groups: groups}, nil
		})
		sig.WhenReady(func(partial ListGroupsResult, err error) {
			mu.Lock()
			if err != nil {
				if failure == nil {
					failure = err
				}
			} else {
				if agg.ErrorCode == protocol.ErrNone {
					agg.ErrorCode = partial.ErrorCode
				}
				agg.Groups = append(agg.Groups, partial.Groups...)
			}
			mu.Unlock()
			wg.Done()
		})
	}

	p := shard.NewPromise[ListGroupsResult]()
	go func() {
		wg.Wait()
		mu.Lock()
		defer mu.Unlock()
		if failure != nil {
			p.Fail(failure)
			return
		}
		p.Complete(agg)
	}()
	return p.Signal()
}

// DeleteGroups deletes groups across cores, reporting one result per input
// group. Results are grouped by owning core, not input order; callers look
// up by group id. Groups with no routing decision are answered locally
// with "not coordinator" and never cross cores.
func (r *Router) DeleteGroups(groups []string) *shard.Signal[[]protocol.DeletableGroupResult] {
	results := make([]protocol.DeletableGroupResult, 0, len(groups))
	buckets := make(map[shard.CoreID][]PartitionGroup)

	for _, g := range groups {
		m := r.shardFor(g)
		if m == nil {
			results = append(results, protocol.DeletableGroupResult{
				GroupID:   g,
				ErrorCode: protocol.ErrNotCoordinator,
			})
			continue
		}
		buckets[m.core] = append(buckets[m.core], PartitionGroup{NTP: m.ntp, Group: g})
	}

	// the aggregate is mutated from continuation callbacks, so it is
	// guarded even though each callback runs once
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for core, pairs := range buckets {
		core, pairs := core, pairs
		wg.Add(1)
		sig := shard.InvokeOn(r.managers, core, r.ssg, func(mgr *Manager) ([]protocol.DeletableGroupResult, error) {
			return mgr.DeleteGroups(pairs), nil
		})
		sig.WhenReady(func(partial []protocol.DeletableGroupResult, err error) {
			mu.Lock()
			if err != nil {
				// a failed bucket must still produce one entry per group
				for _, pair := range pairs {
					results = append(results, protocol.DeletableGroupResult{
						GroupID:   pair.Group,
						ErrorCode: protocol.ErrNotCoordinator,
					})
				}
			} else {
				results = append(results, partial...)
			}
			mu.Unlock()
			wg.Done()
		})
	}

	p := shard.NewPromise[[]protocol.DeletableGroupResult]()
	go func() {
		wg.Wait()
		mu.Lock()
		defer mu.Unlock()
		p.Complete(results)
	}()
	return p.Signal()
}
