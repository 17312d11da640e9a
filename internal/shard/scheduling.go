package shard

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// SchedulingGroup is a named accounting handle. Routed work enters the
// group before dispatch and leaves when its signal resolves, so the
// in-flight gauge covers the whole cross-core round trip.
type SchedulingGroup struct {
	name     string
	active   atomic.Int64
	entered  atomic.Int64
	started  prometheus.Counter
	inflight prometheus.Gauge
}

// NewSchedulingGroup registers the group's metrics with reg.
func NewSchedulingGroup(name string, reg prometheus.Registerer) *SchedulingGroup {
	sg := &SchedulingGroup{
		name: name,
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "polylog_scheduling_group_tasks_total",
			Help:        "Tasks entered into the scheduling group.",
			ConstLabels: prometheus.Labels{"group": name},
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "polylog_scheduling_group_inflight",
			Help:        "Tasks currently inside the scheduling group.",
			ConstLabels: prometheus.Labels{"group": name},
		}),
	}
	if reg != nil {
		reg.MustRegister(sg.started, sg.inflight)
	}
	return sg
}

// Name returns the group name.
func (sg *SchedulingGroup) Name() string {
	return sg.name
}

func (sg *SchedulingGroup) enter() {
	sg.entered.Add(1)
	sg.active.Add(1)
	sg.started.Inc()
	sg.inflight.Inc()
}

func (sg *SchedulingGroup) leave() {
	sg.active.Add(-1)
	sg.inflight.Dec()
}

// Inflight returns the number of tasks currently inside the group.
func (sg *SchedulingGroup) Inflight() int64 {
	return sg.active.Load()
}

// Entered returns the number of tasks that have entered the group.
func (sg *SchedulingGroup) Entered() int64 {
	return sg.entered.Load()
}

// WithSchedulingGroup runs fn inside sg: the group is entered before fn and
// left when the returned signal resolves.
func WithSchedulingGroup[T any](sg *SchedulingGroup, fn func() *Signal[T]) *Signal[T] {
	sg.enter()
	s := fn()
	s.WhenReady(func(T, error) {
		sg.leave()
	})
	return s
}

// SMPServiceGroup bounds the number of concurrent in-flight cross-core
// calls. Acquire blocks the submitting task until a slot frees up; this is
// the only source of backpressure on the routing path.
type SMPServiceGroup struct {
	name  string
	slots chan struct{}
}

// NewSMPServiceGroup creates a service group allowing max concurrent calls.
func NewSMPServiceGroup(name string, max int) *SMPServiceGroup {
	if max <= 0 {
		max = 1
	}
	return &SMPServiceGroup{name: name, slots: make(chan struct{}, max)}
}

// Name returns the service group name.
func (g *SMPServiceGroup) Name() string {
	return g.name
}

// Capacity returns the maximum number of concurrent calls.
func (g *SMPServiceGroup) Capacity() int {
	return cap(g.slots)
}

func (g *SMPServiceGroup) acquire() {
	g.slots <- struct{}{}
}

func (g *SMPServiceGroup) release() {
	<-g.slots
}

// InUse returns the number of slots currently held.
func (g *SMPServiceGroup) InUse() int {
	return len(g.slots)
}
