// Package agents coordinates the specialized workers that compute each tick.
// The scheduler owns the object table and the agent table; agents only see
// copies of their share of the objects and answer with proposed deltas,
// which the scheduler applies at the tick boundary in object-ID order.
package agents

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeusync/zeusphere/internal/core/checkpoint"
	"github.com/zeusync/zeusphere/internal/core/events"
	"github.com/zeusync/zeusphere/internal/core/faults"
	"github.com/zeusync/zeusphere/internal/core/matter"
	"github.com/zeusync/zeusphere/internal/core/observability/log"
	"github.com/zeusync/zeusphere/internal/core/projection"
	"github.com/zeusync/zeusphere/pkg/concurrent"
	"github.com/zeusync/zeusphere/pkg/sequence"
)

const (
	DefaultTickRate            = 60.0
	DefaultDispatchTimeout     = 50 * time.Millisecond
	DefaultQueueSize           = 4
	DefaultMonitorInterval     = time.Second
	DefaultMaxMissedHeartbeats = 3
	DefaultMaxRestarts         = 3
	DefaultRestartTimeout      = 5 * time.Second
	DefaultBreakerFailures     = 3
)

const sourceName = "scheduler"

var (
	ErrConfig      = errors.New("agents: invalid scheduler config")
	ErrStarted     = errors.New("agents: scheduler already started")
	ErrNotStarted  = errors.New("agents: scheduler not started")
	ErrDuplicateID = errors.New("agents: duplicate object id")
	errNoWorker    = errors.New("agents: spec has no spawner")
	errUnknownKind = errors.New("agents: unknown agent kind")
)

// stageKinds are the barrier stages of a tick. Kinds within a stage run
// concurrently on the same working copy; each stage sees the deltas of the
// ones before it.
var stageKinds = [][]Kind{
	{KindPhysics, KindAnimation},
	{KindMaterial, KindLighting},
	{KindRender, KindPerfMonitor},
}

type Config struct {
	TickRate            float64
	DispatchTimeout     time.Duration
	QueueSize           int
	MonitorInterval     time.Duration
	MaxMissedHeartbeats int
	MaxRestarts         int
	RestartTimeout      time.Duration
	BreakerFailures     int
	// CheckpointEvery is the checkpoint cadence in ticks.
	CheckpointEvery uint64
	Parallel        bool
}

func DefaultConfig() Config {
	return Config{
		TickRate:            DefaultTickRate,
		DispatchTimeout:     DefaultDispatchTimeout,
		QueueSize:           DefaultQueueSize,
		MonitorInterval:     DefaultMonitorInterval,
		MaxMissedHeartbeats: DefaultMaxMissedHeartbeats,
		MaxRestarts:         DefaultMaxRestarts,
		RestartTimeout:      DefaultRestartTimeout,
		BreakerFailures:     DefaultBreakerFailures,
		CheckpointEvery:     1,
	}
}

func (c Config) Validate() error {
	var errs []error
	if !(c.TickRate > 0) {
		errs = append(errs, fmt.Errorf("tick rate must be positive, got %g", c.TickRate))
	}
	if c.DispatchTimeout <= 0 || c.MonitorInterval <= 0 || c.RestartTimeout <= 0 {
		errs = append(errs, errors.New("timeouts and intervals must be positive"))
	}
	if c.QueueSize <= 0 {
		errs = append(errs, errors.New("queue size must be positive"))
	}
	if c.MaxMissedHeartbeats <= 0 || c.BreakerFailures <= 0 {
		errs = append(errs, errors.New("heartbeat and breaker limits must be positive"))
	}
	if c.MaxRestarts < 0 {
		errs = append(errs, errors.New("restart budget must not be negative"))
	}
	if c.CheckpointEvery == 0 {
		errs = append(errs, errors.New("checkpoint cadence must be at least one tick"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfig, errors.Join(errs...))
	}
	return nil
}

// Health is a read-only view of one agent.
type Health struct {
	ID       ID
	Name     string
	Kind     Kind
	State    State
	Instance string
	Restarts int
	Owned    int
	Missed   int
	LastSeen time.Time
}

// PhaseChange is a transition recorded during a tick.
type PhaseChange struct {
	ObjectID   string
	Transition matter.Transition
}

// TickResult is what one tick produced. Objects and Projections are in
// object-ID order; a projection that could not be refreshed is the last
// valid one.
type TickResult struct {
	Tick        uint64
	Time        float64
	Objects     []Object
	Projections []projection.Projection
	Skipped     []*faults.NumericError
	Changes     []PhaseChange
	Metrics     Metrics
	Health      []Health
	Duration    time.Duration
}

type Scheduler struct {
	cfg    Config
	logger log.Log
	bus    *events.Bus
	store  *checkpoint.Store

	mu       sync.Mutex
	agents   []*agent
	parallel bool
	life     context.Context
	stop     context.CancelFunc

	tickMu      sync.Mutex
	tick        uint64
	table       []Object
	index       map[string]int
	projections map[string]projection.Projection
	metrics     Metrics
	lastStart   time.Time
	committed   atomic.Uint64
	failedAt    map[ID]uint64
}

// NewScheduler builds the agent table from specs and takes ownership of
// objects. Kinds are checked here; a spec of an unknown kind is rejected.
// Events are published from inside Tick, so bus handlers must not call
// Objects.
func NewScheduler(cfg Config, objects []Object, specs []Spec, store *checkpoint.Store, bus *events.Bus, logger log.Log) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNop()
	}
	s := &Scheduler{
		cfg:         cfg,
		logger:      logger.With(log.String("component", "scheduler")),
		bus:         bus,
		store:       store,
		parallel:    cfg.Parallel,
		table:       append([]Object(nil), objects...),
		index:       make(map[string]int, len(objects)),
		projections: make(map[string]projection.Projection, len(objects)),
		failedAt:    make(map[ID]uint64),
	}
	sort.Slice(s.table, func(i, j int) bool { return s.table[i].ID() < s.table[j].ID() })
	for i, o := range s.table {
		if _, dup := s.index[o.ID()]; dup {
			return nil, fmt.Errorf("%w %q", ErrDuplicateID, o.ID())
		}
		s.index[o.ID()] = i
	}

	perKind := make(map[Kind]int)
	for _, spec := range specs {
		if !spec.Kind.Valid() {
			return nil, fmt.Errorf("%w %d", errUnknownKind, spec.Kind)
		}
		if spec.Spawn == nil {
			return nil, fmt.Errorf("%w (%s)", errNoWorker, spec.Kind)
		}
		a := &agent{
			id:       ID(len(s.agents)),
			name:     fmt.Sprintf("%s-%d", spec.Kind, perKind[spec.Kind]),
			kind:     spec.Kind,
			priority: spec.Priority,
			spawn:    spec.Spawn,
			state:    StateIdle,
		}
		perKind[spec.Kind]++
		s.agents = append(s.agents, a)
	}
	s.assign()
	return s, nil
}

// assign deals objects round-robin to the agents of each per-object kind,
// higher priority first.
func (s *Scheduler) assign() {
	for _, k := range Kinds() {
		if !k.PerObject() {
			continue
		}
		var group []*agent
		for _, a := range s.agents {
			if a.kind == k {
				group = append(group, a)
			}
		}
		if len(group) == 0 {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool { return group[i].priority > group[j].priority })
		for i, o := range s.table {
			a := group[i%len(group)]
			a.owned = append(a.owned, o.ID())
		}
	}
}

// Start launches every agent. An agent that cannot start fails Start; the
// restart policy only applies once the scheduler runs.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.life != nil {
		s.mu.Unlock()
		return ErrStarted
	}
	s.life, s.stop = context.WithCancel(context.WithoutCancel(ctx))
	agents := append([]*agent(nil), s.agents...)
	s.mu.Unlock()

	for _, a := range agents {
		inc, err := s.launch(ctx, a, nil)
		if err != nil {
			s.Close()
			return &faults.AgentFailure{AgentID: a.name, Kind: a.kind.String(), Cause: err}
		}
		s.mu.Lock()
		a.run, a.lastSeen = inc, time.Now()
		s.mu.Unlock()
		s.transition(a, StateActive, "started")
	}

	s.tickMu.Lock()
	s.checkpoint(0, time.Now())
	s.tickMu.Unlock()
	s.logger.Info("Scheduler started", log.Int("agents", len(agents)), log.Int("objects", len(s.table)))
	return nil
}

// Close stops every incarnation. Stalled workers are abandoned.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.agents {
		a.run.stop()
	}
	if s.stop != nil {
		s.stop()
	}
}

// SetParallel switches concurrent dispatch within a stage. It is read at the
// start of each stage, so a change lands on a tick boundary.
func (s *Scheduler) SetParallel(on bool) {
	s.mu.Lock()
	s.parallel = on
	s.mu.Unlock()
}

// Tick runs one barrier-synchronized tick. Only cancellation of ctx fails
// it; every agent problem degrades the result instead.
func (s *Scheduler) Tick(ctx context.Context) (TickResult, error) {
	s.mu.Lock()
	started := s.life != nil
	s.mu.Unlock()
	if !started {
		return TickResult{}, ErrNotStarted
	}

	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	start := time.Now()
	var frame time.Duration
	if !s.lastStart.IsZero() {
		frame = start.Sub(s.lastStart)
	}
	s.lastStart = start

	tick := s.tick + 1
	res := TickResult{Tick: tick, Time: float64(tick) / s.cfg.TickRate}
	working := append([]Object(nil), s.table...)
	fresh := make(map[string]projection.Projection)

	for _, kinds := range stageKinds {
		replies, err := s.stage(ctx, Task{Tick: tick, Time: res.Time, Frame: frame}, working, kinds)
		if err != nil {
			return TickResult{}, err
		}
		var deltas []Delta
		for _, r := range replies {
			deltas = append(deltas, r.Deltas...)
			res.Skipped = append(res.Skipped, r.Skipped...)
			for _, p := range r.Projections {
				fresh[p.ID] = p
			}
			if r.Metrics != nil {
				s.metrics = *r.Metrics
			}
		}
		sortDeltas(deltas)
		for _, d := range deltas {
			i, ok := s.index[d.ObjectID]
			if !ok {
				continue
			}
			apply(&working[i], d)
			for _, tr := range d.Transitions {
				res.Changes = append(res.Changes, PhaseChange{ObjectID: d.ObjectID, Transition: tr})
			}
		}
	}

	// Commit at the boundary.
	s.table = working
	s.tick = tick
	s.committed.Store(tick)
	res.Projections = make([]projection.Projection, len(working))
	for i, o := range working {
		p, ok := fresh[o.ID()]
		if !ok {
			p, ok = s.projections[o.ID()]
		}
		if !ok {
			p = projection.Projection{ID: o.ID()}
		}
		s.projections[o.ID()] = p
		res.Projections[i] = p
	}
	res.Objects = append([]Object(nil), working...)
	res.Metrics = s.metrics
	if tick%s.cfg.CheckpointEvery == 0 {
		s.checkpoint(tick, start)
	}

	res.Health = s.Health()
	res.Duration = time.Since(start)
	s.publishTick(res)
	return res, nil
}

type job struct {
	a    *agent
	inc  *incarnation
	task Task
}

// stage dispatches one barrier stage and returns the replies that arrived
// in time. Replies from failed calls are discarded whole.
func (s *Scheduler) stage(ctx context.Context, base Task, working []Object, kinds []Kind) ([]Reply, error) {
	s.mu.Lock()
	var jobs []job
	for _, a := range s.agents {
		if !a.state.Live() || a.run == nil || !containsKind(kinds, a.kind) {
			continue
		}
		task := base
		if a.kind.PerObject() {
			// Degraded agents without work still get an empty probe so
			// they can prove themselves healthy again.
			if len(a.owned) == 0 && a.state != StateDegraded {
				continue
			}
			task.Objects = make([]Object, 0, len(a.owned))
			for _, id := range a.owned {
				if i, ok := s.index[id]; ok {
					task.Objects = append(task.Objects, working[i])
				}
			}
		}
		jobs = append(jobs, job{a: a, inc: a.run, task: task})
	}
	parallel := s.parallel
	s.mu.Unlock()

	replies := make([]Reply, len(jobs))
	errs := make([]error, len(jobs))
	call := func(i int) func(context.Context) {
		return func(ctx context.Context) {
			replies[i], errs[i] = jobs[i].inc.call(ctx, jobs[i].task, s.cfg.DispatchTimeout)
		}
	}
	if parallel {
		actions := make([]func(context.Context), len(jobs))
		for i := range jobs {
			actions[i] = call(i)
		}
		if err := concurrent.All(ctx, actions...); err != nil {
			return nil, err
		}
	} else {
		for i := range jobs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			call(i)(ctx)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]Reply, 0, len(jobs))
	for i, j := range jobs {
		if errs[i] != nil {
			s.degrade(j.a, j.inc, base.Tick, errs[i])
			continue
		}
		s.healthy(j.a, j.inc)
		out = append(out, replies[i])
	}
	return out, nil
}

func containsKind(kinds []Kind, k Kind) bool {
	for _, x := range kinds {
		if x == k {
			return true
		}
	}
	return false
}

// degrade marks a after a failed call and hands its objects to peers.
func (s *Scheduler) degrade(a *agent, inc *incarnation, tick uint64, cause error) {
	s.mu.Lock()
	current := a.run == inc
	s.mu.Unlock()
	if !current {
		return
	}
	failure := &faults.AgentFailure{AgentID: a.name, Kind: a.kind.String(), Cause: cause}
	s.logger.Warn("Agent call failed, keeping last valid state",
		log.Tick(tick), log.String("agent", a.name), log.Error(failure))
	if s.transition(a, StateDegraded, cause.Error()) {
		s.redistribute(a, false)
	}
}

func (s *Scheduler) healthy(a *agent, inc *incarnation) {
	s.mu.Lock()
	current := a.run == inc && a.state == StateDegraded
	s.mu.Unlock()
	if current {
		s.transition(a, StateActive, "call succeeded")
	}
}

// redistribute moves a's objects one at a time to the least-loaded peer of
// the same kind. Active peers are preferred; when a is leaving for good any
// peer that may still come back is acceptable.
func (s *Scheduler) redistribute(a *agent, leaving bool) int {
	if !a.kind.PerObject() {
		return 0
	}
	s.mu.Lock()
	var peers []*agent
	for _, p := range s.agents {
		if p != a && p.kind == a.kind && p.state == StateActive {
			peers = append(peers, p)
		}
	}
	if len(peers) == 0 && leaving {
		for _, p := range s.agents {
			if p != a && p.kind == a.kind && p.state != StateExcluded {
				peers = append(peers, p)
			}
		}
	}
	if len(peers) == 0 || len(a.owned) == 0 {
		s.mu.Unlock()
		return 0
	}

	load := sequence.NewQueue[*agent]()
	for _, p := range peers {
		load.Enqueue(p, len(p.owned))
	}
	moved := make(map[*agent]int)
	for _, id := range a.owned {
		head, _ := load.Peek()
		target := head.Value
		target.owned = append(target.owned, id)
		moved[target]++
		load.Update(head, len(target.owned))
	}
	n := len(a.owned)
	a.owned = nil
	for p := range moved {
		sort.Strings(p.owned)
	}
	s.mu.Unlock()

	for _, p := range peers {
		if moved[p] == 0 {
			continue
		}
		s.logger.Info("Work redistributed",
			log.String("from", a.name), log.String("to", p.name), log.Int("objects", moved[p]))
		_ = s.bus.Publish(events.New(events.TypeWorkRedistributed, sourceName, s.committed.Load(),
			events.WorkRedistributed{From: a.name, To: p.name, Objects: moved[p]}))
	}
	return n
}

// transition moves a to state to if the health state machine allows it.
func (s *Scheduler) transition(a *agent, to State, reason string) bool {
	s.mu.Lock()
	from := a.state
	if !CanTransition(from, to) {
		s.mu.Unlock()
		return false
	}
	a.state = to
	s.mu.Unlock()

	s.logger.Debug("Agent state changed",
		log.String("agent", a.name),
		log.Stringer("from", from),
		log.Stringer("to", to),
		log.String("reason", reason))
	_ = s.bus.Publish(events.New(events.TypeAgentState, sourceName, s.committed.Load(), events.AgentState{
		AgentID: a.name,
		Kind:    a.kind.String(),
		From:    from.String(),
		To:      to.String(),
		Reason:  reason,
	}))
	return true
}

// checkpoint saves the committed table. Callers hold tickMu.
func (s *Scheduler) checkpoint(tick uint64, at time.Time) {
	if s.store == nil {
		return
	}
	bodies := make([]matter.Body, len(s.table))
	for i, o := range s.table {
		bodies[i] = o.Body
	}
	size, err := s.store.Save(checkpoint.New(tick, at, bodies))
	if err != nil {
		s.logger.Error("Failed to save checkpoint", log.Tick(tick), log.Error(err))
		return
	}
	_ = s.bus.Publish(events.New(events.TypeCheckpoint, sourceName, tick, events.Checkpoint{Objects: len(bodies), Bytes: size}))
}

func (s *Scheduler) publishTick(res TickResult) {
	for _, nerr := range res.Skipped {
		_ = s.bus.Publish(events.New(events.TypeObjectSkipped, sourceName, res.Tick, events.ObjectSkipped{
			ObjectID: nerr.ObjectID, Stage: nerr.Stage, Err: nerr,
		}))
	}
	for _, c := range res.Changes {
		_ = s.bus.Publish(events.New(events.TypePhaseChanged, sourceName, res.Tick, events.PhaseChanged{
			ObjectID: c.ObjectID, From: c.Transition.From.String(), To: c.Transition.To.String(),
		}))
	}
	visible := 0
	for _, p := range res.Projections {
		if p.Visible {
			visible++
		}
	}
	_ = s.bus.Publish(events.New(events.TypeTickCompleted, sourceName, res.Tick, events.TickCompleted{
		Duration: res.Duration, Visible: visible, Skipped: len(res.Skipped),
	}))
}

// Health lists every agent in table order.
func (s *Scheduler) Health() []Health {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Health, len(s.agents))
	for i, a := range s.agents {
		h := Health{
			ID:       a.id,
			Name:     a.name,
			Kind:     a.kind,
			State:    a.state,
			Restarts: a.restarts,
			Owned:    len(a.owned),
			Missed:   a.missed,
			LastSeen: a.lastSeen,
		}
		if a.run != nil {
			h.Instance = a.run.instance
		}
		out[i] = h
	}
	return out
}

// Agent returns the health of one agent.
func (s *Scheduler) Agent(id ID) (Health, bool) {
	all := s.Health()
	if int(id) < 0 || int(id) >= len(all) {
		return Health{}, false
	}
	return all[id], true
}

// Objects returns a copy of the committed table.
func (s *Scheduler) Objects() []Object {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	return append([]Object(nil), s.table...)
}

// Current is the last committed tick.
func (s *Scheduler) Current() uint64 {
	return s.committed.Load()
}

// Owned lists the objects an agent computes for.
func (s *Scheduler) Owned(id ID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(id) < 0 || int(id) >= len(s.agents) {
		return nil
	}
	return append([]string(nil), s.agents[id].owned...)
}
