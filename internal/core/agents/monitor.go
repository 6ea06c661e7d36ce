package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/zeusync/zeusphere/internal/core/events"
	"github.com/zeusync/zeusphere/internal/core/faults"
	"github.com/zeusync/zeusphere/internal/core/observability/log"
)

// Monitor checks heartbeats every monitoring interval until ctx is done.
// Recovery of a failed agent runs on this goroutine, so ticks keep going
// without the agent meanwhile.
func (s *Scheduler) Monitor(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.MonitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CheckHeartbeats(ctx)
		}
	}
}

// CheckHeartbeats runs one monitoring pass: an agent whose incarnation has
// not beaten since the previous pass misses a heartbeat, and after
// MaxMissedHeartbeats consecutive misses it fails and is restarted.
func (s *Scheduler) CheckHeartbeats(ctx context.Context) {
	now := time.Now()
	var (
		failed []*agent
		causes []*faults.CommunicationFailure
	)
	s.mu.Lock()
	for _, a := range s.agents {
		if !a.state.Live() || a.run == nil {
			continue
		}
		if beats := a.run.beats.Load(); beats != a.seen {
			a.seen, a.missed, a.lastSeen = beats, 0, now
			continue
		}
		a.missed++
		if a.missed >= s.cfg.MaxMissedHeartbeats {
			failed = append(failed, a)
			causes = append(causes, &faults.CommunicationFailure{AgentID: a.name, Missed: a.missed, LastSeen: a.lastSeen})
		}
	}
	s.mu.Unlock()

	for i, a := range failed {
		s.fail(a, causes[i])
		s.restart(ctx, a)
	}
}

func (s *Scheduler) fail(a *agent, cause error) {
	s.mu.Lock()
	a.run.stop()
	s.failedAt[a.id] = s.committed.Load()
	s.mu.Unlock()

	s.logger.Error("Agent failed", log.String("agent", a.name), log.Error(cause))
	s.transition(a, StateFailed, cause.Error())
}

// restart brings a back within the restart budget. The budget caps restart
// attempts over the agent's whole lifetime, successful or not; once it is
// spent the agent is excluded. Each attempt spawns a new incarnation and must
// see it beat within RestartTimeout.
func (s *Scheduler) restart(ctx context.Context, a *agent) {
	s.mu.Lock()
	at := s.failedAt[a.id]
	s.mu.Unlock()

	restored := s.resync(a, at)
	for {
		if ctx.Err() != nil {
			return
		}
		s.mu.Lock()
		spent := a.restarts >= s.cfg.MaxRestarts
		if !spent {
			a.restarts++
		}
		attempt := a.restarts
		s.mu.Unlock()
		if spent {
			s.exclude(a)
			return
		}

		s.transition(a, StateRestarting, fmt.Sprintf("restart attempt %d of %d", attempt, s.cfg.MaxRestarts))
		inc, err := s.launch(ctx, a, restored)
		if err == nil {
			s.mu.Lock()
			a.run = inc
			a.seen, a.missed, a.lastSeen = inc.beats.Load(), 0, time.Now()
			s.mu.Unlock()
			s.logger.Info("Agent restarted",
				log.String("agent", a.name),
				log.String("instance", inc.instance),
				log.Int("attempt", attempt))
			s.transition(a, StateActive, "restarted")
			return
		}
		failure := &faults.AgentFailure{AgentID: a.name, Kind: a.kind.String(), Attempt: attempt, Cause: err}
		s.logger.Warn("Agent restart failed", log.Error(failure))
		s.transition(a, StateFailed, err.Error())
	}
}

// launch spawns and starts a new incarnation of a, resynchronizing the
// worker first when it keeps per-object state.
func (s *Scheduler) launch(ctx context.Context, a *agent, restored []Object) (*incarnation, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RestartTimeout)
	defer cancel()

	worker, err := a.spawn()
	if err != nil {
		return nil, err
	}
	if st, ok := worker.(Starter); ok {
		if err := st.Start(ctx); err != nil {
			return nil, err
		}
	}
	if rs, ok := worker.(Resyncer); ok && len(restored) > 0 {
		if err := rs.Resync(ctx, restored); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	life := s.life
	s.mu.Unlock()

	inc := newIncarnation(a.name, worker, s.cfg, s.logger)
	inc.start(life, s.cfg.MonitorInterval/2)
	select {
	case <-inc.ready:
		return inc, nil
	case <-ctx.Done():
		inc.stop()
		return nil, ctx.Err()
	}
}

// resync puts the objects a owns back to their state in the newest
// checkpoint taken at or before tick. It waits for the tick boundary.
func (s *Scheduler) resync(a *agent, tick uint64) []Object {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	s.mu.Lock()
	ids := append([]string(nil), a.owned...)
	s.mu.Unlock()
	if len(ids) == 0 {
		return nil
	}

	if s.store != nil {
		bodies, at, ok := s.store.Restore(tick, ids)
		if ok {
			for id, b := range bodies {
				s.table[s.index[id]].Body = b
			}
			s.logger.Info("Agent resynchronized from checkpoint",
				log.String("agent", a.name), log.Tick(at), log.Int("objects", len(bodies)))
		} else {
			s.logger.Warn("No checkpoint to resynchronize from", log.String("agent", a.name), log.Tick(tick))
		}
	}

	out := make([]Object, 0, len(ids))
	for _, id := range ids {
		if i, ok := s.index[id]; ok {
			out = append(out, s.table[i])
		}
	}
	return out
}

// exclude retires a for good. If no other agent of its kind can take the
// work, the capability is lost and the scheduler runs without it.
func (s *Scheduler) exclude(a *agent) {
	s.transition(a, StateExcluded, "restart budget exhausted")
	s.redistribute(a, true)

	s.mu.Lock()
	remaining := 0
	for _, p := range s.agents {
		if p.kind == a.kind && p.state != StateExcluded {
			remaining++
		}
	}
	s.mu.Unlock()
	if remaining > 0 {
		return
	}

	s.logger.Error("Capability excluded, continuing in degraded mode",
		log.String("agent", a.name),
		log.Stringer("capability", a.kind.Capabilities()),
		log.Error(faults.ErrAgentExcluded))
	_ = s.bus.Publish(events.New(events.TypeCapabilityExcluded, sourceName, s.committed.Load(), events.CapabilityExcluded{
		AgentID:    a.name,
		Capability: a.kind.Capabilities().String(),
		Attempts:   s.cfg.MaxRestarts,
	}))
}
