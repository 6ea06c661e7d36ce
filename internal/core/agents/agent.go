package agents

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/zeusync/zeusphere/internal/core/faults"
	"github.com/zeusync/zeusphere/internal/core/observability/log"
)

var errStaleReply = errors.New("reply does not acknowledge the task")

// ID indexes the scheduler's agent table. It is stable for the life of the
// scheduler; restarts create new incarnations under the same ID.
type ID int

type envelope struct {
	ctx   context.Context
	task  Task
	reply chan outcome
}

// outcome acknowledges one task: the incarnation that ran it and the tick
// it belongs to travel back with the reply.
type outcome struct {
	instance string
	tick     uint64
	reply    Reply
	err      error
}

// agent is one row of the table. Fields below the line are guarded by the
// scheduler's mutex.
type agent struct {
	id       ID
	name     string
	kind     Kind
	priority int
	spawn    Spawner

	state    State
	run      *incarnation
	seen     uint64
	missed   int
	lastSeen time.Time
	restarts int
	owned    []string
}

// incarnation is one running instance of an agent: its worker, goroutine,
// inbox and breaker. A restart replaces it whole; a stalled incarnation is
// abandoned, never reused.
type incarnation struct {
	instance string
	worker   Worker
	inbox    chan envelope
	beats    atomic.Uint64
	ready    chan struct{}
	cancel   context.CancelFunc
	breaker  *gobreaker.CircuitBreaker
}

func newIncarnation(name string, worker Worker, cfg Config, logger log.Log) *incarnation {
	inc := &incarnation{
		instance: uuid.NewString(),
		worker:   worker,
		inbox:    make(chan envelope, cfg.QueueSize),
		ready:    make(chan struct{}),
	}
	inc.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.MonitorInterval,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.BreakerFailures)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("Dispatch breaker changed state",
				log.String("agent", name),
				log.String("from", from.String()),
				log.String("to", to.String()))
		},
	})
	return inc
}

// start launches the incarnation's goroutine. It beats every interval while
// idle and around every task it handles.
func (inc *incarnation) start(parent context.Context, beatEvery time.Duration) {
	ctx, cancel := context.WithCancel(parent)
	inc.cancel = cancel
	go inc.loop(ctx, beatEvery)
}

func (inc *incarnation) loop(ctx context.Context, beatEvery time.Duration) {
	ticker := time.NewTicker(beatEvery)
	defer ticker.Stop()

	inc.beats.Add(1)
	close(inc.ready)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			inc.beats.Add(1)
		case env := <-inc.inbox:
			inc.beats.Add(1)
			reply, err := inc.worker.Handle(env.ctx, env.task)
			env.reply <- outcome{instance: inc.instance, tick: env.task.Tick, reply: reply, err: err}
			inc.beats.Add(1)
		}
	}
}

func (inc *incarnation) stop() {
	if inc != nil && inc.cancel != nil {
		inc.cancel()
	}
}

// call sends task through the breaker and waits for its acknowledged reply
// for at most timeout. A late reply is dropped.
func (inc *incarnation) call(ctx context.Context, task Task, timeout time.Duration) (Reply, error) {
	out, err := inc.breaker.Execute(func() (interface{}, error) {
		return inc.send(ctx, task, timeout)
	})
	if err != nil {
		return Reply{}, err
	}
	return out.(Reply), nil
}

func (inc *incarnation) send(ctx context.Context, task Task, timeout time.Duration) (Reply, error) {
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	env := envelope{ctx: dctx, task: task, reply: make(chan outcome, 1)}
	select {
	case inc.inbox <- env:
	case <-dctx.Done():
		return Reply{}, expired(ctx)
	}

	select {
	case out := <-env.reply:
		if out.instance != inc.instance || out.tick != task.Tick {
			return Reply{}, errStaleReply
		}
		if out.err != nil {
			return Reply{}, out.err
		}
		return out.reply, nil
	case <-dctx.Done():
		return Reply{}, expired(ctx)
	}
}

func expired(parent context.Context) error {
	if err := parent.Err(); err != nil {
		return err
	}
	return faults.ErrDispatchTimeout
}

func (a *agent) String() string {
	return fmt.Sprintf("%s(%s)", a.name, a.kind)
}
