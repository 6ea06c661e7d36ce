package matter

import (
	"context"
	"sync"

	"github.com/zeusync/zeusphere/internal/core/faults"
	"github.com/zeusync/zeusphere/internal/core/observability/log"
	"github.com/zeusync/zeusphere/pkg/concurrent"
)

// Engine runs Step over a batch of objects. It holds only configuration;
// the bodies it advances belong to the caller.
type Engine struct {
	mu     sync.RWMutex
	cfg    Config
	logger log.Log
}

func NewEngine(cfg Config, logger log.Log) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Enabled == 0 {
		cfg.Enabled = AllPhases
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Engine{cfg: cfg, logger: logger.With(log.String("component", "matter"))}, nil
}

func (e *Engine) Config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// SetFlags switches the optimizer-driven knobs. Callers apply it between ticks.
func (e *Engine) SetFlags(earlyExit, parallel bool) {
	e.mu.Lock()
	e.cfg.EarlyExit = earlyExit
	e.cfg.Parallel = parallel
	e.mu.Unlock()
}

// Batch holds one result per input, in input order. A skipped object keeps
// its input body unchanged.
type Batch struct {
	Results []Result
	Skipped []*faults.NumericError
}

func (e *Engine) Advance(ctx context.Context, tick uint64, inputs []Input) (Batch, error) {
	cfg := e.Config()
	results := make([]Result, len(inputs))
	errs := make([]error, len(inputs))

	err := concurrent.Each(ctx, len(inputs), cfg.Parallel, func(i int) {
		results[i], errs[i] = Step(cfg, tick, inputs[i])
	})
	if err != nil {
		return Batch{}, err
	}

	batch := Batch{Results: results}
	for i, err := range errs {
		in := inputs[i]
		if err != nil {
			results[i] = Result{Body: in.Body}
			nerr := &faults.NumericError{ObjectID: in.Body.ID, Stage: "integration", Tick: tick, Cause: err}
			batch.Skipped = append(batch.Skipped, nerr)
			e.logger.Warn("Object skipped by integrator",
				log.Tick(tick), log.String("object", in.Body.ID), log.Error(err))
			continue
		}
		for _, tr := range results[i].Transitions {
			e.logger.Debug("Phase transition",
				log.Tick(tick),
				log.String("object", in.Body.ID),
				log.Stringer("from", tr.From),
				log.Stringer("to", tr.To),
				log.Float64("temperature", tr.Temperature))
		}
		if !results[i].Converged {
			e.logger.Debug("Constraint solver did not converge",
				log.Tick(tick),
				log.String("object", in.Body.ID),
				log.Float64("residual", results[i].Residual),
				log.Int("iterations", results[i].Iterations))
		}
	}
	return batch, nil
}
