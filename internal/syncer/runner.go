package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"market-sync/internal/series"
	"market-sync/internal/source"
)

var ErrPassRunning = errors.New("a sync pass is already running")

// Notifier is told about every finished pass.
type Notifier interface {
	NotifyReport(ctx context.Context, rep *Report) error
}

// WalkRequest asks for a backward walk of Count+1 days ending at Start.
type WalkRequest struct {
	Start series.Date `json:"date"`
	Count int         `json:"count"`
}

type PassRequest struct {
	Walk    *WalkRequest
	Sources bool
}

type RunnerOptions struct {
	Price *source.Adapter
	Flow  *source.Adapter
	// Sources are the single-pass documents (yield curve, index pages).
	Sources []source.Adapter
	// MaxWalk bounds WalkRequest.Count.
	MaxWalk  int
	Notifier Notifier
}

// Runner runs passes one at a time and remembers the last report.
type Runner struct {
	driver *Driver
	store  Pinger
	opts   RunnerOptions
	log    *zap.Logger

	passMu sync.Mutex

	mu   sync.RWMutex
	last *Report
}

func NewRunner(driver *Driver, store Pinger, opts RunnerOptions, log *zap.Logger) *Runner {
	if opts.MaxWalk <= 0 {
		opts.MaxWalk = 366
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{driver: driver, store: store, opts: opts, log: log}
}

// Run executes one pass. The returned report is non-nil whenever the pass
// started; the error is non-nil only for a fatal pass failure.
func (r *Runner) Run(ctx context.Context, req PassRequest) (*Report, error) {
	if req.Walk == nil && !req.Sources {
		return nil, fmt.Errorf("empty pass request")
	}
	if req.Walk != nil {
		if req.Walk.Count < 0 || req.Walk.Count > r.opts.MaxWalk {
			return nil, fmt.Errorf("walk count %d out of range [0, %d]", req.Walk.Count, r.opts.MaxWalk)
		}
		if r.opts.Price == nil && r.opts.Flow == nil {
			return nil, fmt.Errorf("no walk sources configured")
		}
	}
	if !r.passMu.TryLock() {
		return nil, ErrPassRunning
	}
	defer r.passMu.Unlock()

	rep := NewReport(uuid.NewString())
	log := r.log.With(zap.String("pass", rep.PassID))
	log.Info("pass started", zap.Bool("walk", req.Walk != nil), zap.Bool("sources", req.Sources))

	err := r.run(ctx, req, rep)
	rep.FinishedAt = time.Now()
	if err != nil {
		rep.Err = err.Error()
		log.Error("pass failed", zap.Error(err))
	} else {
		t := rep.Totals()
		log.Info("pass finished",
			zap.Int("series", len(rep.Counts)),
			zap.Int("inserted", t.Inserted),
			zap.Int("updated", t.Updated),
			zap.Int("skipped", t.Skipped),
			zap.Int("failed", t.Failed),
			zap.Int("schema_failed", len(rep.SchemaFailed)),
			zap.Duration("took", rep.FinishedAt.Sub(rep.StartedAt)),
		)
	}

	r.mu.Lock()
	r.last = rep
	r.mu.Unlock()

	if r.opts.Notifier != nil {
		// the pass context may already be cancelled
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		if nerr := r.opts.Notifier.NotifyReport(nctx, rep); nerr != nil {
			log.Warn("notify report", zap.Error(nerr))
		}
		cancel()
	}
	return rep, err
}

func (r *Runner) run(ctx context.Context, req PassRequest, rep *Report) error {
	if err := r.store.Ping(ctx); err != nil {
		return err
	}
	if req.Walk != nil {
		if err := r.driver.Walk(ctx, r.opts.Price, r.opts.Flow, req.Walk.Start, req.Walk.Count, rep); err != nil {
			return err
		}
	}
	if req.Sources {
		for _, a := range r.opts.Sources {
			if err := r.driver.SyncSource(ctx, a, source.Params{}, rep); err != nil {
				return err
			}
		}
	}
	return nil
}

// Last returns the report of the most recent pass, or nil.
func (r *Runner) Last() *Report {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

// Loop runs a pass every interval until ctx is done, backing off after
// consecutive failures. next builds the request for each tick.
func (r *Runner) Loop(ctx context.Context, interval time.Duration, next func() PassRequest) {
	if interval <= 0 {
		return
	}
	failures := 0
	for {
		_, err := r.Run(ctx, next())
		switch {
		case err == nil, errors.Is(err, ErrPassRunning):
			failures = 0
		default:
			failures++
		}
		wait := interval
		if failures >= 6 {
			wait = interval * 4
		} else if failures >= 3 {
			wait = interval * 2
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}
