// Package pipeline converts every sample of a dataset into a watertight
// artifact. Workers, in one process or many, coordinate only through the
// filesystem: an artifact that exists is done, and a lock directory next
// to it marks the single worker building it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gmlewis/watertight/dataset"
	"github.com/gmlewis/watertight/decimate"
	"github.com/gmlewis/watertight/meshio"
	"github.com/gmlewis/watertight/watertight"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PartialSuffix is appended to an artifact path while it is written.
const PartialSuffix = ".partial"

// Outcome is the result of processing one sample.
type Outcome int

const (
	OutcomeFailed Outcome = iota
	// OutcomeExists means the artifact was already present.
	OutcomeExists
	// OutcomeLocked means another worker holds the artifact lock.
	OutcomeLocked
	// OutcomeAlreadyWatertight means the source was exported unchanged.
	OutcomeAlreadyWatertight
	OutcomeBuilt
)

// Outcomes lists every outcome.
var Outcomes = []Outcome{OutcomeFailed, OutcomeExists, OutcomeLocked, OutcomeAlreadyWatertight, OutcomeBuilt}

func (o Outcome) String() string {
	switch o {
	case OutcomeFailed:
		return "failed"
	case OutcomeExists:
		return "exists"
	case OutcomeLocked:
		return "locked"
	case OutcomeAlreadyWatertight:
		return "already_watertight"
	case OutcomeBuilt:
		return "built"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// SampleError is a failure confined to one sample.
type SampleError struct {
	Tag  string
	Path string
	Err  error
}

func (e *SampleError) Error() string {
	return fmt.Sprintf("sample %v (%v): %v", e.Tag, e.Path, e.Err)
}

func (e *SampleError) Unwrap() error { return e.Err }

// SampleResult describes one processed sample.
type SampleResult struct {
	Tag      string
	Path     string
	Outcome  Outcome
	Err      error
	Duration time.Duration
}

// Report summarizes a Run.
type Report struct {
	Total    int
	Counts   map[Outcome]int
	Failures []SampleResult
	Duration time.Duration
}

// Options configures a Pipeline.
type Options struct {
	// Workers is the number of samples processed concurrently.
	Workers int
	// Format of the written artifacts.
	Format meshio.Format
	// UnitCube rescales every source into [-0.5,0.5]³. Ignored when BBox
	// is set.
	UnitCube bool
	// BBox, if set, maps this box of every source onto [-0.5,0.5]³.
	BBox *[6]float64
	// Decimator, if set, post-processes every built artifact.
	Decimator decimate.Decimator
	// Observer receives progress events.
	Observer Observer
	// SkipWatertightCheck transforms sources even when they are already
	// watertight.
	SkipWatertightCheck bool
}

// Pipeline runs a Transformer over the samples of a dataset.
type Pipeline struct {
	t    watertight.Transformer
	opts Options
	log  *zap.Logger
}

// New returns a Pipeline. A nil log discards output.
func New(t watertight.Transformer, opts Options, log *zap.Logger) (*Pipeline, error) {
	if t == nil {
		return nil, &watertight.ConfigurationError{Param: "method", Reason: "no transformer"}
	}
	if opts.Workers == 0 {
		opts.Workers = 1
	}
	if opts.Workers < 0 {
		return nil, &watertight.ConfigurationError{Param: "workers", Reason: fmt.Sprintf("must be positive, got %v", opts.Workers)}
	}
	if opts.Format == "" {
		opts.Format = meshio.OBJ
	}
	f, err := meshio.ParseFormat(string(opts.Format))
	if err != nil {
		return nil, &watertight.ConfigurationError{Param: "file_type", Reason: err.Error()}
	}
	opts.Format = f
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{t: t, opts: opts, log: log.With(zap.String("component", "pipeline"))}, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Process builds the artifact of one sample unless it exists or another
// worker is building it. Only OutcomeFailed comes with an error, always a
// *SampleError.
func (p *Pipeline) Process(ctx context.Context, s dataset.Sample) (Outcome, error) {
	target := s.WatertightPath()
	fail := func(err error) (Outcome, error) {
		return OutcomeFailed, &SampleError{Tag: s.Tag(), Path: target, Err: err}
	}

	if exists(target) {
		return OutcomeExists, nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fail(err)
	}

	lock := NewDirLock(target + LockSuffix)
	if err := lock.Acquire(); err != nil {
		if errors.Is(err, ErrLockHeld) {
			return OutcomeLocked, nil
		}
		return fail(err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			p.log.Warn("unable to release lock", zap.String("lock", lock.Path()), zap.Error(err))
		}
	}()

	if exists(target) {
		return OutcomeExists, nil
	}

	outcome, err := p.build(ctx, s, target)
	if err != nil {
		return fail(err)
	}
	return outcome, nil
}

func (p *Pipeline) build(ctx context.Context, s dataset.Sample, target string) (Outcome, error) {
	m, err := s.Mesh()
	if err != nil {
		return OutcomeFailed, err
	}
	switch {
	case p.opts.BBox != nil:
		if m, err = m.NormalizeToBBox(*p.opts.BBox); err != nil {
			return OutcomeFailed, err
		}
	case p.opts.UnitCube:
		m = m.ToUnitCube()
	}

	partial := target + PartialSuffix
	defer os.Remove(partial)

	outcome := OutcomeBuilt
	if !p.opts.SkipWatertightCheck && m.IsWatertight() {
		if err := meshio.Save(partial, m, p.opts.Format); err != nil {
			return OutcomeFailed, err
		}
		outcome = OutcomeAlreadyWatertight
	} else {
		if _, err := p.t.ToWatertight(ctx, m, partial, p.opts.Format); err != nil {
			return OutcomeFailed, err
		}
		if p.opts.Decimator != nil {
			err := p.opts.Decimator.Decimate(ctx, partial, p.opts.Format, m.NumFaces())
			switch {
			case errors.Is(err, decimate.ErrTopologyChanged), errors.Is(err, decimate.ErrQualityTooLow):
				p.log.Warn("kept undecimated mesh", zap.String("tag", s.Tag()), zap.Error(err))
			case err != nil:
				return OutcomeFailed, err
			}
		}
	}

	if err := os.Rename(partial, target); err != nil {
		return OutcomeFailed, err
	}
	return outcome, nil
}

// Run processes every sample of c with Options.Workers goroutines. A
// failed sample never stops the others; only cancelling ctx ends the run
// early, in which case the partial Report is returned with ctx's error.
func (p *Pipeline) Run(ctx context.Context, c dataset.Collection) (Report, error) {
	start := time.Now()
	total := c.Len()
	p.opts.Observer.RunStarted(total)

	var mu sync.Mutex
	report := Report{Total: total, Counts: map[Outcome]int{}}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for i := 0; i < total; i++ {
		if gctx.Err() != nil {
			break
		}
		s := c.Get(i)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			t0 := time.Now()
			outcome, err := p.Process(gctx, s)
			r := SampleResult{Tag: s.Tag(), Path: s.WatertightPath(), Outcome: outcome, Err: err, Duration: time.Since(t0)}
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}

			mu.Lock()
			report.Counts[outcome]++
			if err != nil {
				report.Failures = append(report.Failures, r)
			}
			mu.Unlock()

			p.log.Debug("processed sample",
				zap.String("tag", r.Tag),
				zap.String("path", r.Path),
				zap.Stringer("outcome", r.Outcome),
				zap.Duration("duration", r.Duration))
			p.opts.Observer.SampleFinished(r)
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	report.Duration = time.Since(start)
	p.opts.Observer.RunFinished(report)
	return report, err
}
