package pipeline

import (
	"go.uber.org/zap"
)

// Observer receives progress events from Run. Implementations must be
// safe for concurrent use; SampleFinished is called from worker
// goroutines.
type Observer interface {
	RunStarted(total int)
	SampleFinished(r SampleResult)
	RunFinished(r Report)
}

// LogObserver logs progress with zap.
type LogObserver struct {
	log *zap.Logger
}

var _ Observer = (*LogObserver)(nil)

// NewLogObserver returns an Observer writing to log. A nil log discards
// output.
func NewLogObserver(log *zap.Logger) *LogObserver {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogObserver{log: log.With(zap.String("component", "progress"))}
}

// RunStarted implements Observer.
func (o *LogObserver) RunStarted(total int) {
	o.log.Info("run started", zap.Int("samples", total))
}

// SampleFinished implements Observer.
func (o *LogObserver) SampleFinished(r SampleResult) {
	fields := []zap.Field{
		zap.String("tag", r.Tag),
		zap.String("path", r.Path),
		zap.Stringer("outcome", r.Outcome),
		zap.Duration("duration", r.Duration),
	}
	if r.Err != nil {
		o.log.Error("sample failed", append(fields, zap.Error(r.Err))...)
		return
	}
	o.log.Info("sample finished", fields...)
}

// RunFinished implements Observer.
func (o *LogObserver) RunFinished(r Report) {
	o.log.Info("run finished",
		zap.Int("samples", r.Total),
		zap.Int("built", r.Counts[OutcomeBuilt]),
		zap.Int("already_watertight", r.Counts[OutcomeAlreadyWatertight]),
		zap.Int("exists", r.Counts[OutcomeExists]),
		zap.Int("locked", r.Counts[OutcomeLocked]),
		zap.Int("failed", r.Counts[OutcomeFailed]),
		zap.Duration("duration", r.Duration))
}

// MultiObserver fans events out to several observers.
type MultiObserver []Observer

var _ Observer = MultiObserver(nil)

// RunStarted implements Observer.
func (m MultiObserver) RunStarted(total int) {
	for _, o := range m {
		o.RunStarted(total)
	}
}

// SampleFinished implements Observer.
func (m MultiObserver) SampleFinished(r SampleResult) {
	for _, o := range m {
		o.SampleFinished(r)
	}
}

// RunFinished implements Observer.
func (m MultiObserver) RunFinished(r Report) {
	for _, o := range m {
		o.RunFinished(r)
	}
}

type nopObserver struct{}

func (nopObserver) RunStarted(int)              {}
func (nopObserver) SampleFinished(SampleResult) {}
func (nopObserver) RunFinished(Report)          {}
