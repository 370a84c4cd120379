package observe

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"market-sync/internal/series"
)

// Sink receives one event per processed row, dropped field, unavailable
// document and schema failure.
type Sink interface {
	Record(ctx context.Context, e series.Event)
}

type SinkFunc func(ctx context.Context, e series.Event)

func (f SinkFunc) Record(ctx context.Context, e series.Event) { f(ctx, e) }

// Nop discards events.
var Nop Sink = SinkFunc(func(context.Context, series.Event) {})

type multi []Sink

// Multi fans events out to every non-nil sink in order.
func Multi(sinks ...Sink) Sink {
	var m multi
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

func (m multi) Record(ctx context.Context, e series.Event) {
	for _, s := range m {
		s.Record(ctx, e)
	}
}

// ZapSink logs every event.
type ZapSink struct {
	log *zap.Logger
}

func NewZapSink(log *zap.Logger) *ZapSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &ZapSink{log: log}
}

func (z *ZapSink) Record(_ context.Context, e series.Event) {
	lvl := zapcore.DebugLevel
	switch e.Outcome {
	case series.Inserted, series.Updated:
		lvl = zapcore.InfoLevel
	case series.Dropped, series.Unavailable:
		lvl = zapcore.WarnLevel
	case series.Failed, series.SchemaFailed:
		lvl = zapcore.ErrorLevel
	}
	ce := z.log.Check(lvl, "row")
	if ce == nil {
		return
	}
	fields := []zap.Field{
		zap.String("series", e.Series),
		zap.String("date", e.Date),
		zap.String("outcome", string(e.Outcome)),
	}
	if e.PassID != "" {
		fields = append(fields, zap.String("pass", e.PassID))
	}
	if e.Kind != series.KindNone {
		fields = append(fields, zap.String("kind", string(e.Kind)))
	}
	if e.Reason != "" {
		fields = append(fields, zap.String("reason", e.Reason))
	}
	ce.Write(fields...)
}

// EventWriter persists events.
type EventWriter interface {
	InsertEvent(ctx context.Context, e series.Event) error
}

// StoreSink persists events, skipping routine skips unless Verbose.
type StoreSink struct {
	w       EventWriter
	log     *zap.Logger
	Verbose bool
}

func NewStoreSink(w EventWriter, log *zap.Logger) *StoreSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &StoreSink{w: w, log: log}
}

func (s *StoreSink) Record(ctx context.Context, e series.Event) {
	if e.Outcome == series.Skipped && !s.Verbose {
		return
	}
	if err := s.w.InsertEvent(ctx, e); err != nil {
		s.log.Warn("persist event", zap.String("series", e.Series), zap.Error(err))
	}
}

// PromSink counts events by series and outcome.
type PromSink struct {
	rows *prometheus.CounterVec
}

func NewPromSink(reg prometheus.Registerer) (*PromSink, error) {
	rows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marketsync_rows_total",
		Help: "Rows processed by series and outcome",
	}, []string{"series", "outcome"})
	if reg != nil {
		if err := reg.Register(rows); err != nil {
			return nil, err
		}
	}
	return &PromSink{rows: rows}, nil
}

func (p *PromSink) Record(_ context.Context, e series.Event) {
	p.rows.WithLabelValues(e.Series, string(e.Outcome)).Inc()
}

// Recorder keeps events in memory, bounded to the last max.
type Recorder struct {
	mu     sync.Mutex
	max    int
	events []series.Event
}

func NewRecorder(max int) *Recorder {
	if max <= 0 {
		max = 10000
	}
	return &Recorder{max: max}
}

func (r *Recorder) Record(_ context.Context, e series.Event) {
	if e.TS == 0 {
		e.TS = time.Now().Unix()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	if over := len(r.events) - r.max; over > 0 {
		r.events = append(r.events[:0:0], r.events[over:]...)
	}
}

func (r *Recorder) Events() []series.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]series.Event(nil), r.events...)
}

// Outcomes returns the outcome of each recorded event for seriesID, in order.
func (r *Recorder) Outcomes(seriesID string) []series.Outcome {
	var out []series.Outcome
	for _, e := range r.Events() {
		if e.Series == seriesID {
			out = append(out, e.Outcome)
		}
	}
	return out
}
