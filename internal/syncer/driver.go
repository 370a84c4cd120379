package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"market-sync/internal/observe"
	"market-sync/internal/series"
	"market-sync/internal/source"
)

type Ensurer interface {
	Ensure(ctx context.Context, seriesID string, fields []string) error
}

type Applier interface {
	Apply(ctx context.Context, row series.Row) (series.Outcome, error)
}

// Forgetter is implemented by Ensurers that cache table shapes.
type Forgetter interface {
	Forget(seriesID string)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Driver runs parse, ensure and apply over documents. It is not safe for
// concurrent passes; Runner serializes them.
type Driver struct {
	schema Ensurer
	upsert Applier
	store  Pinger
	sink   observe.Sink
	log    *zap.Logger
}

func NewDriver(schema Ensurer, upsert Applier, store Pinger, sink observe.Sink, log *zap.Logger) *Driver {
	if sink == nil {
		sink = observe.Nop
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Driver{schema: schema, upsert: upsert, store: store, sink: sink, log: log}
}

// SyncSource fetches one document and syncs it. An absent document is
// recorded and is not an error. Only store unreachability and context
// cancellation are returned.
func (d *Driver) SyncSource(ctx context.Context, a source.Adapter, p source.Params, rep *Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc, err := a.Fetch(ctx, p)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		d.unavailable(ctx, a.Name, p.Date, err, rep)
		return nil
	}
	if doc.Source == "" {
		doc.Source = a.Name
	}
	return d.SyncDocument(ctx, a.Parser, doc, rep)
}

// SyncDocument is single-pass mode: every row of doc goes through ensure
// then apply. Bad rows are dropped and counted as failed; a series whose
// schema cannot be ensured is excluded for the rest of the pass.
func (d *Driver) SyncDocument(ctx context.Context, parser source.Parser, doc source.Document, rep *Report) error {
	for raw, perr := range parser.Parse(doc) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if perr != nil {
			if errors.Is(perr, series.ErrSourceUnavailable) {
				d.unavailable(ctx, doc.Source, doc.Date, perr, rep)
				return nil
			}
			var ve *series.ValidationError
			if !errors.As(perr, &ve) {
				// the document itself is unreadable
				d.unavailable(ctx, doc.Source, doc.Date, perr, rep)
				return nil
			}
			if raw.Series == "" {
				d.emit(ctx, rep, series.Event{Series: doc.Source, Date: ve.Date, Outcome: series.Failed, Kind: series.KindValidation, Reason: perr.Error()})
				rep.reject(doc.Source)
				continue
			}
			d.emit(ctx, rep, series.Event{Series: raw.Series, Date: ve.Date, Outcome: series.Failed, Kind: series.KindValidation, Reason: perr.Error()})
			rep.count(raw.Series, series.Failed)
			continue
		}
		if err := d.syncRaw(ctx, raw, rep); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) syncRaw(ctx context.Context, raw series.RawRow, rep *Report) error {
	if rep.excluded(raw.Series) {
		return nil
	}
	row, dropped, err := series.Build(raw)
	if err != nil {
		d.emit(ctx, rep, series.Event{Series: raw.Series, Date: raw.Date, Outcome: series.Failed, Kind: series.KindValidation, Reason: err.Error()})
		rep.count(raw.Series, series.Failed)
		return nil
	}
	for _, ve := range dropped {
		d.emit(ctx, rep, series.Event{Series: raw.Series, Date: ve.Date, Outcome: series.Dropped, Kind: series.KindValidation, Reason: ve.Error()})
	}

	if err := d.schema.Ensure(ctx, row.Series, row.FieldNames()); err != nil {
		if fatal := d.checkReachable(ctx, err); fatal != nil {
			return fatal
		}
		rep.SchemaFailed[row.Series] = err.Error()
		d.emit(ctx, rep, series.Event{Series: row.Series, Date: row.Date.String(), Outcome: series.SchemaFailed, Kind: series.Classify(err), Reason: err.Error()})
		d.log.Error("series excluded from pass", zap.String("series", row.Series), zap.Error(err))
		return nil
	}

	outcome, err := d.upsert.Apply(ctx, row)
	if err != nil {
		if fatal := d.checkReachable(ctx, err); fatal != nil {
			return fatal
		}
		// the table may have changed underneath the cache
		var se *series.StorageError
		if f, ok := d.schema.(Forgetter); ok && errors.As(err, &se) {
			f.Forget(row.Series)
		}
		d.emit(ctx, rep, series.Event{Series: row.Series, Date: row.Date.String(), Outcome: series.Failed, Kind: series.Classify(err), Reason: err.Error()})
		rep.count(row.Series, series.Failed)
		return nil
	}
	d.emit(ctx, rep, series.Event{Series: row.Series, Date: row.Date.String(), Outcome: outcome})
	rep.count(row.Series, outcome)
	return nil
}

// Walk is backward-walk mode: count+1 calendar days ending at start,
// newest first. Each day syncs the price document, then the flow document
// into the same series tables. Days without data are not skipped over.
func (d *Driver) Walk(ctx context.Context, price, flow *source.Adapter, start series.Date, count int, rep *Report) error {
	if count < 0 {
		return fmt.Errorf("walk count %d is negative", count)
	}
	if start.IsZero() {
		return fmt.Errorf("walk start date is empty")
	}
	for i := 0; i <= count; i++ {
		day := start.Add(-i)
		rep.Dates = append(rep.Dates, day.String())
		p := source.Params{Date: day}
		for _, a := range []*source.Adapter{price, flow} {
			if a == nil {
				continue
			}
			if err := d.SyncSource(ctx, *a, p, rep); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Driver) checkReachable(ctx context.Context, cause error) error {
	if errors.Is(cause, series.ErrStoreUnreachable) {
		return cause
	}
	if d.store == nil {
		return nil
	}
	if err := d.store.Ping(ctx); err != nil {
		return fmt.Errorf("%w (after: %v)", err, cause)
	}
	return nil
}

func (d *Driver) unavailable(ctx context.Context, name string, date series.Date, err error, rep *Report) {
	key := name
	if !date.IsZero() {
		key += "@" + date.String()
	}
	rep.Unavailable = append(rep.Unavailable, key)
	kind := series.Classify(err)
	if kind != series.KindUnavailable {
		d.log.Warn("source failed", zap.String("source", name), zap.Error(err))
	}
	e := series.Event{Series: name, Outcome: series.Unavailable, Kind: kind, Reason: err.Error()}
	if !date.IsZero() {
		e.Date = date.String()
	}
	d.emit(ctx, rep, e)
}

func (d *Driver) emit(ctx context.Context, rep *Report, e series.Event) {
	e.PassID = rep.PassID
	if e.TS == 0 {
		e.TS = time.Now().Unix()
	}
	d.sink.Record(ctx, e)
}
