package source

import (
	"context"
	"iter"

	"market-sync/internal/series"
)

// Params is what a fetch is keyed on. Date is zero for sources that
// publish their whole history in one document.
type Params struct {
	Date series.Date
}

// Document is one raw payload as returned by a source.
type Document struct {
	Source string
	URL    string
	Body   []byte
	Date   series.Date
}

// Fetcher returns series.ErrSourceUnavailable (possibly wrapped) when the
// source has no document for params.
type Fetcher interface {
	Fetch(ctx context.Context, p Params) (Document, error)
}

// Parser turns a document into raw rows. The sequence is lazy and can be
// ranged over once; a new Fetch is needed to read the data again. A
// non-nil error paired with a row means that row could not be extracted.
type Parser interface {
	Parse(doc Document) iter.Seq2[series.RawRow, error]
}

type FetcherFunc func(ctx context.Context, p Params) (Document, error)

func (f FetcherFunc) Fetch(ctx context.Context, p Params) (Document, error) { return f(ctx, p) }

type ParserFunc func(doc Document) iter.Seq2[series.RawRow, error]

func (f ParserFunc) Parse(doc Document) iter.Seq2[series.RawRow, error] { return f(doc) }

// Adapter pairs a fetcher with the parser for its payload.
type Adapter struct {
	Name string
	Fetcher
	Parser
}

// single returns a one-shot sequence yielding err.
func single(err error) iter.Seq2[series.RawRow, error] {
	return func(yield func(series.RawRow, error) bool) {
		yield(series.RawRow{}, err)
	}
}
