package source

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"market-sync/internal/series"
)

// CompactDate is the date layout used in TWSE query strings.
const CompactDate = "20060102"

// URLFetcher GETs a URL built from a template. Recognized placeholders:
// {date} (YYYYMMDD), {iso} (YYYY-MM-DD) and {ts} (unix millis).
type URLFetcher struct {
	Name     string
	Template string
	Client   *Client
}

func (f *URLFetcher) URL(p Params) string {
	r := strings.NewReplacer(
		"{date}", p.Date.Format(CompactDate),
		"{iso}", p.Date.String(),
		"{ts}", strconv.FormatInt(time.Now().UnixMilli()-500, 10),
	)
	return r.Replace(f.Template)
}

func (f *URLFetcher) Fetch(ctx context.Context, p Params) (Document, error) {
	if f.Client == nil {
		return Document{}, fmt.Errorf("%s: no http client", f.Name)
	}
	if p.Date.IsZero() && (strings.Contains(f.Template, "{date}") || strings.Contains(f.Template, "{iso}")) {
		return Document{}, fmt.Errorf("%s: template needs a date", f.Name)
	}
	u := f.URL(p)
	body, err := f.Client.Get(ctx, u)
	if err != nil {
		return Document{}, fmt.Errorf("%s: %w", f.Name, err)
	}
	return Document{Source: f.Name, URL: u, Body: body, Date: p.Date}, nil
}

// Fallback tries each fetcher in order and returns the first document.
// The result is unavailable only when every fetcher says so.
func Fallback(fetchers ...Fetcher) Fetcher {
	return FetcherFunc(func(ctx context.Context, p Params) (Document, error) {
		if len(fetchers) == 0 {
			return Document{}, fmt.Errorf("no fetchers configured")
		}
		var soft, hard []error
		for _, f := range fetchers {
			doc, err := f.Fetch(ctx, p)
			if err == nil {
				return doc, nil
			}
			if ctx.Err() != nil {
				return Document{}, ctx.Err()
			}
			if errors.Is(err, series.ErrSourceUnavailable) {
				soft = append(soft, err)
				continue
			}
			hard = append(hard, err)
		}
		if len(hard) == 0 {
			return Document{}, errors.Join(soft...)
		}
		return Document{}, fmt.Errorf("all fetchers failed: %w", errors.Join(hard...))
	})
}
