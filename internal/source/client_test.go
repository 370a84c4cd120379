package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-sync/internal/series"
)

func testClient(retries uint64) *Client {
	return NewClient(ClientOptions{Timeout: 2 * time.Second, MaxRetries: retries, InitialInterval: time.Millisecond}, nil)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"stat":"OK"}`))
	}))
	defer srv.Close()

	body, err := testClient(3).Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, `{"stat":"OK"}`, string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_NotFoundIsUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := testClient(3).Get(context.Background(), srv.URL)
	assert.ErrorIs(t, err, series.ErrSourceUnavailable)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_EmptyBodyIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("  \n"))
	}))
	defer srv.Close()

	_, err := testClient(0).Get(context.Background(), srv.URL)
	assert.ErrorIs(t, err, series.ErrSourceUnavailable)
}

func TestClient_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := testClient(3).Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.False(t, errors.Is(err, series.ErrSourceUnavailable))
	assert.Equal(t, int32(1), calls.Load())
}

func TestURLFetcher_Template(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("date")
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	f := &URLFetcher{Name: "twse_price", Template: srv.URL + "/MI_INDEX?response=json&date={date}&_={ts}", Client: testClient(0)}
	doc, err := f.Fetch(context.Background(), Params{Date: series.NewDate(2020, 1, 10)})
	require.NoError(t, err)
	assert.Equal(t, "20200110", gotQuery)
	assert.Equal(t, series.NewDate(2020, 1, 10), doc.Date)
	assert.Equal(t, "twse_price", doc.Source)

	_, err = f.Fetch(context.Background(), Params{})
	assert.Error(t, err)
}

func TestFallback(t *testing.T) {
	ctx := context.Background()
	unavailable := FetcherFunc(func(context.Context, Params) (Document, error) {
		return Document{}, series.ErrSourceUnavailable
	})
	broken := FetcherFunc(func(context.Context, Params) (Document, error) {
		return Document{}, errors.New("tls handshake")
	})
	ok := FetcherFunc(func(context.Context, Params) (Document, error) {
		return Document{Source: "mirror"}, nil
	})

	doc, err := Fallback(broken, unavailable, ok).Fetch(ctx, Params{})
	require.NoError(t, err)
	assert.Equal(t, "mirror", doc.Source)

	_, err = Fallback(unavailable, unavailable).Fetch(ctx, Params{})
	assert.ErrorIs(t, err, series.ErrSourceUnavailable)

	_, err = Fallback(unavailable, broken).Fetch(ctx, Params{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, series.ErrSourceUnavailable))

	_, err = Fallback().Fetch(ctx, Params{})
	assert.Error(t, err)
}

func TestThrottle(t *testing.T) {
	th := NewThrottle(60, 2)
	assert.True(t, th.Allow())
	assert.True(t, th.Allow())
	assert.False(t, th.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, th.Wait(ctx), context.DeadlineExceeded)

	assert.NoError(t, NewThrottle(0, 0).Wait(context.Background()))
	var nilThrottle *Throttle
	assert.True(t, nilThrottle.Allow())
}
