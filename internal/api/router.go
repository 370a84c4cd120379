package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/adaptor"
	"go.uber.org/zap"

	"market-sync/internal/series"
	"market-sync/internal/source"
	"market-sync/internal/syncer"
)

type Runner interface {
	Run(ctx context.Context, req syncer.PassRequest) (*syncer.Report, error)
	Last() *syncer.Report
}

type Reader interface {
	Ping(ctx context.Context) error
	TableExists(ctx context.Context, table string) (bool, error)
	ReadRows(ctx context.Context, table string, limit int) ([]series.Row, error)
	QueryEvents(ctx context.Context, seriesID, passID string, limit int) ([]series.Event, error)
}

type Deps struct {
	Runner Runner
	Store  Reader
	// DefaultCount is the walk count used when a request omits it.
	DefaultCount int
	// Metrics serves /metrics when set.
	Metrics http.Handler
	Log     *zap.Logger
}

type WalkBody struct {
	Date  string `json:"date"`
	Count *int   `json:"count"`
}

func RegisterRoutes(h *server.Hertz, d Deps) {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}

	h.GET("/healthz", func(ctx context.Context, c *app.RequestContext) {
		if d.Store != nil {
			if err := d.Store.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, map[string]bool{"ok": true})
	})

	h.POST("/api/v1/sync/walk", func(_ context.Context, c *app.RequestContext) {
		var body WalkBody
		if len(c.Request.Body()) > 0 {
			if err := c.BindJSON(&body); err != nil {
				c.JSON(http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid json body"})
				return
			}
		}
		req, err := walkRequest(body, d.DefaultCount)
		if err != nil {
			c.JSON(http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		runPass(c, d.Runner, log, syncer.PassRequest{Walk: req})
	})

	h.POST("/api/v1/sync/sources", func(_ context.Context, c *app.RequestContext) {
		runPass(c, d.Runner, log, syncer.PassRequest{Sources: true})
	})

	h.GET("/api/v1/passes/last", func(_ context.Context, c *app.RequestContext) {
		rep := d.Runner.Last()
		if rep == nil {
			c.JSON(http.StatusNotFound, map[string]any{"ok": false, "error": "no pass has run yet"})
			return
		}
		c.JSON(http.StatusOK, map[string]any{"ok": true, "report": rep})
	})

	h.GET("/api/v1/series/:id/rows", func(ctx context.Context, c *app.RequestContext) {
		id := c.Param("id")
		if err := series.ValidSeriesID(id); err != nil {
			c.JSON(http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		limit, err := parseLimit(c.Query("limit"), 200, 5000)
		if err != nil {
			c.JSON(http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		exists, err := d.Store.TableExists(ctx, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		if !exists {
			c.JSON(http.StatusNotFound, map[string]any{"ok": false, "error": fmt.Sprintf("series %s not found", id)})
			return
		}
		rows, err := d.Store.ReadRows(ctx, id, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, map[string]any{"ok": true, "series": id, "items": rows})
	})

	h.GET("/api/v1/events", func(ctx context.Context, c *app.RequestContext) {
		limit, err := parseLimit(c.Query("limit"), 200, 1000)
		if err != nil {
			c.JSON(http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		items, err := d.Store.QueryEvents(ctx, c.Query("series"), c.Query("pass"), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, map[string]any{"ok": true, "items": items})
	})

	if d.Metrics != nil {
		h.GET("/metrics", adaptor.HertzHandler(d.Metrics))
	}
}

func runPass(c *app.RequestContext, r Runner, log *zap.Logger, req syncer.PassRequest) {
	// a pass outlives a dropped client connection
	rep, err := r.Run(context.Background(), req)
	switch {
	case errors.Is(err, syncer.ErrPassRunning):
		c.JSON(http.StatusConflict, map[string]any{"ok": false, "error": err.Error()})
	case errors.Is(err, series.ErrStoreUnreachable):
		log.Error("pass aborted", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error(), "report": rep})
	case err != nil && rep == nil:
		c.JSON(http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error(), "report": rep})
	default:
		c.JSON(http.StatusOK, map[string]any{"ok": true, "report": rep})
	}
}

func walkRequest(body WalkBody, defaultCount int) (*syncer.WalkRequest, error) {
	req := &syncer.WalkRequest{Start: series.Today(), Count: defaultCount}
	if s := strings.TrimSpace(body.Date); s != "" {
		layout := source.CompactDate
		if strings.Contains(s, "-") {
			layout = series.DateFormat
		}
		d, err := series.ParseDate(layout, s)
		if err != nil {
			return nil, err
		}
		req.Start = d
	}
	if body.Count != nil {
		if *body.Count < 0 {
			return nil, fmt.Errorf("count must be >= 0")
		}
		req.Count = *body.Count
	}
	return req, nil
}

func parseLimit(raw string, def, max int) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid limit")
	}
	if v > max {
		return max, nil
	}
	return v, nil
}
