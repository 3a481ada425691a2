// Package httpapi exposes the engine over HTTP: graph publication, run
// submission and control, run queries, and live event streaming over SSE.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/volvoxlabs/weft/internal/eventbus"
	"github.com/volvoxlabs/weft/internal/persistence"
	"github.com/volvoxlabs/weft/pkg/api"
)

// Server wires the engine and event bus to an echo router.
type Server struct {
	engine api.Engine
	bus    *eventbus.Bus
	logger *slog.Logger
}

// NewServer creates a Server. bus may be nil when event streaming is not
// exposed; logger defaults to slog.Default().
func NewServer(engine api.Engine, bus *eventbus.Bus, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: engine, bus: bus, logger: logger}
}

// Echo builds a ready-to-serve echo instance with standard middleware.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	s.Register(e)
	return e
}

// Register mounts all routes on e.
func (s *Server) Register(e *echo.Echo) {
	e.POST("/graphs", s.handleRegisterGraph)
	e.POST("/runs", s.handleSubmitRun)
	e.GET("/runs", s.handleListRuns)
	e.GET("/runs/:id", s.handleGetRun)
	e.POST("/runs/:id/resume", s.handleResumeRun)
	e.POST("/runs/:id/cancel", s.handleCancelRun)
	e.DELETE("/runs/:id", s.handlePurgeRun)
	e.GET("/runs/:id/events", s.handleRunEvents)
}

type submitRequest struct {
	Graph   string         `json:"graph"`
	Version string         `json:"version,omitempty"`
	Input   map[string]any `json:"input,omitempty"`
}

type resumeRequest struct {
	Input map[string]any `json:"input,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// runView is the JSON shape of a run. Context and error are flattened out
// of the instance because both are excluded from its own serialization.
type runView struct {
	ID           string           `json:"id"`
	Graph        string           `json:"graph"`
	GraphVersion string           `json:"graph_version,omitempty"`
	Current      string           `json:"current"`
	Status       api.Status       `json:"status"`
	Context      map[string]any   `json:"context,omitempty"`
	History      []api.StepRecord `json:"history,omitempty"`
	Error        *errorBody       `json:"error,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

func viewOf(inst *api.WorkflowInstance) runView {
	v := runView{
		ID:           inst.ID,
		Graph:        inst.Graph,
		GraphVersion: inst.GraphVersion,
		Current:      inst.Current,
		Status:       inst.Status,
		History:      inst.History,
		CreatedAt:    inst.CreatedAt,
		UpdatedAt:    inst.UpdatedAt,
	}
	if inst.Context != nil {
		v.Context = inst.Context.Snapshot()
	}
	if inst.Err != nil {
		v.Error = &errorBody{Error: inst.Err.Error(), Kind: api.ErrorKind(inst.Err)}
	}
	return v
}

func (s *Server) handleRegisterGraph(c echo.Context) error {
	var g api.WorkflowGraph
	if err := c.Bind(&g); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "invalid graph payload"})
	}
	if err := s.engine.RegisterGraph(g); err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"name": g.Name, "version": g.Version})
}

func (s *Server) handleSubmitRun(c echo.Context) error {
	var req submitRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "invalid run payload"})
	}
	if req.Graph == "" {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "graph is required"})
	}
	inst, err := s.engine.Submit(c.Request().Context(), req.Graph, req.Version, req.Input)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, map[string]any{
		"run_id": inst.ID,
		"status": inst.Status,
	})
}

func (s *Server) handleListRuns(c echo.Context) error {
	runs, err := s.engine.ListRuns(c.Request().Context(), api.RunListOptions{
		Graph:  c.QueryParam("graph"),
		Status: api.Status(c.QueryParam("status")),
	})
	if err != nil {
		return s.writeError(c, err)
	}
	views := make([]runView, 0, len(runs))
	for _, inst := range runs {
		views = append(views, viewOf(inst))
	}
	return c.JSON(http.StatusOK, views)
}

func (s *Server) handleGetRun(c echo.Context) error {
	inst, err := s.engine.GetRun(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, viewOf(inst))
}

func (s *Server) handleResumeRun(c echo.Context) error {
	var req resumeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "invalid resume payload"})
	}
	inst, err := s.engine.Resume(c.Request().Context(), c.Param("id"), req.Input)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, viewOf(inst))
}

func (s *Server) handleCancelRun(c echo.Context) error {
	if err := s.engine.Cancel(c.Request().Context(), c.Param("id")); err != nil {
		return s.writeError(c, err)
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) handlePurgeRun(c echo.Context) error {
	if err := s.engine.PurgeRun(c.Request().Context(), c.Param("id")); err != nil {
		return s.writeError(c, err)
	}
	if s.bus != nil {
		s.bus.Forget(c.Param("id"))
	}
	return c.NoContent(http.StatusNoContent)
}

// handleRunEvents returns the run's event history as JSON, or streams
// events as SSE when ?stream=1. With stream=1, ?replay=1 prefixes the
// stored history ahead of live events.
func (s *Server) handleRunEvents(c echo.Context) error {
	runID := c.Param("id")
	ctx := c.Request().Context()

	if c.QueryParam("stream") == "" {
		events, err := s.engine.ListEvents(ctx, runID)
		if err != nil {
			return s.writeError(c, err)
		}
		return c.JSON(http.StatusOK, events)
	}

	if s.bus == nil {
		return c.JSON(http.StatusNotImplemented, errorBody{Error: "event streaming is not enabled"})
	}

	var (
		ch     <-chan api.ExecutionEvent
		cancel func()
	)
	if c.QueryParam("replay") != "" {
		var err error
		ch, cancel, err = s.bus.SubscribeReplay(runID, func() ([]api.ExecutionEvent, error) {
			return s.engine.ListEvents(ctx, runID)
		})
		if err != nil {
			return s.writeError(c, err)
		}
	} else {
		ch, cancel = s.bus.Subscribe(runID)
	}
	defer cancel()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Error("marshal event", "run_id", runID, "error", err)
				continue
			}
			if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", ev.Kind, data); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

// writeError maps engine and store errors to HTTP statuses.
func (s *Server) writeError(c echo.Context, err error) error {
	kind := api.ErrorKind(err)
	body := errorBody{Error: err.Error(), Kind: kind}

	switch {
	case errors.Is(err, api.ErrRunNotFound), errors.Is(err, api.ErrGraphNotFound):
		return c.JSON(http.StatusNotFound, body)
	case errors.Is(err, api.ErrRunConflict),
		errors.Is(err, persistence.ErrGraphExists),
		errors.Is(err, persistence.ErrAmbiguousVersion):
		return c.JSON(http.StatusConflict, body)
	case kind == "GraphInvalid", kind == "UnknownTool", kind == "ValidationError", kind == "SchemaMismatch":
		return c.JSON(http.StatusBadRequest, body)
	case kind == "internal":
		s.logger.Error("request failed", "error", err)
		return c.JSON(http.StatusInternalServerError, body)
	default:
		return c.JSON(http.StatusBadRequest, body)
	}
}
