// Package api serves the linear forward pass over HTTP.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/matfwd/internal/backend"
	"github.com/samcharles93/matfwd/internal/linear"
	"github.com/samcharles93/matfwd/internal/logger"
	"github.com/samcharles93/matfwd/internal/tensor"
)

type Server struct {
	exec  *linear.Executor
	store *ResultStore
	log   logger.Logger
	clock func() time.Time
}

func NewServer(exec *linear.Executor, store *ResultStore, log logger.Logger) *Server {
	if store == nil {
		store = NewResultStore(0)
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		exec:  exec,
		store: store,
		log:   log.With("component", "api"),
		clock: time.Now,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/linear/forward", s.handleForward)
	e.GET("/v1/linear/forward/:id", s.handleGetForward)
	e.DELETE("/v1/linear/forward/:id", s.handleDeleteForward)
	e.GET("/v1/backends", s.handleBackends)
	e.GET("/healthz", s.handleHealth)
}

func (s *Server) handleForward(c *echo.Context) error {
	if s.exec == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "executor not configured", "", "")
	}
	req, err := decodeJSON[ForwardRequest](c.Request().Body)
	if err == nil {
		err = req.validate()
	}
	if err != nil {
		var ire invalidRequestError
		if errors.As(err, &ire) {
			return writeError(c, http.StatusBadRequest, "invalid_request_error", ire.msg, ire.param, "")
		}
		return writeBadRequest(c, err.Error())
	}

	out := make([]float32, req.Shape.OutputLen())
	start := s.clock()
	mode, err := s.exec.ForwardMode(linear.Mode(req.Mode), out, req.Input, req.Weight, req.Bias, req.Shape)
	if err != nil {
		switch {
		case errors.Is(err, tensor.ErrInvalidShape):
			return writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error(), "shape", "")
		case errors.Is(err, linear.ErrUnknownMode), errors.Is(err, linear.ErrNoSession):
			return writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error(), "mode", "")
		}
		code := ""
		if k := linear.KindOf(err); k != 0 {
			code = k.String()
		}
		s.log.Error("forward failed", "shape", req.Shape.String(), "code", code, "error", err)
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "", code)
	}

	now := s.clock()
	resp := ForwardResponse{
		ID:         newForwardID(),
		Object:     "linear.forward",
		CreatedAt:  now.Unix(),
		Mode:       mode,
		Backend:    s.exec.Backend(),
		Shape:      req.Shape,
		Output:     out,
		DurationMS: float64(now.Sub(start).Microseconds()) / 1000,
	}
	s.store.Save(resp)
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetForward(c *echo.Context) error {
	id := c.Param("id")
	resp, ok := s.store.Get(id)
	if !ok {
		return writeNotFound(c, "forward result not found")
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleDeleteForward(c *echo.Context) error {
	id := c.Param("id")
	if !s.store.Delete(id) {
		return writeNotFound(c, "forward result not found")
	}
	return c.JSON(http.StatusOK, DeletedResponse{ID: id, Object: "linear.forward.deleted", Deleted: true})
}

func (s *Server) handleBackends(c *echo.Context) error {
	resp := BackendsResponse{Object: "list"}
	if s.exec != nil {
		resp.Active = s.exec.Backend()
		resp.Mode = s.exec.Mode()
		resp.Stats = s.exec.Stats()
	}
	for _, name := range []string{backend.Host, backend.Emu, backend.WGPU} {
		resp.Data = append(resp.Data, BackendInfo{
			Name:      name,
			Available: backend.Has(name),
			Active:    name == resp.Active,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
