//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package api implements the REST handlers of the generic decision point.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/manetu/dataguard/internal/logging"
	"github.com/manetu/dataguard/pkg/common"
	"github.com/manetu/dataguard/pkg/core"
	"github.com/manetu/dataguard/pkg/core/options"
	"github.com/manetu/dataguard/pkg/core/types"
	"github.com/manetu/dataguard/pkg/interceptor"
)

var logger = logging.GetLogger("dataguard.decisionpoint")

const agent = "generic"

// TagBinder persists a tag binding to an external tag source.
type TagBinder interface {
	Bind(ctx context.Context, resource, tag string) error
}

// Server implements the generic decision point API.
type Server struct {
	pe           core.PolicyEngine
	tags         TagBinder
	interceptors *interceptor.Set
}

// NewServer creates a new API server instance with the given PolicyEngine.  tags and
// interceptors may be nil, which disables the matching endpoints.
func NewServer(pe core.PolicyEngine, tags TagBinder, interceptors *interceptor.Set) *Server {
	return &Server{
		pe:           pe,
		tags:         tags,
		interceptors: interceptors,
	}
}

// RegisterHandlers binds every endpoint of s to e.
func RegisterHandlers(e *echo.Echo, s *Server) {
	e.GET("/healthz", s.Health)
	e.POST("/v1/decision", s.Decision)
	e.POST("/v1/reload", s.Reload)
	e.GET("/v1/tags", s.Tags)
	e.POST("/v1/tags", s.BindTag)
	e.POST("/v1/hive/privileges", s.HivePrivileges)
	e.POST("/v1/hive/rows", s.HiveRows)
	e.POST("/v1/hbase/scan", s.HBaseScan)
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// DecisionRequest is an access request.  Path may replace Resource with the textual form
// "service/seg/seg".
type DecisionRequest struct {
	types.AccessRequest
	Path string `json:"path,omitempty"`
}

// DecisionResponse carries the decision plus a convenience allow flag.
type DecisionResponse struct {
	*types.Decision
	Allow bool `json:"allow"`
}

// HealthResponse reports the active snapshot.
type HealthResponse struct {
	Status          string   `json:"status"`
	SnapshotVersion uint64   `json:"snapshotVersion"`
	Domains         []string `json:"domains"`
	Policies        int      `json:"policies"`
}

// ReloadResponse reports the snapshot published by a reload.
type ReloadResponse struct {
	SnapshotVersion uint64 `json:"snapshotVersion"`
}

// TagsResponse lists the tags effective for a resource.
type TagsResponse struct {
	Resource string   `json:"resource"`
	Tags     []string `json:"tags"`
}

// BindTagRequest adds a tag binding to the external tag source.
type BindTagRequest struct {
	Resource string `json:"resource"`
	Tag      string `json:"tag"`
}

// HivePrivilegesRequest asks whether an operation on a set of objects is permitted.
type HivePrivilegesRequest struct {
	Principal types.Principal          `json:"principal"`
	Operation string                   `json:"operation"`
	Objects   []interceptor.HiveObject `json:"objects"`
}

// HiveRowsRequest asks for rows of a table to be filtered and masked.
type HiveRowsRequest struct {
	Principal types.Principal          `json:"principal"`
	Database  string                   `json:"database"`
	Table     string                   `json:"table"`
	Rows      []map[string]interface{} `json:"rows"`
}

// HBaseScanRequest asks for scan results to be trimmed to readable cells.
type HBaseScanRequest struct {
	Principal types.Principal   `json:"principal"`
	Table     string            `json:"table"`
	Rows      []interceptor.Row `json:"rows"`
}

// RowsResponse carries rows surviving a filter.
type RowsResponse[T any] struct {
	Rows []T `json:"rows"`
}

// AllowResponse is the reply to a privilege check.
type AllowResponse struct {
	Allow bool `json:"allow"`
}

func errorResponse(c echo.Context, code int, err error) error {
	resp := ErrorResponse{Error: err.Error()}
	var invalid *common.InvalidRequestError
	if errors.As(err, &invalid) {
		resp.Field = invalid.Field
	}
	return c.JSON(code, resp)
}

// statusFor maps an engine or interceptor error to an HTTP status.
func statusFor(err error) int {
	var invalid *common.InvalidRequestError
	switch {
	case errors.As(err, &invalid):
		return http.StatusBadRequest
	case errors.Is(err, interceptor.ErrAccessDenied):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Health reports the active snapshot version.
func (s *Server) Health(c echo.Context) error {
	snap := s.pe.GetBackend().Snapshot()
	if snap == nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "no policy snapshot"})
	}
	return c.JSON(http.StatusOK, HealthResponse{
		Status:          "ok",
		SnapshotVersion: snap.Version,
		Domains:         snap.Domains,
		Policies:        snap.PolicyCount(),
	})
}

// Decision evaluates an access request.  The optional query parameter probe=true skips
// the audit record.
func (s *Server) Decision(c echo.Context) error {
	var body DecisionRequest
	if err := c.Bind(&body); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	probe := false
	if p := c.QueryParam("probe"); p != "" {
		v, err := strconv.ParseBool(p)
		if err != nil {
			return errorResponse(c, http.StatusBadRequest, common.NewInvalidRequestError("probe", "%q is not a boolean", p))
		}
		probe = v
	}

	req := body.AccessRequest
	if body.Path != "" {
		path, err := s.pe.GetBackend().Snapshot().ParsePath(body.Path)
		if err != nil {
			return errorResponse(c, http.StatusBadRequest, common.NewInvalidRequestError("path", "%v", err))
		}
		req.Resource = path
	}

	ctx := c.Request().Context()
	decision, err := s.pe.Evaluate(ctx, &req, options.SetProbeMode(probe))
	if err != nil {
		logger.Debugf(agent, "decision", "evaluate failed: %v", err)
		return errorResponse(c, statusFor(err), err)
	}

	return c.JSON(http.StatusOK, DecisionResponse{Decision: decision, Allow: decision.Allowed()})
}

// Reload rebuilds the policy snapshot.  A failed reload keeps serving the previous one.
func (s *Server) Reload(c echo.Context) error {
	if err := s.pe.Reload(c.Request().Context()); err != nil {
		logger.Warnf(agent, "reload", "reload rejected: %v", err)
		return errorResponse(c, http.StatusUnprocessableEntity, err)
	}
	return c.JSON(http.StatusOK, ReloadResponse{SnapshotVersion: s.pe.GetBackend().Snapshot().Version})
}

// Tags returns the effective tags of ?resource=service/seg/seg.
func (s *Server) Tags(c echo.Context) error {
	resource := c.QueryParam("resource")
	path, err := s.pe.GetBackend().Snapshot().ParsePath(resource)
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, common.NewInvalidRequestError("resource", "%v", err))
	}

	tags := s.pe.TagsFor(path)
	if tags == nil {
		tags = []string{}
	}
	return c.JSON(http.StatusOK, TagsResponse{Resource: path.String(), Tags: tags})
}

// BindTag writes a binding to the external tag source and reloads so it takes effect.
func (s *Server) BindTag(c echo.Context) error {
	if s.tags == nil {
		return c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "no writable tag source configured"})
	}

	var body BindTagRequest
	if err := c.Bind(&body); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}
	if body.Tag == "" {
		return errorResponse(c, http.StatusBadRequest, common.NewInvalidRequestError("tag", "must not be empty"))
	}
	if _, err := s.pe.GetBackend().Snapshot().ParsePath(body.Resource); err != nil {
		return errorResponse(c, http.StatusBadRequest, common.NewInvalidRequestError("resource", "%v", err))
	}

	ctx := c.Request().Context()
	if err := s.tags.Bind(ctx, body.Resource, body.Tag); err != nil {
		return errorResponse(c, http.StatusBadGateway, err)
	}
	if err := s.pe.Reload(ctx); err != nil {
		return errorResponse(c, http.StatusUnprocessableEntity, err)
	}

	logger.Infof(agent, "tags", "bound %s to %s", body.Tag, body.Resource)
	return c.JSON(http.StatusOK, ReloadResponse{SnapshotVersion: s.pe.GetBackend().Snapshot().Version})
}

func (s *Server) hive() (*interceptor.Hive, bool) {
	h, ok := s.interceptors.Get("hive").(*interceptor.Hive)
	return h, ok
}

func (s *Server) hbase() (*interceptor.HBase, bool) {
	h, ok := s.interceptors.Get("hbase").(*interceptor.HBase)
	return h, ok
}

var errNoInterceptor = errors.New("interceptor not configured")

// HivePrivileges checks a Hive operation against the objects it touches.
func (s *Server) HivePrivileges(c echo.Context) error {
	h, ok := s.hive()
	if !ok {
		return errorResponse(c, http.StatusNotFound, errNoInterceptor)
	}

	var body HivePrivilegesRequest
	if err := c.Bind(&body); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}
	op, err := interceptor.ParseHiveOperation(body.Operation)
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, common.NewInvalidRequestError("operation", "%v", err))
	}

	if err := h.CheckPrivileges(c.Request().Context(), body.Principal, op, body.Objects); err != nil {
		code := statusFor(err)
		if code == http.StatusForbidden {
			return c.JSON(code, AllowResponse{Allow: false})
		}
		return errorResponse(c, code, err)
	}
	return c.JSON(http.StatusOK, AllowResponse{Allow: true})
}

// HiveRows filters and masks the rows of a Hive table.
func (s *Server) HiveRows(c echo.Context) error {
	h, ok := s.hive()
	if !ok {
		return errorResponse(c, http.StatusNotFound, errNoInterceptor)
	}

	var body HiveRowsRequest
	if err := c.Bind(&body); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	rows, err := h.ApplyRowPolicies(c.Request().Context(), body.Principal, body.Database, body.Table, body.Rows)
	if err != nil {
		return errorResponse(c, statusFor(err), err)
	}
	if rows == nil {
		rows = []map[string]interface{}{}
	}
	return c.JSON(http.StatusOK, RowsResponse[map[string]interface{}]{Rows: rows})
}

// HBaseScan trims scan results to the cells the principal may read.
func (s *Server) HBaseScan(c echo.Context) error {
	h, ok := s.hbase()
	if !ok {
		return errorResponse(c, http.StatusNotFound, errNoInterceptor)
	}

	var body HBaseScanRequest
	if err := c.Bind(&body); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	rows, err := h.PostScanFilter(c.Request().Context(), body.Principal, body.Table, body.Rows)
	if err != nil {
		return errorResponse(c, statusFor(err), err)
	}
	if rows == nil {
		rows = []interceptor.Row{}
	}
	return c.JSON(http.StatusOK, RowsResponse[interceptor.Row]{Rows: rows})
}
