//
//  Copyright © Manetu Inc. All rights reserved.
//

package generic

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/manetu/dataguard/internal/logging"
	"github.com/manetu/dataguard/pkg/core"
	"github.com/manetu/dataguard/pkg/decisionpoint"
	"github.com/manetu/dataguard/pkg/decisionpoint/generic/api"
	"github.com/manetu/dataguard/pkg/interceptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var logger = logging.GetLogger("dataguard.decisionpoint")

const agent = "generic"

// Server represents a generic decision point server that serves the REST API.
type Server struct {
	echo     *echo.Echo
	listener net.Listener
}

// Options configures optional endpoints of the server.
type Options struct {
	Tags         api.TagBinder
	Interceptors *interceptor.Set
	Gatherer     prometheus.Gatherer
}

// OptionsFunc modifies Options.
type OptionsFunc func(*Options)

// WithTagBinder enables POST /v1/tags.
func WithTagBinder(b api.TagBinder) OptionsFunc {
	return func(o *Options) {
		o.Tags = b
	}
}

// WithInterceptors enables the /v1/hive and /v1/hbase endpoints for the configured interceptors.
func WithInterceptors(s *interceptor.Set) OptionsFunc {
	return func(o *Options) {
		o.Interceptors = s
	}
}

// WithGatherer selects the registry served on /metrics.  The default is prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) OptionsFunc {
	return func(o *Options) {
		o.Gatherer = g
	}
}

// NewHandler builds the echo instance without starting it.
func NewHandler(pe core.PolicyEngine, opts ...OptionsFunc) *echo.Echo {
	o := Options{Gatherer: prometheus.DefaultGatherer}
	for _, fn := range opts {
		fn(&o)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	api.RegisterHandlers(e, api.NewServer(pe, o.Tags, o.Interceptors))
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(o.Gatherer, promhttp.HandlerOpts{})))

	return e
}

// CreateServer creates and starts a new generic decision point server on port.  Port 0 picks
// a free port; see [Server.Addr].
func CreateServer(pe core.PolicyEngine, port int, opts ...OptionsFunc) (decisionpoint.Server, error) {
	e := NewHandler(pe, opts...)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, err
	}
	e.Listener = listener

	logger.Infof(agent, "start", "Starting generic decision point on %s", listener.Addr())

	// e.Start() blocks
	go func() {
		if err := e.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf(agent, "serve", "generic decision point stopped: %v", err)
		}
	}()

	return &Server{
		echo:     e,
		listener: listener,
	}, nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Stop gracefully stops the Server by shutting down the Echo HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	logger.SysInfof("Stopping generic decision point")
	return s.echo.Shutdown(ctx)
}
