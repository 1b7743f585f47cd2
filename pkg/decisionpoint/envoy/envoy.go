//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package envoy serves the engine as an Envoy ext_authz gRPC service.
//
// Each check maps the HTTP request onto an access request:
//   - the principal comes from the x-dataguard-user and x-dataguard-groups headers
//   - the path "/<service>/<segment>/..." names the resource
//   - the method selects the action, unless x-dataguard-action is present
//
// Allowed requests carry the decision's row filter and column masks as dynamic metadata so
// downstream filters can enforce them.
package envoy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	corev3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	authv3 "github.com/envoyproxy/go-control-plane/envoy/service/auth/v3"
	typev3 "github.com/envoyproxy/go-control-plane/envoy/type/v3"
	"github.com/manetu/dataguard/internal/logging"
	"github.com/manetu/dataguard/pkg/common"
	"github.com/manetu/dataguard/pkg/core"
	"github.com/manetu/dataguard/pkg/core/types"
	"github.com/manetu/dataguard/pkg/decisionpoint"
	"google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/protobuf/types/known/structpb"
)

var logger = logging.GetLogger("dataguard.decisionpoint")

const agent string = "envoy"

const (
	userHeader     = "x-dataguard-user"
	groupsHeader   = "x-dataguard-groups"
	actionHeader   = "x-dataguard-action"
	decisionHeader = "x-dataguard-decision-id"
	resultHeader   = "x-ext-authz-check-result"
	resultAllowed  = "allowed"
	resultDenied   = "denied"

	// MetadataNamespace keys the dynamic metadata attached to allowed requests.
	MetadataNamespace = "dataguard"
)

var methodActions = map[string]types.Action{
	http.MethodGet:     types.ActionRead,
	http.MethodHead:    types.ActionRead,
	http.MethodOptions: types.ActionRead,
	http.MethodPost:    types.ActionCreate,
	http.MethodPut:     types.ActionWrite,
	http.MethodPatch:   types.ActionWrite,
	http.MethodDelete:  types.ActionDrop,
}

// ExtAuthzServer implements the ext_authz v3 gRPC check request API.
type ExtAuthzServer struct {
	grpcServer *grpc.Server
	listener   net.Listener
	pe         core.PolicyEngine
}

func logRequest(result string, request *authv3.CheckRequest) {
	httpAttrs := request.GetAttributes().GetRequest().GetHttp()
	logger.Tracef(agent, "logRequest", "[gRPCv3][%s]: %s %s%s", result, httpAttrs.GetMethod(), httpAttrs.GetHost(),
		httpAttrs.GetPath())
}

func header(key, value string) *corev3.HeaderValueOption {
	return &corev3.HeaderValueOption{
		Header: &corev3.HeaderValue{
			Key:   key,
			Value: value,
		},
	}
}

// metadata renders the parts of an ALLOW decision a downstream filter needs.
func metadata(d *types.Decision) (*structpb.Struct, error) {
	ids := make([]interface{}, len(d.AppliedPolicyIDs))
	for i, id := range d.AppliedPolicyIDs {
		ids[i] = id
	}

	fields := map[string]interface{}{
		"decisionId":       d.ID,
		"appliedPolicyIds": ids,
		"snapshotVersion":  float64(d.SnapshotVersion),
	}
	if !d.RowFilter.Empty() {
		fields["rowFilter"] = d.RowFilter.String()
	}
	if len(d.ColumnMasks) > 0 {
		masks := make(map[string]interface{}, len(d.ColumnMasks))
		for column, specs := range d.ColumnMasks {
			fns := make([]interface{}, len(specs))
			for i, spec := range specs {
				args := make([]interface{}, len(spec.Args))
				for j, a := range spec.Args {
					args[j] = a
				}
				fns[i] = map[string]interface{}{"function": string(spec.Function), "args": args}
			}
			masks[column] = fns
		}
		fields["columnMasks"] = masks
	}

	return structpb.NewStruct(map[string]interface{}{MetadataNamespace: fields})
}

func (s *ExtAuthzServer) allow(request *authv3.CheckRequest, d *types.Decision) (*authv3.CheckResponse, error) {
	logRequest(resultAllowed, request)
	md, err := metadata(d)
	if err != nil {
		return nil, err
	}
	return &authv3.CheckResponse{
		HttpResponse: &authv3.CheckResponse_OkResponse{
			OkResponse: &authv3.OkHttpResponse{
				Headers: []*corev3.HeaderValueOption{
					header(resultHeader, resultAllowed),
					header(decisionHeader, d.ID),
				},
			},
		},
		DynamicMetadata: md,
		Status:          &status.Status{Code: int32(codes.OK)},
	}, nil
}

func (s *ExtAuthzServer) deny(request *authv3.CheckRequest, code codes.Code, httpCode typev3.StatusCode, body string, headers ...*corev3.HeaderValueOption) *authv3.CheckResponse {
	logRequest(resultDenied, request)
	return &authv3.CheckResponse{
		HttpResponse: &authv3.CheckResponse_DeniedResponse{
			DeniedResponse: &authv3.DeniedHttpResponse{
				Status:  &typev3.HttpStatus{Code: httpCode},
				Body:    body,
				Headers: append([]*corev3.HeaderValueOption{header(resultHeader, resultDenied)}, headers...),
			},
		},
		Status: &status.Status{Code: int32(code), Message: body},
	}
}

// accessRequest maps the HTTP attributes of a check onto an access request.
func (s *ExtAuthzServer) accessRequest(request *authv3.CheckRequest) (*types.AccessRequest, error) {
	httpAttrs := request.GetAttributes().GetRequest().GetHttp()
	headers := httpAttrs.GetHeaders()

	user := strings.TrimSpace(headers[userHeader])
	if user == "" {
		return nil, errUnauthenticated
	}

	var groups []string
	for _, g := range strings.Split(headers[groupsHeader], ",") {
		if g = strings.TrimSpace(g); g != "" {
			groups = append(groups, g)
		}
	}

	action := types.Action(headers[actionHeader])
	if action == "" {
		var ok bool
		action, ok = methodActions[strings.ToUpper(httpAttrs.GetMethod())]
		if !ok {
			return nil, common.NewInvalidRequestError("method", "no action for method %q", httpAttrs.GetMethod())
		}
	}

	p, _, _ := strings.Cut(httpAttrs.GetPath(), "?")
	p, err := url.PathUnescape(p)
	if err != nil {
		return nil, common.NewInvalidRequestError("path", "%v", err)
	}
	p = strings.Trim(p, "/")

	snap := s.pe.GetBackend().Snapshot()
	if snap == nil {
		return nil, common.NewError(common.ReasonNotFound, "no policy snapshot")
	}
	resource, err := snap.ParsePath(p)
	if err != nil {
		return nil, common.NewInvalidRequestError("path", "%v", err)
	}

	return &types.AccessRequest{
		Principal: types.Principal{User: user, Groups: groups},
		Resource:  resource,
		Action:    action,
	}, nil
}

var errUnauthenticated = errors.New("missing " + userHeader + " header")

// Check implements gRPC v3 check request.
func (s *ExtAuthzServer) Check(ctx context.Context, request *authv3.CheckRequest) (*authv3.CheckResponse, error) {
	req, err := s.accessRequest(request)
	if errors.Is(err, errUnauthenticated) {
		return s.deny(request, codes.Unauthenticated, typev3.StatusCode_Unauthorized, err.Error()), nil
	}
	if err != nil {
		return s.deny(request, codes.InvalidArgument, typev3.StatusCode_BadRequest, err.Error()), nil
	}

	d, err := s.pe.Evaluate(ctx, req)
	if err != nil {
		var invalid *common.InvalidRequestError
		if errors.As(err, &invalid) {
			return s.deny(request, codes.InvalidArgument, typev3.StatusCode_BadRequest, invalid.Error()), nil
		}
		logger.Errorf(agent, "evaluate", "error evaluating request: %v", err)
		return nil, err
	}

	if d.Allowed() {
		return s.allow(request, d)
	}
	return s.deny(request, codes.PermissionDenied, typev3.StatusCode_Forbidden, "permission denied", header(decisionHeader, d.ID)), nil
}

// CreateServer creates and starts a new Envoy External Authorization server on port.  Port 0
// picks a free port; see [ExtAuthzServer.Addr].
func CreateServer(pe core.PolicyEngine, port int) (decisionpoint.Server, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, err
	}

	s := &ExtAuthzServer{
		grpcServer: grpc.NewServer(),
		listener:   listener,
		pe:         pe,
	}
	authv3.RegisterAuthorizationServer(s.grpcServer, s)

	logger.Infof(agent, "start", "Starting Envoy External Authorization gRPC server on %s", listener.Addr())
	go func() {
		if err := s.grpcServer.Serve(listener); err != nil {
			logger.Errorf(agent, "grpc.serve", "Failed to serve gRPC server: %v", err)
		}
		logger.SysInfof("Stopped gRPC server")
	}()

	return s, nil
}

// Addr returns the address the server listens on.
func (s *ExtAuthzServer) Addr() net.Addr {
	return s.listener.Addr()
}

// Stop gracefully stops the ExtAuthzServer, waiting for in-flight checks until ctx is done.
func (s *ExtAuthzServer) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}
	logger.SysInfof("GRPC server stopped")

	return nil
}
