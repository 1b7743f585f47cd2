//
//  Copyright © Manetu Inc. All rights reserved.
//

package envoy

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	corev3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	authv3 "github.com/envoyproxy/go-control-plane/envoy/service/auth/v3"
	typev3 "github.com/envoyproxy/go-control-plane/envoy/type/v3"
	"github.com/manetu/dataguard/internal/core/test"
	"github.com/manetu/dataguard/pkg/core"
	"github.com/manetu/dataguard/pkg/core/types"
	"github.com/manetu/dataguard/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
)

// setupTestPolicyEngine creates a PolicyEngine over testdata/hadoop.yml
func setupTestPolicyEngine(t *testing.T) (core.PolicyEngine, chan *events.AccessRecord) {
	require.NoError(t, test.ResetTestConfig())
	pe, ch, err := test.NewTestPolicyEngine(1024)
	require.NoError(t, err)
	t.Cleanup(pe.Close)
	return pe, ch
}

func checkRequest(method, path string, headers map[string]string) *authv3.CheckRequest {
	return &authv3.CheckRequest{
		Attributes: &authv3.AttributeContext{
			Request: &authv3.AttributeContext_Request{
				Http: &authv3.AttributeContext_HttpRequest{
					Host:    "localhost",
					Path:    path,
					Method:  method,
					Headers: headers,
				},
			},
		},
	}
}

func findHeader(headers []*corev3.HeaderValueOption, key string) *corev3.HeaderValue {
	for _, h := range headers {
		if h.Header.Key == key {
			return h.Header
		}
	}
	return nil
}

func TestEnvoyServer_CreateServer(t *testing.T) {
	pe, _ := setupTestPolicyEngine(t)

	server, err := CreateServer(pe, 0)
	require.NoError(t, err)
	require.NotNil(t, server)

	actualPort := server.(*ExtAuthzServer).Addr().(*net.TCPAddr).Port
	assert.NotEqual(t, 0, actualPort)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = server.Stop(ctx)
	assert.NoError(t, err)
}

func TestEnvoyServer_CheckOverGRPC(t *testing.T) {
	pe, _ := setupTestPolicyEngine(t)

	server, err := CreateServer(pe, 0)
	require.NoError(t, err)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	}()

	port := server.(*ExtAuthzServer).Addr().(*net.TCPAddr).Port
	conn, err := grpc.NewClient(
		fmt.Sprintf("localhost:%d", port),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()

	client := authv3.NewAuthorizationClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, checkRequest("GET", "/hive/default/words", map[string]string{userHeader: "bob"}))
	require.NoError(t, err)
	assert.Equal(t, int32(codes.OK), resp.Status.Code)
	require.NotNil(t, resp.GetOkResponse())
	assert.Equal(t, resultAllowed, findHeader(resp.GetOkResponse().Headers, resultHeader).Value)

	resp, err = client.Check(ctx, checkRequest("GET", "/hive/default/words", map[string]string{userHeader: "mallory"}))
	require.NoError(t, err)
	assert.Equal(t, int32(codes.PermissionDenied), resp.Status.Code)
	require.NotNil(t, resp.GetDeniedResponse())
	assert.Equal(t, "permission denied", resp.GetDeniedResponse().Body)
	assert.Equal(t, resultDenied, findHeader(resp.GetDeniedResponse().Headers, resultHeader).Value)
}

func TestEnvoyServer_Check(t *testing.T) {
	pe, ch := setupTestPolicyEngine(t)
	s := &ExtAuthzServer{pe: pe}
	ctx := context.Background()

	tests := []struct {
		name     string
		method   string
		path     string
		headers  map[string]string
		code     codes.Code
		httpCode typev3.StatusCode
		action   types.Action
		resource string
	}{
		{
			name:     "read allowed",
			method:   "GET",
			path:     "/hive/default/words?limit=10",
			headers:  map[string]string{userHeader: "bob"},
			code:     codes.OK,
			action:   types.ActionRead,
			resource: "hive/default/words",
		},
		{
			name:     "put maps to write",
			method:   "PUT",
			path:     "/hive/default/words",
			headers:  map[string]string{userHeader: "bob"},
			code:     codes.OK,
			action:   types.ActionWrite,
			resource: "hive/default/words",
		},
		{
			name:     "delete maps to drop",
			method:   "DELETE",
			path:     "/hive/default/words",
			headers:  map[string]string{userHeader: "bob"},
			code:     codes.PermissionDenied,
			httpCode: typev3.StatusCode_Forbidden,
			action:   types.ActionDrop,
			resource: "hive/default/words",
		},
		{
			name:     "groups header",
			method:   "GET",
			path:     "/hbase/temp/colfam1",
			headers:  map[string]string{userHeader: "carol", groupsHeader: "dev, IT"},
			code:     codes.OK,
			action:   types.ActionRead,
			resource: "hbase/temp/colfam1",
		},
		{
			name:     "explicit action overrides method",
			method:   "POST",
			path:     "/hbase/temp3",
			headers:  map[string]string{userHeader: "carol", groupsHeader: "dev", actionHeader: "create"},
			code:     codes.OK,
			action:   types.ActionCreate,
			resource: "hbase/temp3",
		},
		{
			name:     "recursive hdfs path",
			method:   "GET",
			path:     "/hdfs/data/secure/report%20q1.csv",
			headers:  map[string]string{userHeader: "hdfs"},
			code:     codes.OK,
			action:   types.ActionRead,
			resource: "hdfs//data/secure/report q1.csv",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := s.Check(ctx, checkRequest(tt.method, tt.path, tt.headers))
			require.NoError(t, err)
			assert.Equal(t, int32(tt.code), resp.Status.Code)
			if tt.code != codes.OK {
				require.NotNil(t, resp.GetDeniedResponse())
				assert.Equal(t, tt.httpCode, resp.GetDeniedResponse().Status.Code)
			}

			record := <-ch
			assert.Equal(t, string(tt.action), record.Action)
			assert.Equal(t, tt.resource, record.Resource)
		})
	}
}

func TestEnvoyServer_DynamicMetadata(t *testing.T) {
	pe, _ := setupTestPolicyEngine(t)
	s := &ExtAuthzServer{pe: pe}
	ctx := context.Background()

	resp, err := s.Check(ctx, checkRequest("GET", "/hive/default/words", map[string]string{userHeader: "dave"}))
	require.NoError(t, err)
	require.NotNil(t, resp.GetOkResponse())

	md := resp.DynamicMetadata.AsMap()[MetadataNamespace].(map[string]interface{})
	assert.Equal(t, "(count >= 80)", md["rowFilter"])
	assert.Equal(t, []interface{}{"10"}, md["appliedPolicyIds"])
	assert.Equal(t, float64(1), md["snapshotVersion"])
	assert.Equal(t, findHeader(resp.GetOkResponse().Headers, decisionHeader).Value, md["decisionId"])
	assert.NotContains(t, md, "columnMasks")

	resp, err = s.Check(ctx, checkRequest("GET", "/hive/default/words", map[string]string{userHeader: "jane"}))
	require.NoError(t, err)
	md = resp.DynamicMetadata.AsMap()[MetadataNamespace].(map[string]interface{})
	masks := md["columnMasks"].(map[string]interface{})
	word := masks["word"].([]interface{})
	require.Len(t, word, 1)
	assert.Equal(t, "hash", word[0].(map[string]interface{})["function"])
	assert.NotContains(t, md, "rowFilter")
}

func TestEnvoyServer_CheckRejected(t *testing.T) {
	pe, ch := setupTestPolicyEngine(t)
	s := &ExtAuthzServer{pe: pe}
	ctx := context.Background()

	tests := []struct {
		name     string
		method   string
		path     string
		headers  map[string]string
		code     codes.Code
		httpCode typev3.StatusCode
	}{
		{"no user", "GET", "/hive/default", map[string]string{}, codes.Unauthenticated, typev3.StatusCode_Unauthorized},
		{"unknown service", "GET", "/kafka/orders", map[string]string{userHeader: "bob"}, codes.InvalidArgument, typev3.StatusCode_BadRequest},
		{"unknown method", "TRACE", "/hive/default", map[string]string{userHeader: "bob"}, codes.InvalidArgument, typev3.StatusCode_BadRequest},
		{"unknown action header", "GET", "/hive/default", map[string]string{userHeader: "bob", actionHeader: "teleport"}, codes.InvalidArgument, typev3.StatusCode_BadRequest},
		{"too deep", "GET", "/hive/a/b/c/d", map[string]string{userHeader: "bob"}, codes.InvalidArgument, typev3.StatusCode_BadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := s.Check(ctx, checkRequest(tt.method, tt.path, tt.headers))
			require.NoError(t, err)
			assert.Equal(t, int32(tt.code), resp.Status.Code)
			require.NotNil(t, resp.GetDeniedResponse())
			assert.Equal(t, tt.httpCode, resp.GetDeniedResponse().Status.Code)
			assert.Equal(t, resultDenied, findHeader(resp.GetDeniedResponse().Headers, resultHeader).Value)
		})
	}
	assert.Empty(t, ch, "rejected requests are never evaluated")
}
