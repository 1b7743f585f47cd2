//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package decisionpoint exposes the policy engine to enforcement points over the network.
//
// Two servers are available:
//   - [generic]: HTTP/JSON decisions, reloads, tag bindings and the hive/hbase interceptors
//   - [envoy]: an ext_authz gRPC server that decides proxied HTTP requests
//
// Both listen before CreateServer returns, so a port of 0 picks a free port that [Server.Addr]
// reports:
//
//	pe, _ := core.NewLocalPolicyEngine([]string{"hadoop.yml"})
//	server, _ := generic.CreateServer(pe, 0)
//	defer server.Stop(ctx)
package decisionpoint

import (
	"context"
	"net"
)

// Server is a running decision point.
type Server interface {
	// Addr returns the address the server listens on.
	Addr() net.Addr

	// Stop waits for in-flight requests until ctx is done, then closes the listener.
	Stop(ctx context.Context) error
}
