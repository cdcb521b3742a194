// Package server exposes the push retention store over HTTP and gRPC.
//
// # HTTP Endpoints
//
//   - GET  /                               - HTML list of stored pushes
//   - GET  /health                         - Liveness check
//   - GET  /health/ready                   - Store readiness check
//   - POST /api/pushes                     - Receive a push
//   - GET  /api/pushes?limit=N             - List pushes, newest first
//   - GET  /api/pushes/stream              - SSE stream of push_added events
//   - GET  /api/pushes/{id}                - Fetch one push
//   - GET  /api/pushes/{id}/exists         - Check whether a push is stored
//   - POST /api/prune                      - Delete pushes outside the storage window
//   - GET  /api/settings/storage-days      - Read the storage window
//   - PUT  /api/settings/storage-days      - Change the storage window
//   - GET  /api/attributes/{scope}         - Attributes written by payload actions
//
// When auth.jwt_secret is set every /api route requires a bearer token.
//
// # Receiving Pushes
//
// A received push is stored at most once per ID. The first delivery returns
// 201 and runs any actions named by top-level payload keys; later deliveries
// return 200 with "inserted": false and run nothing.
//
// # gRPC
//
// When server.grpc_addr is set (or Tailscale is enabled) a gRPC server runs
// the standard grpc.health.v1 service plus reflection.
package server
