// Package api implements the HTTP surface of SiteReport Core's token
// lifecycle.
//
// This package provides:
//   - Login, refresh and logout endpoints backed by auth.Service
//   - Session listing and admin revoke-all for a user
//   - Bearer access-token middleware (signature check only, no store hit)
//   - Health and Prometheus metrics endpoints
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Errors
//
// Every error response has the same JSON shape ({status, code, message}).
// Auth failures map to 401, a disabled account or a missing admin grant to
// 403, logout misuse to 400 and an unreachable session store to 503.
//
// # Lifecycle
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
