// Package httpserver serves the redeemer's status endpoints:
//
//   - GET /health  liveness, always 200 while the process runs
//   - GET /ready   200 when every readiness check passes, 503 otherwise
//   - GET /metrics Prometheus exposition
package httpserver
