// Package middleware provides HTTP middleware for the arena services: the
// custom authentication endpoint and the development master and game servers.
//
// This package includes:
//   - Prometheus request metrics
//   - OpenTelemetry server spans
//
// # Prometheus Metrics
//
// The Prometheus middleware collects:
//   - arena_http_requests_total: requests by route, method and status code
//   - arena_http_request_duration_seconds: request duration histogram by route
//   - arena_http_websocket_upgrades_total: hijacked connections by route
//
//	reg := prometheus.NewRegistry()
//	handler := middleware.Prometheus(middleware.WithRegistry(reg))(router)
//
// # OpenTelemetry Middleware
//
// The OpenTelemetry middleware starts a server span per request and stores it
// in the request context, so outgoing calls made by the handler inherit the
// trace:
//
//	handler := middleware.OpenTelemetry(
//	    middleware.WithTracerName("arena-auth"),
//	)(router)
//
// The tracer uses the global OpenTelemetry tracer provider unless
// WithTracerProvider is given.
//
// Both middlewares label requests with the chi route pattern when the
// handler is a chi router, and fall back to the URL path otherwise.
package middleware
