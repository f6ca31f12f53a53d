// Package handlers contains reusable HTTP pieces shared by the API server:
// health checking and middleware.
//
// # Health Checks
//
// The HealthChecker interface runs named checks in parallel. Required checks
// decide readiness; optional checks only mark the service degraded:
//
//	checker := handlers.NewCompositeHealthChecker("v1.0.0")
//	checker.AddCheck("postgres", handlers.NewPingCheck(db))
//	checker.AddCheck("redis", handlers.NewPingCheck(cache))
//	checker.AddOptionalCheck("portal", handlers.NewPingCheck(portalClient))
//
//	status := checker.Check(ctx)
//	if !status.Ready {
//	    log.Printf("not ready: %s", status.Message)
//	}
//
// # Middleware
//
// APIKeyAuth guards administrative routes with a bcrypt-hashed key.
// NoCacheMiddleware, SecurityHeadersMiddleware and RequestSizeLimitMiddleware
// are plain func(http.Handler) http.Handler and compose with Chain.
package handlers
