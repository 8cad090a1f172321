// Package middleware provides HTTP middleware for the diagnostics API.
//
//   - RateLimit: per-client token bucket with idle eviction
//
// Example Usage:
//
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
