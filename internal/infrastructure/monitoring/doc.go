/*
Package monitoring provides Prometheus metrics for the widget host.

# Overview

Collectors are registered on an injected prometheus.Registerer so each host
(and each test) owns its registry.

# Metrics

- registry: widgets registered, declarations rejected by reason
- instances: live instances by state, reactivation outcomes
- permissions: transitions by target state, fail-closed writes
- gate: gated operations by scope and result, with latency
- channel: received commands
- diagnostics HTTP requests and uptime

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	timer := monitoring.NewTimer(metrics, "Location")
	// ... perform operation ...
	timer.Stop("success")
*/
package monitoring
