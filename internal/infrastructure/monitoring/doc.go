/*
Package monitoring provides performance monitoring and metrics collection.

# Overview

This package implements Prometheus-based metrics collection for the kernel,
tracking HTTP requests, bus activity, job scheduling, guard denials, and
stream connections. Each Metrics value owns a private registry, so
independently constructed kernels (one per test) never collide.

# Usage

	// Create metrics collector
	metrics := monitoring.NewMetrics()

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))

	// Record custom metrics
	metrics.RecordEventPublished("job.completed")
	metrics.SetAppsEnabled(5)

# Metrics Endpoint

Expose metrics via the collector's handler:

	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
