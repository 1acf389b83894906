// Package server wires the kernel to its HTTP surface.
//
// NewServer builds the full stack:
//   - Kernel composition root (bus, registry, jobs, guard, stores)
//   - Gin router with recovery, tracing, metrics, CORS, and rate limiting
//   - Kernel handlers under /kernel/* plus health and metrics endpoints
//   - WebSocket stream bridge and webhook forwarder on the relay channel
//   - App routers mounted for every enabled app
//
// App discovery and state restore run during construction, before routes
// register, so discovered apps can contribute routers.
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.NewServer(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer srv.Close()
//	srv.Run()
package server
