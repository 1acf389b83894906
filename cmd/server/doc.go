// Package main is the entry point for the PromptForge kernel server.
//
// The kernel hosts pluggable apps in one process: it discovers their
// manifests, routes their events over a typed bus, schedules their
// background jobs, and enforces their declared capabilities and quotas.
// Clients talk to it over REST under /kernel/* and a resumable WebSocket
// event stream.
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//
// Usage:
//
//	./server -port 8000 -apps ./apps
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown (states persisted before exit)
package main
