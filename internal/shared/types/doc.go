// Package types provides shared data structures for the kernel.
//
// This package defines the declarative and bookkeeping types used across
// all kernel components, keeping the leaf packages (bus, job, guard,
// registry) free of cross-imports.
//
// Core Types:
//   - AppManifest: Declarative app identity, capabilities, quotas, routers
//   - App: Hosted-app capability interface with BaseApp no-op defaults
//   - AppRecord: Registry bookkeeping (manifest, instance, status)
//   - Contract, Schema: Typed event payload contracts
//   - Job: Schedulable unit of work with retry bookkeeping
//
// Handler Types:
//   - EventHandler: Bus subscription callback
//   - JobHandler: Queue execution callback
//
// Example Usage:
//
//	manifest := types.AppManifest{
//	    ID:      "optimizer",
//	    Version: "1.0.0",
//	    Name:    "Prompt Optimizer",
//	    Capabilities: types.CapabilitySpec{
//	        Required: []string{"jobs:submit", "events:publish"},
//	    },
//	}
package types
