// Package metrics defines the Prometheus collectors for streamcast.
//
// New(registerer) builds and registers every collector; pass
// prometheus.NewRegistry() in tests to keep them isolated. The hub and API
// layers take a *Metrics and update it inline — there is no sampling loop.
package metrics
