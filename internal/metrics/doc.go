// Package metrics holds the Prometheus collectors exported by dm-gateway.
//
// Collectors are registered on the default registry at package init via
// promauto, so importing the package is enough to expose them on the
// gateway's /metrics endpoint.
package metrics
