// Package monitoring exports the Prometheus instruments for the extension
// core: control-plane request metrics, interception and rewrite counters,
// injection outcomes, filter activity, metered backend actions, and the
// WebSocket feed. The collector registers on the default registry; the
// server exposes it at /metrics.
package monitoring
