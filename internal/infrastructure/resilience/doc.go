// Package resilience implements the circuit breaker protecting calls to the
// collaboration API. The breaker moves between three states:
//
//	Closed --[failures trip]--> Open --[timeout]--> Half-Open
//	Half-Open --[successes]--> Closed, --[failure]--> Open
//
// Closed passes requests through while counting outcomes. Open fails fast
// with ErrCircuitOpen. Half-Open admits a bounded number of probes and
// closes again once enough succeed.
package resilience
