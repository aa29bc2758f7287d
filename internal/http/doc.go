// Package http exposes the control-plane REST surface: settings and
// pagination reads and writes, action dispatch into the content context,
// sign-in, profile and quota reads, metered owner reveals, proposal
// generation, and captured project lookups.
package http
