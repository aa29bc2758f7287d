// Package server assembles the control plane: gin router, CORS, metrics
// middleware, REST handlers, and the WebSocket stream.
package server
