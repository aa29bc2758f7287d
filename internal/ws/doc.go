// Package ws streams extension state to connected popups: settings changes,
// intercepted host requests, and action results. Inbound messages carry the
// same actions the bus understands; the handler forwards them to the content
// context and relays the structured result.
package ws
