// Package domain holds the shared types and sentinel errors used across
// the addon: delivery channels, environment names, and the runtime
// settings resolved once at startup and passed into the request path.
package domain
