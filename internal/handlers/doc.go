// Package handlers provides the HTTP handlers served while an organize run
// is in progress: Prometheus metrics, health and version.
package handlers
