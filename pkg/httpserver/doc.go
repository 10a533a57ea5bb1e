// Package httpserver wraps net/http with graceful shutdown and health
// probes for the billing service. Graceful shutdown matters here: webhook
// deliveries cut mid-flight would be redelivered and reprocessed for
// nothing.
package httpserver
