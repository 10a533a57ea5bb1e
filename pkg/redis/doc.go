// Package redis connects the service to Redis, which backs the best-effort
// webhook delivery dedupe window.
package redis
