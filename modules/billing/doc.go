// Package billing exposes the subscription core over HTTP: per-provider
// webhook ingress, the access check endpoint, and the MRR stats endpoint.
//
// Webhook signature verification happens here, before any payload reaches
// the event processor. Response status codes are chosen for at-least-once
// delivery: anomalies and duplicates are acknowledged because redelivery
// cannot fix them, while transient failures return 5xx so the provider
// retries.
package billing
