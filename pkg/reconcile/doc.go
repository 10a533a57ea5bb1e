// Package reconcile periodically re-verifies stored subscriptions against
// the payment providers' records and repairs any drift.
//
// Webhooks get lost, arrive out of order, or describe states the provider
// has since moved past. The engine treats the provider as the source of
// truth for billing status and the local store as the source of truth for
// entitlement, sweeping every non-terminal row: confirming ones that match,
// transitioning ones that drifted, and force-canceling ones expired past
// their grace window. Rows whose provider record has disappeared are
// canceled; rows the provider cannot answer for right now are left alone
// and retried next sweep.
//
// All writes go through the same lifecycle.Applier as the webhook
// processor, so a sweep racing a live delivery resolves by event time, not
// by arrival order.
package reconcile
