// Package subscription is the canonical subscription store: one row per
// provider-side subscription or order ever seen for a user, in a unified
// status vocabulary independent of any payment provider.
//
// The package owns the entity model and its invariants:
//
//   - (Provider, ProviderSubscriptionID) is the stable identity and the
//     idempotency anchor for every writer.
//   - StatusLifetime marks a non-recurring row that is never subject to
//     period-end expiry; an unreported billing interval carries no such
//     exemption.
//   - A canceled row always carries CanceledAt; rows are never deleted, so
//     revenue reporting keeps full history.
//   - StatusChangedAt records the event time of the last applied transition
//     and makes transitions monotonic: Store.ApplyTransition rejects any
//     event older than the state it would replace, with cancellation winning
//     exact-timestamp ties.
//
// Two Store implementations are provided: PGStore, which enforces the
// ordering rule in a single conditional upsert so concurrent writers (the
// webhook processor and the reconciliation sweep) cannot lose updates, and
// MemoryStore with the same semantics for tests.
//
// Checker answers feature-gate checkSubscription queries, including the
// past-due grace window signalled through Access.IsPastDue.
package subscription
