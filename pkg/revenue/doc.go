// Package revenue derives monthly recurring revenue and churn figures from
// the canonical subscription store.
//
// Billing intervals are normalized to months before summing, so a "6
// months" wallet subscription contributes one sixth of its period price to
// MRR. Lifetime purchases are non-recurring and tracked as a separate
// count. Rows without a stored price (common for migrated legacy orders)
// resolve through a configured default price table before being excluded.
package revenue
