// Package plans provides the read-only plan catalog: character quotas,
// language allow-lists, and prices per billing interval, keyed by plan ID.
//
// Plans are configuration, not state. The catalog is loaded once at startup
// from a Source (YAML file or in-memory for tests), validated, and then
// immutable. Nothing in the billing core ever writes a plan.
package plans
