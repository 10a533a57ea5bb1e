// Package directory defines the Principal Directory port: payer-reference
// resolution and the coarse entitlement role (free/paid/admin) that the
// billing core keeps eventually consistent with subscription state.
package directory
