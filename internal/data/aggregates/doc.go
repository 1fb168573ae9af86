// Package aggregates implements the enrollment and payment write paths.
//
// Each aggregate opens its own transaction through a TxRunner, composes the
// table repos from internal/data/repos inside it, and returns errors already
// mapped to domain codes.
package aggregates
