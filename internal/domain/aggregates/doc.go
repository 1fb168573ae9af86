// Package aggregates defines the write boundaries of the enrollment domain.
//
// Each contract names the invariants its implementation must enforce inside a
// single transaction. Persistence details live in internal/data/aggregates.
package aggregates
