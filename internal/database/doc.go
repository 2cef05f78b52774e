// Package database keeps the run ledger: a SQLite file recording every
// organize run (its root, counts and timings) and the cluster tags it
// assigned to each image identity.
//
// The ledger answers "which images carry this tag" and "which tags does
// this image have" without rescanning sidecars. Queries always look at the
// latest applied run for a root; dry runs are recorded but never answer
// tag queries.
//
// The database uses WAL mode so rawtags can read while a run is being
// recorded.
package database
