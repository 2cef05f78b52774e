// Command rawtags queries the run ledger written by raw-organizer.
//
// Every applied organize run records which cluster tags it gave to which
// images. rawtags answers questions about the latest applied run without
// reading any sidecar:
//
//	rawtags -root /photos/2024 runs
//	rawtags -root /photos/2024 find fine_003
//	rawtags -root /photos/2024 find coarse_001
//	rawtags -root /photos/2024 tags trip/IMG_0001
//
// The ledger defaults to <root>/.cache/runs.db; -db or RAWORG_DB selects
// another file. Dry runs are listed by the runs command but never answer
// find or tags queries.
package main
