// Package merge writes cluster tags into the XMP sidecars of the source
// images they were computed from.
//
// Every sidecar is an independent task: the existing keywords are loaded,
// unioned with the new ones and written back atomically. Tasks never share a
// file, so the pool runs without locks, and a failing file is counted
// without stopping its siblings. Re-running with the same results leaves the
// sidecars unchanged.
package merge
