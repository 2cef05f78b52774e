// Package pipeline runs one organize pass over a directory of RAW images.
//
// The stages run in order, each consuming the previous stage's output:
//
//  1. cache: initialize the thumbnail cache, clearing it first if asked
//  2. convert: render or reuse a thumbnail per source image
//  3. extract: compute one embedding per thumbnail
//  4. cluster: group the embeddings at fine, then coarse granularity
//  5. merge: write the cluster keywords into each image's XMP sidecar
//  6. record: store the run and its tag assignments in the ledger
//
// Per-image failures inside a stage are logged and the image is dropped from
// later stages. A run that produces no thumbnails stops after conversion and
// returns an empty summary.
package pipeline
