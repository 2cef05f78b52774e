// Package identity derives the key that correlates one source image across
// thumbnails, embeddings, clusters and sidecars.
//
// An identity is the path relative to the scan root, extension stripped, with
// "/" separators: "2024/trip/IMG_0001". Images outside the root fall back to
// their base name. A pipeline run must use one root throughout, since the same
// file resolves to different identities under different roots.
package identity
