// Package sidecar reads and writes XMP sidecar files holding the flat
// (dc:subject) and hierarchical (lr:hierarchicalSubject) keywords of a
// source image.
//
// Writing an existing packet only replaces the two keyword properties;
// everything else an editor stored in the file is kept byte for byte. A
// sidecar that cannot be parsed is treated as absent and rewritten.
package sidecar
