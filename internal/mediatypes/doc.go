// Package mediatypes defines the RAW formats the organizer accepts and the
// extensions of the files it derives from them.
//
// Extension matching is case-insensitive: "IMG_0001.CR2" and "img_0001.cr2"
// are both Canon RAW files.
package mediatypes
