package mediatypes

import "strings"

// Format identifies a camera RAW container.
type Format string

const (
	// FormatCR2 is Canon RAW v2 (TIFF based).
	FormatCR2 Format = "cr2"
	// FormatCR3 is Canon RAW v3 (ISO BMFF based).
	FormatCR3 Format = "cr3"
	// FormatNEF is Nikon Electronic Format (TIFF based).
	FormatNEF Format = "nef"
	// FormatARW is Sony Alpha RAW (TIFF based).
	FormatARW Format = "arw"
	// FormatRAF is Fujifilm RAW.
	FormatRAF Format = "raf"
	// FormatDNG is Adobe Digital Negative (TIFF based).
	FormatDNG Format = "dng"
)

// RawExtensions maps lowercase file extensions to their RAW format.
var RawExtensions = map[string]Format{
	".cr2": FormatCR2,
	".cr3": FormatCR3,
	".nef": FormatNEF,
	".arw": FormatARW,
	".raf": FormatRAF,
	".dng": FormatDNG,
}

const (
	// SidecarExtension is the extension of XMP keyword sidecars.
	SidecarExtension = ".xmp"
	// ThumbnailExtension is the extension of rendered thumbnails.
	ThumbnailExtension = ".jpg"
)

// GetFormat returns the RAW format for an extension such as ".CR2".
// Matching is case-insensitive.
func GetFormat(ext string) (Format, bool) {
	f, ok := RawExtensions[strings.ToLower(ext)]
	return f, ok
}

// IsRaw reports whether ext names a supported RAW format.
func IsRaw(ext string) bool {
	_, ok := GetFormat(ext)
	return ok
}

// IsTIFFBased reports whether the format stores its IFDs in TIFF layout, which
// lets EXIF readers reach the embedded preview.
func (f Format) IsTIFFBased() bool {
	switch f {
	case FormatCR2, FormatNEF, FormatARW, FormatDNG:
		return true
	default:
		return false
	}
}

// SupportedExtensions returns the supported extensions in a stable order.
func SupportedExtensions() []string {
	return []string{".cr2", ".cr3", ".nef", ".arw", ".raf", ".dng"}
}
