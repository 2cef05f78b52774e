// Package media finds RAW photos and renders them into thumbnails.
//
// Scan walks a folder tree and returns SourceImages in natural order. A
// Renderer turns one SourceImage into a JPEG no larger than the requested
// size on its longest edge:
//
//   - PreviewRenderer uses the largest JPEG preview embedded by the camera,
//     rotated per EXIF orientation, and falls back to decoding the file.
//   - VipsRenderer uses libvips decode-time shrinking when libvips is
//     initialized and defers to another Renderer otherwise.
//
// Thumbnails mirror the source tree below the cache thumbnail directory; see
// ThumbnailPath.
package media
