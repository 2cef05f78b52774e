package media

import (
	"context"
	"path/filepath"

	"raw-organizer/internal/logging"
	"raw-organizer/internal/mediatypes"
)

var log = logging.Prefixed("media")

// Renderer turns a RAW file into a raster thumbnail whose longest edge is at
// most size pixels, written as JPEG to dst. Implementations either write dst
// completely or return an error.
type Renderer interface {
	Render(ctx context.Context, src SourceImage, dst string, size int) error
	Name() string
}

// Thumbnail is a rendered preview of one SourceImage.
type Thumbnail struct {
	Path   string
	Source SourceImage
	Size   int
	// Cached is true when the thumbnail was reused from a previous run.
	Cached bool
}

// ThumbnailPath returns where the thumbnail for src lives: the identity of src
// under root, mirrored below thumbDir with a .jpg extension.
func ThumbnailPath(thumbDir, root string, src SourceImage) string {
	id := src.Identity(root)
	return filepath.Join(thumbDir, filepath.FromSlash(id)+mediatypes.ThumbnailExtension)
}
