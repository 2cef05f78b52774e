package media

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"raw-organizer/internal/filesystem"
	"raw-organizer/internal/identity"
	"raw-organizer/internal/mediatypes"

	"github.com/facette/natsort"
)

var (
	// ErrUnsupportedFormat is returned for files whose extension is not a
	// supported RAW format.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrNotExist is returned when a source image or scan root is missing.
	ErrNotExist = errors.New("path does not exist")
	// ErrNotDirectory is returned when a scan root is not a directory.
	ErrNotDirectory = errors.New("not a directory")
)

// SourceImage is one RAW photo on disk.
type SourceImage struct {
	Path   string
	Format mediatypes.Format
}

// NewSourceImage validates path and returns the SourceImage for it. The file
// must exist, be a regular file and carry a supported RAW extension.
func NewSourceImage(path string) (SourceImage, error) {
	format, ok := mediatypes.GetFormat(filepath.Ext(path))
	if !ok {
		return SourceImage{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		if os.IsNotExist(err) {
			return SourceImage{}, fmt.Errorf("%w: %s", ErrNotExist, path)
		}
		return SourceImage{}, err
	}
	if !info.Mode().IsRegular() {
		return SourceImage{}, fmt.Errorf("%w: %s is not a regular file", ErrUnsupportedFormat, path)
	}

	return SourceImage{Path: path, Format: format}, nil
}

// Identity returns the image's identity relative to root.
func (s SourceImage) Identity(root string) string {
	return identity.Resolve(s.Path, root)
}

// Name returns the file name without directories.
func (s SourceImage) Name() string {
	return filepath.Base(s.Path)
}

// UniqueByIdentity keeps the first image of each identity under root and
// returns the others as duplicates, both in input order. A RAW pair such as
// IMG_0001.CR2 and IMG_0001.NEF shares one identity and one sidecar.
func UniqueByIdentity(images []SourceImage, root string) (unique, duplicates []SourceImage) {
	seen := make(map[string]bool, len(images))
	unique = make([]SourceImage, 0, len(images))
	for _, img := range images {
		id := img.Identity(root)
		if seen[id] {
			duplicates = append(duplicates, img)
			continue
		}
		seen[id] = true
		unique = append(unique, img)
	}
	return unique, duplicates
}

// Scan walks dir recursively and returns every supported RAW file in natural
// order of its root-relative path. Hidden files and directories are skipped,
// as is every directory listed in exclude (typically the cache directory).
// A missing or non-directory root is an error; unreadable subdirectories are
// logged and skipped.
func Scan(dir string, exclude ...string) ([]SourceImage, error) {
	info, err := filesystem.StatWithRetry(dir, filesystem.DefaultRetryConfig())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, dir)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, dir)
	}

	skip := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		if abs, err := filepath.Abs(e); err == nil {
			skip[abs] = true
		}
	}

	var images []SourceImage
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			log.Warn("skipping %s: %v", path, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if path != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if abs, absErr := filepath.Abs(path); absErr == nil && skip[abs] && path != dir {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		format, ok := mediatypes.GetFormat(filepath.Ext(path))
		if !ok {
			return nil
		}
		images = append(images, SourceImage{Path: path, Format: format})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}

	sort.SliceStable(images, func(i, j int) bool {
		a, b := filepath.ToSlash(images[i].Path), filepath.ToSlash(images[j].Path)
		if a == b {
			return false
		}
		return natsort.Compare(a, b)
	})

	log.Debug("found %d RAW files under %s", len(images), dir)
	return images, nil
}
