package filesystem

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"time"
)

// WriteFileAtomic writes data to path so that readers see either the old or
// the new content, never a partial file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	return SaveAtomic(path, perm, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// SaveAtomic streams content produced by writeFunc into a temp file in the
// destination directory, fsyncs it and renames it over path.
func SaveAtomic(path string, perm os.FileMode, writeFunc func(io.Writer) error) (err error) {
	start := time.Now()
	defer func() {
		observe().ObserveOperation(defaultResolver.Resolve(path), "write", time.Since(start).Seconds(), err)
	}()

	dir := filepath.Dir(path)
	base := filepath.Base(path)

	// Temp file in the same directory so rename stays on one filesystem.
	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	_ = tmp.Chmod(perm)

	buf := bufio.NewWriterSize(tmp, 64*1024)
	if err := writeFunc(buf); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	tmpName = ""

	// Best-effort: fsync the directory so the rename is durable on POSIX.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}

	return nil
}
