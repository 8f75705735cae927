package rommclient

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// atomicDownload streams src to a temporary file alongside dest, then
// renames it onto dest. dest holds either its prior content or the
// complete new content at every point an observer can see it; partial
// content never appears under dest. The temp path is dest with its
// extension replaced by the current RFC-3339 timestamp, so concurrent
// downloads to the same dest use distinct temp files (the final rename is
// still last-writer-wins).
func atomicDownload(src io.Reader, dest string) error {
	tmp := tempPathFor(dest)

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("creating temp file %q: %w", tmp, ErrCreateNewExists)
		}
		return fmt.Errorf("creating temp file %q: %w", tmp, err)
	}

	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("streaming to temp file %q: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("flushing temp file %q: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing temp file %q: %w", tmp, err)
	}

	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("renaming %q onto %q: %w", tmp, dest, err)
	}
	return nil
}

// tempPathFor replaces dest's extension with the current RFC-3339
// timestamp (colons and all — the target filesystem is the handheld's own
// Linux filesystem, which permits them).
func tempPathFor(dest string) string {
	ext := filepath.Ext(dest)
	stem := strings.TrimSuffix(dest, ext)
	return stem + "." + tempPathNow().UTC().Format(time.RFC3339Nano)
}

// tempPathNow is the clock tempPathFor reads; tests replace it to pin the
// temp path.
var tempPathNow = time.Now
