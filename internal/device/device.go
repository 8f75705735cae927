// Package device probes a local save file on the handheld's filesystem,
// producing the SaveMeta that discovery and reconciliation compare against
// the remote service and the sync-metadata store.
package device

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/romm-sync/saveport/internal/hashutil"
	"github.com/romm-sync/saveport/internal/savemeta"
)

// hashBufferSize is the read buffer used while streaming a device file
// through the hasher (spec: "4 MiB chunks").
const hashBufferSize = 4 << 20

// Meta is a local save record: the filesystem path it was probed from, and
// the SaveMeta derived from that probe.
type Meta struct {
	Path string
	Meta savemeta.SaveMeta
}

// FromPath stats and hashes the file at path, deriving name/ext from its
// base name. Rom and Emulator are left unset — discovery fills those in via
// SaveMeta.ApplyFormatVariables once the path has been bound to a template.
func FromPath(path string) (Meta, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Meta{}, fmt.Errorf("device: stat %q: %w", path, err)
	}

	created, updated := fileTimes(info)

	f, err := os.Open(path)
	if err != nil {
		return Meta{}, fmt.Errorf("device: open %q: %w", path, err)
	}
	defer f.Close()

	hash, err := hashutil.Sum(bufio.NewReaderSize(f, hashBufferSize))
	if err != nil {
		return Meta{}, fmt.Errorf("device: hash %q: %w", path, err)
	}

	base := filepath.Base(path)
	ext := strings.TrimPrefix(filepath.Ext(base), ".")
	name := strings.TrimSuffix(base, filepath.Ext(base))

	return Meta{
		Path: path,
		Meta: savemeta.SaveMeta{
			Name:    name,
			Ext:     ext,
			Created: created,
			Updated: updated,
			Hash:    hash,
			Size:    uint64(info.Size()),
		},
	}, nil
}

// fileTimes extracts created/modified times from info, substituting the
// Unix epoch for whichever the platform's filesystem doesn't report.
// os.FileInfo only guarantees ModTime; a true creation time requires
// platform-specific syscalls this package does not use, so Created always
// falls back to the epoch here — preserved as the documented behavior
// rather than worked around, since the 30-day-since-epoch upload guard (C7)
// treats an epoch timestamp as "suspect" by design.
func fileTimes(info os.FileInfo) (created, updated time.Time) {
	updated = info.ModTime().UTC()
	return time.Unix(0, 0).UTC(), updated
}
