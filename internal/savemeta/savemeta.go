// Package savemeta defines SaveMeta, the central value type describing a
// save file regardless of which side (device or remote) it was observed on.
package savemeta

import (
	"crypto/md5"
	"fmt"
	"strings"
	"time"

	"github.com/romm-sync/saveport/internal/hashutil"
	"github.com/romm-sync/saveport/internal/pathfmt"
)

// emptyHash is the MD5 digest of the empty byte string, used as the hash
// of an empty-sentinel record.
var emptyHash = hashutil.Hash(md5.Sum(nil))

// SaveMeta describes a save: its logical identity, timestamps, and content
// digest. The zero value is not meaningful; use NewEmpty or a composite
// literal with every field set.
type SaveMeta struct {
	Rom      string // logical rom identifier; may be empty, in which case EffectiveRom() falls back to Name
	Name     string // save stem, no extension, no directory
	Ext      string // file extension without the leading dot; may be empty
	Emulator *string // nil is distinct from a pointer to ""
	Created  time.Time
	Updated  time.Time
	Hash     hashutil.Hash
	Size     uint64
}

// NewEmpty constructs the empty-sentinel record for the given identity:
// zero size, epoch timestamps, and the hash of the empty byte string.
// Size == 0 is reserved to mean "no such save exists yet".
func NewEmpty(rom, name, ext string, emulator *string) SaveMeta {
	return SaveMeta{
		Rom:      rom,
		Name:     name,
		Ext:      ext,
		Emulator: emulator,
		Created:  time.Unix(0, 0).UTC(),
		Updated:  time.Unix(0, 0).UTC(),
		Hash:     emptyHash,
		Size:     0,
	}
}

// EffectiveRom returns the logical rom identifier, falling back to Name
// when Rom is unset.
func (m SaveMeta) EffectiveRom() string {
	if m.Rom != "" {
		return m.Rom
	}
	return m.Name
}

// IsEmpty reports whether m is the empty sentinel (size == 0).
func (m SaveMeta) IsEmpty() bool {
	return m.Size == 0
}

// SameFile reports whether m and other represent identical content: equal
// size and equal hash. This is weaker than equality of all fields.
func (m SaveMeta) SameFile(other SaveMeta) bool {
	return m.Size == other.Size && m.Hash == other.Hash
}

// Timestamp returns the effective timestamp: the later of Created and
// Updated.
func (m SaveMeta) Timestamp() time.Time {
	if m.Created.After(m.Updated) {
		return m.Created
	}
	return m.Updated
}

// OutputTarget binds $ROM, $NAME, $EXT, $CREATED, $UPDATED, $TIMESTAMP and
// $EMULATOR from m and returns format.BuildWithVars applied to that map. If
// the result ends in "/", the save's own filename is appended.
func (m SaveMeta) OutputTarget(format *pathfmt.FormatString) string {
	vars := map[string]string{
		"ROM":       m.EffectiveRom(),
		"NAME":      m.Name,
		"EXT":       m.Ext,
		"CREATED":   m.Created.UTC().Format(time.RFC3339),
		"UPDATED":   m.Updated.UTC().Format(time.RFC3339),
		"TIMESTAMP": m.Timestamp().UTC().Format(time.RFC3339),
	}
	if m.Emulator != nil {
		vars["EMULATOR"] = *m.Emulator
	}

	built := format.BuildWithVars(vars)
	if strings.HasSuffix(built, "/") {
		name := m.Name
		if m.Ext != "" {
			name += "." + m.Ext
		}
		built += name
	}
	return built
}

// ApplyFormatVariables consumes a variable map obtained from a template
// match (pathfmt.FormatString.Resolve) and overwrites the corresponding
// fields on a copy of m, returning the updated record. $TIMESTAMP, $CREATED
// and $UPDATED are parsed as RFC-3339; a malformed timestamp fails the
// whole operation. $CREATED and $UPDATED fall back to a shared parsed
// $TIMESTAMP, and that in turn falls back to the pre-existing field value.
func (m SaveMeta) ApplyFormatVariables(vars map[string]string) (SaveMeta, error) {
	out := m

	if rom, ok := vars["ROM"]; ok {
		out.Rom = rom
	}
	if name, ok := vars["NAME"]; ok {
		out.Name = name
	}
	if emulator, ok := vars["EMULATOR"]; ok {
		e := emulator
		out.Emulator = &e
	}

	var sharedTimestamp *time.Time
	if ts, ok := vars["TIMESTAMP"]; ok {
		parsed, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return SaveMeta{}, fmt.Errorf("savemeta: parse $TIMESTAMP %q: %w", ts, err)
		}
		sharedTimestamp = &parsed
	}

	if created, ok := vars["CREATED"]; ok {
		parsed, err := time.Parse(time.RFC3339, created)
		if err != nil {
			return SaveMeta{}, fmt.Errorf("savemeta: parse $CREATED %q: %w", created, err)
		}
		out.Created = parsed
	} else if sharedTimestamp != nil {
		out.Created = *sharedTimestamp
	}

	if updated, ok := vars["UPDATED"]; ok {
		parsed, err := time.Parse(time.RFC3339, updated)
		if err != nil {
			return SaveMeta{}, fmt.Errorf("savemeta: parse $UPDATED %q: %w", updated, err)
		}
		out.Updated = parsed
	} else if sharedTimestamp != nil {
		out.Updated = *sharedTimestamp
	}

	return out, nil
}
