// Package reconcile implements the three-way reconciliation engine: the
// pure decision function that compares a save's device, remote, and
// last-synced snapshot, plus the per-save and whole-run executors that act
// on its verdict.
package reconcile

import (
	"errors"
	"fmt"

	"github.com/romm-sync/saveport/internal/savemeta"
)

// Decision is the closed set of verdicts decide can reach for one save.
type Decision int

const (
	// Noop means the device, remote, and stored snapshot already agree;
	// nothing is transferred and the store is not touched.
	Noop Decision = iota
	// PushToRemote means the device copy should be uploaded.
	PushToRemote
	// PullToDevice means the remote copy should be downloaded.
	PullToDevice
	// ResyncDb means device and remote agree with each other but not with
	// the stored snapshot: no transfer is needed, but the store must be
	// brought up to date.
	ResyncDb
)

func (d Decision) String() string {
	switch d {
	case Noop:
		return "noop"
	case PushToRemote:
		return "push_to_remote"
	case PullToDevice:
		return "pull_to_device"
	case ResyncDb:
		return "resync_db"
	default:
		return "unknown"
	}
}

// Target is the side a Decision transfers data to. It is None for Noop and
// ResyncDb.
type Target int

const (
	// TargetNone is returned by Decision.Target for Noop and ResyncDb.
	TargetNone Target = iota
	TargetDevice
	TargetRemote
)

// Target reports which side, if any, receives new content for d.
func (d Decision) Target() Target {
	switch d {
	case PullToDevice:
		return TargetDevice
	case PushToRemote:
		return TargetRemote
	default:
		return TargetNone
	}
}

// NeedsDBResync reports whether the store must be updated after acting on
// d. True for everything except Noop.
func (d Decision) NeedsDBResync() bool {
	return d != Noop
}

// ErrTimestampInvariant is returned by Decide when a stored snapshot
// matches one side but that side is not the expected newer one — a
// violation of the ordering the stored snapshot is supposed to guarantee.
var ErrTimestampInvariant = errors.New("reconcile: timestamp invariant violated")

// ErrConflict is returned by Decide when device, remote, and stored
// snapshot are three mutually distinct contents: manual intervention is
// required.
var ErrConflict = errors.New("reconcile: three-way conflict, manual intervention required")

// Decide is a pure function of its three observed SaveMeta values: the
// current device content, the current remote content, and the last
// snapshot recorded in the store. Same inputs always produce the same
// Decision (or the same error).
func Decide(device, remote, stored savemeta.SaveMeta) (Decision, error) {
	switch {
	case device.IsEmpty() && !remote.IsEmpty():
		return PullToDevice, nil
	case !device.IsEmpty() && remote.IsEmpty():
		return PushToRemote, nil
	case device.IsEmpty() && remote.IsEmpty():
		// Unreachable in practice (the device file was discovered on disk
		// to get here at all), but mapped defensively to Noop.
		return Noop, nil
	}

	deviceMatchesStored := device.SameFile(stored)
	remoteMatchesStored := remote.SameFile(stored)

	switch {
	case deviceMatchesStored && remoteMatchesStored:
		return Noop, nil

	case !deviceMatchesStored && !remoteMatchesStored && device.SameFile(remote):
		return ResyncDb, nil

	case deviceMatchesStored && !remoteMatchesStored:
		if device.Timestamp().Before(remote.Timestamp()) {
			return PullToDevice, nil
		}
		return 0, fmt.Errorf("reconcile: device timestamp %s >= remote timestamp %s, expected device older: %w",
			device.Timestamp(), remote.Timestamp(), ErrTimestampInvariant)

	case !deviceMatchesStored && remoteMatchesStored:
		if device.Timestamp().After(remote.Timestamp()) {
			return PushToRemote, nil
		}
		return 0, fmt.Errorf("reconcile: device timestamp %s <= remote timestamp %s, expected device newer: %w",
			device.Timestamp(), remote.Timestamp(), ErrTimestampInvariant)

	default:
		return 0, fmt.Errorf("reconcile: device, remote, and stored snapshot are all distinct: %w", ErrConflict)
	}
}
