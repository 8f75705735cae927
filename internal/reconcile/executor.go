package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/romm-sync/saveport/internal/device"
	"github.com/romm-sync/saveport/internal/discovery"
	"github.com/romm-sync/saveport/internal/pathfmt"
	"github.com/romm-sync/saveport/internal/rommclient"
	"github.com/romm-sync/saveport/internal/savemeta"
	"github.com/romm-sync/saveport/internal/store"
)

// RunSyncForSave reconciles one device-side save: it asks client for the
// matching remote record, queries db for the prior snapshot, decides, acts,
// and (when the decision requires it) records the new snapshot. An unknown
// remote rom is a non-fatal skip, logged as a warning. deviceFmt is the
// template that matched dev's path, used to compute where a pulled save
// lands; remoteFmt is the configured remote filename template, if any.
func RunSyncForSave(ctx context.Context, dev device.Meta, deviceFmt, remoteFmt *pathfmt.FormatString,
	client *rommclient.Client, db *store.Store, logger *slog.Logger) error {
	_, err := runSyncForSave(ctx, dev, deviceFmt, remoteFmt, client, db, logger)
	return err
}

func runSyncForSave(ctx context.Context, dev device.Meta, deviceFmt, remoteFmt *pathfmt.FormatString,
	client *rommclient.Client, db *store.Store, logger *slog.Logger) (outcome, error) {
	remote, err := client.FindSaveMatching(ctx, dev.Meta, remoteFmt)
	if err != nil {
		if errors.Is(err, rommclient.ErrRomNotFound) {
			logger.Warn("reconcile: rom not found for save, skipping", "path", dev.Path, "rom", dev.Meta.EffectiveRom())
			return outcomeSkipped, nil
		}
		return 0, fmt.Errorf("reconcile: finding remote match for %q: %w", dev.Path, err)
	}

	stored, err := db.QueryMetadata(ctx, dev.Meta.EffectiveRom(), dev.Meta.Name, dev.Meta.Emulator)
	if err != nil {
		return 0, fmt.Errorf("reconcile: querying stored snapshot for %q: %w", dev.Path, err)
	}

	decision, err := Decide(dev.Meta, remote.Meta, stored)
	if err != nil {
		return 0, fmt.Errorf("reconcile: deciding for %q: %w", dev.Path, err)
	}

	logger.Info("reconcile: decided", "path", dev.Path, "rom", dev.Meta.EffectiveRom(), "decision", decision)

	newSnapshot, err := act(ctx, decision, dev, deviceFmt, remoteFmt, remote, client)
	if err != nil {
		return 0, fmt.Errorf("reconcile: acting on %s for %q: %w", decision, dev.Path, err)
	}

	if decision.NeedsDBResync() {
		if err := db.UpsertMetadata(ctx, newSnapshot); err != nil {
			return 0, fmt.Errorf("reconcile: recording snapshot for %q: %w", dev.Path, err)
		}
	}

	return decisionOutcome(decision), nil
}

func decisionOutcome(d Decision) outcome {
	switch d {
	case PushToRemote:
		return outcomePushed
	case PullToDevice:
		return outcomePulled
	case ResyncDb:
		return outcomeResyncedDB
	default:
		return outcomeNoop
	}
}

// act executes decision's side effect (if any) and returns the SaveMeta to
// record as the new snapshot.
func act(ctx context.Context, decision Decision, dev device.Meta, deviceFmt, remoteFmt *pathfmt.FormatString,
	remote rommclient.RommSaveMeta, client *rommclient.Client) (savemeta.SaveMeta, error) {
	switch decision {
	case PullToDevice:
		dest := remote.Meta.OutputTarget(deviceFmt)
		if err := client.PullSave(ctx, dest, remote); err != nil {
			return savemeta.SaveMeta{}, err
		}
		return remote.Meta, nil

	case PushToRemote:
		patched := remote
		patched.Meta.Created = dev.Meta.Created
		patched.Meta.Updated = dev.Meta.Updated
		patched.Meta.Hash = dev.Meta.Hash
		patched.Meta.Size = dev.Meta.Size
		patched.Meta.Emulator = dev.Meta.Emulator
		if err := client.PushSave(ctx, dev.Path, patched, remoteFmt); err != nil {
			return savemeta.SaveMeta{}, err
		}
		return dev.Meta, nil

	default: // ResyncDb, Noop
		return dev.Meta, nil
	}
}

// Report tallies the outcome of a RunSync pass, for the one-shot CLI
// command and the daemon's own logging.
type Report struct {
	Pushed     int
	Pulled     int
	ResyncedDB int
	Noop       int
	Skipped    int
	Failed     int
}

// Total returns the number of candidates RunSync attempted to reconcile,
// including failures and skips.
func (r Report) Total() int {
	return r.Pushed + r.Pulled + r.ResyncedDB + r.Noop + r.Skipped + r.Failed
}

// RunSync discovers every candidate save under cfg, probes and reconciles
// each independently, and aggregates every per-save failure into a single
// joined error via errors.Join so the caller sees all of them rather than
// only the last one discarded. remoteFmt is the configured remote filename
// template, if any; each candidate's own device-side template comes from
// its discovery match.
func RunSync(ctx context.Context, discoverCh <-chan discovery.Result, remoteFmt *pathfmt.FormatString,
	client *rommclient.Client, db *store.Store, logger *slog.Logger) (Report, error) {
	var report Report
	var errs []error

	for result := range discoverCh {
		if result.Err != nil {
			logger.Error("reconcile: discovery error", "error", result.Err)
			errs = append(errs, result.Err)
			report.Failed++
			continue
		}

		outcome, err := runOne(ctx, result, remoteFmt, client, db, logger)
		if err != nil {
			logger.Error("reconcile: sync failed for save", "path", result.Match.Path, "error", err)
			errs = append(errs, err)
			report.Failed++
			continue
		}
		tally(&report, outcome)
	}

	return report, errors.Join(errs...)
}

// outcome distinguishes "decided and acted" from "skipped, no matching rom"
// so RunSync can tally both without runOne returning a sentinel error.
type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeNoop
	outcomePushed
	outcomePulled
	outcomeResyncedDB
)

func tally(report *Report, o outcome) {
	switch o {
	case outcomeSkipped:
		report.Skipped++
	case outcomeNoop:
		report.Noop++
	case outcomePushed:
		report.Pushed++
	case outcomePulled:
		report.Pulled++
	case outcomeResyncedDB:
		report.ResyncedDB++
	}
}

func runOne(ctx context.Context, result discovery.Result, remoteFmt *pathfmt.FormatString,
	client *rommclient.Client, db *store.Store, logger *slog.Logger) (outcome, error) {
	dev, err := device.FromPath(result.Match.Path)
	if err != nil {
		return 0, fmt.Errorf("probing device file %q: %w", result.Match.Path, err)
	}

	applied, err := dev.Meta.ApplyFormatVariables(result.Match.Vars)
	if err != nil {
		return 0, fmt.Errorf("applying format variables for %q: %w", result.Match.Path, err)
	}
	dev.Meta = applied

	return runSyncForSave(ctx, dev, result.Match.Format, remoteFmt, client, db, logger)
}
