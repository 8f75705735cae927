package rommclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/romm-sync/saveport/internal/pathfmt"
	"github.com/romm-sync/saveport/internal/savemeta"
)

// FindSaveMatching locates the remote save for meta.EffectiveRom() that
// best corresponds to meta, optionally constrained by format (the raw
// on-server filename must match format, when both are present). If no
// remote save qualifies, it synthesizes a not-yet-uploaded record.
func (c *Client) FindSaveMatching(ctx context.Context, meta savemeta.SaveMeta, format *pathfmt.FormatString) (RommSaveMeta, error) {
	saves, err := c.savesForRom(ctx, meta.EffectiveRom())
	if err != nil {
		return RommSaveMeta{}, err
	}

	var survivors []RommSaveMeta
	for _, save := range saves {
		if !passesFormat(save, format) {
			continue
		}
		if save.Meta.SameFile(meta) {
			survivors = append(survivors, save)
			continue
		}
		if save.Meta.Emulator != nil && meta.Emulator != nil &&
			!strings.EqualFold(*save.Meta.Emulator, *meta.Emulator) {
			continue
		}
		if save.Meta.Name == meta.Name {
			survivors = append(survivors, save)
		}
	}

	tied := latestTied(survivors)
	switch len(tied) {
	case 0:
		id, err := c.romID(ctx, meta.EffectiveRom())
		if err != nil {
			return RommSaveMeta{}, err
		}
		return newSave(id, meta), nil
	case 1:
		return tied[0], nil
	default:
		return RommSaveMeta{}, fmt.Errorf("rommclient: find_save_matching(%s): %w", meta.EffectiveRom(), ErrTooManySaves)
	}
}

// passesFormat drops save if a format is supplied and save's raw_name
// doesn't match it. A save with no raw_name under a supplied format is
// dropped rather than erroring — the caller has no filename to test.
func passesFormat(save RommSaveMeta, format *pathfmt.FormatString) bool {
	if format == nil {
		return true
	}
	if save.RawName == nil {
		return false
	}
	return format.Matches(*save.RawName)
}

// latestTied returns the subset of saves tied for the latest Timestamp().
func latestTied(saves []RommSaveMeta) []RommSaveMeta {
	var best []RommSaveMeta
	var bestTS time.Time

	for _, save := range saves {
		ts := save.Meta.Timestamp()
		switch {
		case len(best) == 0:
			best = []RommSaveMeta{save}
			bestTS = ts
		case ts.Equal(bestTS):
			best = append(best, save)
		case ts.After(bestTS):
			best = []RommSaveMeta{save}
			bestTS = ts
		}
	}
	return best
}
