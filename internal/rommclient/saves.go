package rommclient

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/romm-sync/saveport/internal/hashutil"
	"github.com/romm-sync/saveport/internal/savemeta"
)

// maxConcurrentSaveHashes bounds how many remote saves are streamed and
// hashed at once when listing a rom's saves.
const maxConcurrentSaveHashes = 4

// RommSaveMeta is one save record as known to the remote service: its rom
// and save ids (SaveID is nil for a save that doesn't exist remotely yet),
// its download path, the raw on-server filename, and its SaveMeta.
type RommSaveMeta struct {
	RomID        int64
	SaveID       *int64
	DownloadPath *string
	RawName      *string
	Meta         savemeta.SaveMeta
}

// newSave synthesizes a not-yet-uploaded remote record for base, bound to
// romID.
func newSave(romID int64, base savemeta.SaveMeta) RommSaveMeta {
	return RommSaveMeta{
		RomID: romID,
		Meta:  savemeta.NewEmpty(base.EffectiveRom(), base.Name, base.Ext, base.Emulator),
	}
}

// savesForRom fetches the detailed rom record for rom and hashes every user
// save concurrently (bounded by maxConcurrentSaveHashes), since the remote
// service's listing doesn't expose content hash or exact size.
func (c *Client) savesForRom(ctx context.Context, rom string) ([]RommSaveMeta, error) {
	id, err := c.romID(ctx, rom)
	if err != nil {
		return nil, err
	}

	var detail detailedRomSchema
	if err := c.getJSON(ctx, fmt.Sprintf("/api/roms/%d", id), &detail); err != nil {
		return nil, fmt.Errorf("rommclient: fetching rom %d detail: %w", id, err)
	}

	results := make([]RommSaveMeta, len(detail.UserSaves))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentSaveHashes)

	for i, save := range detail.UserSaves {
		i, save := i, save
		g.Go(func() error {
			hash, size, err := c.hashRemoteSave(gctx, save.DownloadPath)
			if err != nil {
				return fmt.Errorf("rommclient: hashing save %d: %w", save.ID, err)
			}

			saveID := save.ID
			downloadPath := save.DownloadPath
			rawName := save.FileName

			results[i] = RommSaveMeta{
				RomID:        id,
				SaveID:       &saveID,
				DownloadPath: &downloadPath,
				RawName:      &rawName,
				Meta: savemeta.SaveMeta{
					Rom:      detail.FileNameNoExt,
					Name:     save.FileNameNoExt,
					Ext:      save.FileExtension,
					Emulator: save.Emulator,
					Created:  save.CreatedAt,
					Updated:  save.UpdatedAt,
					Hash:     hash,
					Size:     size,
				},
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// hashRemoteSave streams downloadPath's content through the hasher,
// producing (hash, size) since the remote service doesn't report these
// directly in its save listing.
func (c *Client) hashRemoteSave(ctx context.Context, downloadPath string) (hashutil.Hash, uint64, error) {
	resp, err := c.do(ctx, "GET", downloadPath, "", nil)
	if err != nil {
		return hashutil.Hash{}, 0, err
	}
	defer resp.Body.Close()

	return hashutil.SumWithSize(resp.Body)
}
