package store

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/romm-sync/saveport/internal/hashutil"
	"github.com/romm-sync/saveport/internal/savemeta"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestQueryMetadataEmptyReturnsSentinel(t *testing.T) {
	s := openTestStore(t)
	m, err := s.QueryMetadata(context.Background(), "zelda", "slot1", nil)
	require.NoError(t, err)
	assert.True(t, m.IsEmpty())
	assert.Equal(t, "zelda", m.Rom)
	assert.Equal(t, "slot1", m.Name)
}

func TestUpsertThenQueryRoundTrip(t *testing.T) {
	s := openTestStore(t)
	emulator := "snes9x"
	want := savemeta.SaveMeta{
		Rom:      "zelda",
		Name:     "slot1",
		Ext:      "sav",
		Emulator: &emulator,
		Hash:     hashutil.Hash{1, 2, 3, 4},
		Size:     42,
	}

	require.NoError(t, s.UpsertMetadata(context.Background(), want))

	got, err := s.QueryMetadata(context.Background(), "zelda", "slot1", &emulator)
	require.NoError(t, err)
	assert.Equal(t, want.Rom, got.Rom)
	assert.Equal(t, want.Name, got.Name)
	assert.Equal(t, want.Ext, got.Ext)
	require.NotNil(t, got.Emulator)
	assert.Equal(t, emulator, *got.Emulator)
	assert.Equal(t, want.Hash, got.Hash)
	assert.Equal(t, want.Size, got.Size)
}

func TestUpsertUpdatesInPlace(t *testing.T) {
	s := openTestStore(t)
	base := savemeta.SaveMeta{Rom: "zelda", Name: "slot1", Ext: "sav", Hash: hashutil.Hash{1}, Size: 10}
	require.NoError(t, s.UpsertMetadata(context.Background(), base))

	updated := base
	updated.Hash = hashutil.Hash{2}
	updated.Size = 20
	require.NoError(t, s.UpsertMetadata(context.Background(), updated))

	got, err := s.QueryMetadata(context.Background(), "zelda", "slot1", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), got.Size)
	assert.Equal(t, hashutil.Hash{2}, got.Hash)
}

func TestNilAndEmptyEmulatorAreDistinctKeys(t *testing.T) {
	s := openTestStore(t)
	empty := ""
	noneMeta := savemeta.SaveMeta{Rom: "zelda", Name: "slot1", Hash: hashutil.Hash{1}, Size: 1}
	emptyMeta := savemeta.SaveMeta{Rom: "zelda", Name: "slot1", Emulator: &empty, Hash: hashutil.Hash{2}, Size: 2}

	require.NoError(t, s.UpsertMetadata(context.Background(), noneMeta))
	require.NoError(t, s.UpsertMetadata(context.Background(), emptyMeta))

	gotNone, err := s.QueryMetadata(context.Background(), "zelda", "slot1", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gotNone.Size)

	gotEmpty, err := s.QueryMetadata(context.Background(), "zelda", "slot1", &empty)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), gotEmpty.Size)
}

func TestMigrationRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	v, err := currentVersion(ctx, s.db)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), v)

	require.NoError(t, revertAllMigrations(ctx, s.db))
	v, err = currentVersion(ctx, s.db)
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	require.NoError(t, applyMigrations(ctx, s.db))
	v, err = currentVersion(ctx, s.db)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), v)

	// Applying again is a no-op.
	require.NoError(t, applyMigrations(ctx, s.db))
	v, err = currentVersion(ctx, s.db)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), v)
}
