package reconcile

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/romm-sync/saveport/internal/config"
	"github.com/romm-sync/saveport/internal/device"
	"github.com/romm-sync/saveport/internal/discovery"
	"github.com/romm-sync/saveport/internal/hashutil"
	"github.com/romm-sync/saveport/internal/pathfmt"
	"github.com/romm-sync/saveport/internal/rommclient"
	"github.com/romm-sync/saveport/internal/savemeta"
	"github.com/romm-sync/saveport/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// newTestServer serves a single rom ("zelda") with either zero or one
// user save, whose content-addressed hash/size the client derives by
// streaming saveContent from the download endpoint, per spec.md C7.
func newTestServer(t *testing.T, hasSave bool, saveContent []byte, updated time.Time) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/roms", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{{"id": 1}})
	})

	mux.HandleFunc("/api/roms/1", func(w http.ResponseWriter, r *http.Request) {
		saves := []map[string]any{}
		if hasSave {
			saves = append(saves, map[string]any{
				"id":               10,
				"file_name":        "slot1.sav",
				"file_name_no_ext": "slot1",
				"file_extension":   "sav",
				"emulator":         nil,
				"created_at":       updated.Format(time.RFC3339Nano),
				"updated_at":       updated.Format(time.RFC3339Nano),
				"download_path":    "/download/slot1.sav",
			})
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":               1,
			"file_name_no_ext": "zelda",
			"user_saves":       saves,
		})
	})

	mux.HandleFunc("/download/slot1.sav", func(w http.ResponseWriter, r *http.Request) {
		w.Write(saveContent)
	})

	mux.HandleFunc("/api/saves", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		w.WriteHeader(http.StatusCreated)
	})

	return httptest.NewServer(mux)
}

func newTestClient(t *testing.T, srv *httptest.Server) *rommclient.Client {
	t.Helper()
	return rommclient.New(config.RommConfig{URL: srv.URL, APIKey: "test-key"}, testLogger())
}

func writeDeviceFile(t *testing.T, content []byte) device.Meta {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "slot1.sav")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	dev, err := device.FromPath(path)
	require.NoError(t, err)
	dev.Meta.Rom = "zelda"
	return dev
}

// scenario 1: new local save, empty remote, no prior snapshot -> push.
func TestRunSyncForSaveNewLocalSavePushes(t *testing.T) {
	content := []byte("new device save bytes")
	srv := newTestServer(t, false, nil, time.Time{})
	defer srv.Close()
	client := newTestClient(t, srv)
	db := openTestStore(t)

	dev := writeDeviceFile(t, content)

	outcome, err := runSyncForSave(t.Context(), dev, nil, nil, client, db, testLogger())
	require.NoError(t, err)
	assert.Equal(t, outcomePushed, outcome)

	stored, err := db.QueryMetadata(t.Context(), "zelda", "slot1", nil)
	require.NoError(t, err)
	require.False(t, stored.IsEmpty())
	assert.Equal(t, uint64(len(content)), stored.Size)
	wantHash, err := hashutil.Sum(bytesReaderFor(content))
	require.NoError(t, err)
	assert.Equal(t, wantHash, stored.Hash)
}

// scenario 2: empty local (sentinel), remote has a save -> pull to device.
func TestRunSyncForSavePullsFromRemote(t *testing.T) {
	content := []byte("remote save content, pulled down")
	updated := time.Now().Add(-60 * 24 * time.Hour)
	srv := newTestServer(t, true, content, updated)
	defer srv.Close()
	client := newTestClient(t, srv)
	db := openTestStore(t)

	dir := t.TempDir()
	dest := filepath.Join(dir, "slot1.sav")
	deviceFmt := pathfmt.New(filepath.Join(dir, "$NAME.$EXT"))

	dev := device.Meta{
		Path: dest,
		Meta: savemeta.NewEmpty("zelda", "slot1", "sav", nil),
	}

	outcome, err := runSyncForSave(t.Context(), dev, deviceFmt, nil, client, db, testLogger())
	require.NoError(t, err)
	assert.Equal(t, outcomePulled, outcome)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	stored, err := db.QueryMetadata(t.Context(), "zelda", "slot1", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(content)), stored.Size)
}

// scenario 3: three-way agreement -> noop. The test checks the outcome
// only; a Noop outcome makes no transfer and no store write.
func TestRunSyncForSaveThreeWayAgreementIsNoop(t *testing.T) {
	content := []byte("steady state save")
	updated := time.Now().Add(-60 * 24 * time.Hour)
	srv := newTestServer(t, true, content, updated)
	defer srv.Close()
	client := newTestClient(t, srv)
	db := openTestStore(t)

	dev := writeDeviceFile(t, content)
	dev.Meta.Updated = updated
	dev.Meta.Created = updated

	require.NoError(t, db.UpsertMetadata(t.Context(), dev.Meta))

	outcome, err := runSyncForSave(t.Context(), dev, nil, nil, client, db, testLogger())
	require.NoError(t, err)
	assert.Equal(t, outcomeNoop, outcome)
}

// scenario 6: device, remote, and stored snapshot are three distinct
// contents -> Conflict error, nothing mutated.
func TestRunSyncForSaveConflictSurfacesError(t *testing.T) {
	remoteContent := []byte("remote content, different from both")
	updated := time.Now().Add(-60 * 24 * time.Hour)
	srv := newTestServer(t, true, remoteContent, updated)
	defer srv.Close()
	client := newTestClient(t, srv)
	db := openTestStore(t)

	staleSnapshot := savemeta.SaveMeta{
		Rom: "zelda", Name: "slot1", Ext: "sav",
		Hash: hashutil.Hash{0xFF}, Size: 999,
		Created: updated.Add(-time.Hour), Updated: updated.Add(-time.Hour),
	}
	require.NoError(t, db.UpsertMetadata(t.Context(), staleSnapshot))

	dev := writeDeviceFile(t, []byte("device content, distinct from remote and stored"))

	_, err := runSyncForSave(t.Context(), dev, nil, nil, client, db, testLogger())
	require.ErrorIs(t, err, ErrConflict)

	// store must be unchanged
	stored, err := db.QueryMetadata(t.Context(), "zelda", "slot1", nil)
	require.NoError(t, err)
	assert.Equal(t, staleSnapshot.Hash, stored.Hash)
}

// RunSync over a discovery channel with no candidates at all reports an
// empty, error-free pass.
func TestRunSyncEmptyDiscoveryIsNoError(t *testing.T) {
	srv := newTestServer(t, false, nil, time.Time{})
	defer srv.Close()
	client := newTestClient(t, srv)
	db := openTestStore(t)

	ch := make(chan discovery.Result)
	close(ch)

	report, err := RunSync(context.Background(), ch, nil, client, db, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Total())
}

func bytesReaderFor(b []byte) io.Reader {
	return &staticByteReader{data: b}
}

type staticByteReader struct {
	data []byte
	pos  int
}

func (r *staticByteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}
