package rommclient

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/romm-sync/saveport/internal/config"
	"github.com/romm-sync/saveport/internal/hashutil"
	"github.com/romm-sync/saveport/internal/savemeta"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer wires a minimal fake of the remote service's rom/save
// endpoints. saveContent is served verbatim at /download/slot1.sav.
func newTestServer(t *testing.T, saveContent []byte, created, updated time.Time) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/roms", func(w http.ResponseWriter, r *http.Request) {
		term := r.URL.Query().Get("search_term")
		switch term {
		case "zelda":
			json.NewEncoder(w).Encode([]map[string]any{{"id": 1}})
		case "ambiguous":
			json.NewEncoder(w).Encode([]map[string]any{{"id": 1}, {"id": 2}})
		default:
			json.NewEncoder(w).Encode([]map[string]any{})
		}
	})

	mux.HandleFunc("/api/roms/1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id":               1,
			"file_name_no_ext": "zelda",
			"user_saves": []map[string]any{
				{
					"id":              10,
					"file_name":       "slot1.sav",
					"file_name_no_ext": "slot1",
					"file_extension":  "sav",
					"emulator":        nil,
					"created_at":      created.Format(time.RFC3339Nano),
					"updated_at":      updated.Format(time.RFC3339Nano),
					"download_path":   "/download/slot1.sav",
				},
			},
		})
	})

	mux.HandleFunc("/download/slot1.sav", func(w http.ResponseWriter, r *http.Request) {
		w.Write(saveContent)
	})

	mux.HandleFunc("/api/saves", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, _, err := r.FormFile("saves")
		require.NoError(t, err)
		w.WriteHeader(http.StatusCreated)
	})

	return httptest.NewServer(mux)
}

func newClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	return New(config.RommConfig{URL: srv.URL, APIKey: "test-key"}, testLogger())
}

func TestRomIDResolvesAndCaches(t *testing.T) {
	srv := newTestServer(t, []byte("hello"), time.Now().Add(-60*24*time.Hour), time.Now().Add(-60*24*time.Hour))
	defer srv.Close()
	c := newClient(t, srv)

	id, err := c.romID(t.Context(), "zelda")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	c.mu.RLock()
	_, cached := c.romIDCache["zelda"]
	c.mu.RUnlock()
	assert.True(t, cached)
}

func TestRomIDNotFound(t *testing.T) {
	srv := newTestServer(t, nil, time.Time{}, time.Time{})
	defer srv.Close()
	c := newClient(t, srv)

	_, err := c.romID(t.Context(), "missing")
	require.ErrorIs(t, err, ErrRomNotFound)
}

func TestRomIDTooMany(t *testing.T) {
	srv := newTestServer(t, nil, time.Time{}, time.Time{})
	defer srv.Close()
	c := newClient(t, srv)

	_, err := c.romID(t.Context(), "ambiguous")
	require.ErrorIs(t, err, ErrTooManyRoms)
}

func TestFindSaveMatchingSameFile(t *testing.T) {
	content := []byte("save-bytes")
	created := time.Now().Add(-60 * 24 * time.Hour)
	srv := newTestServer(t, content, created, created)
	defer srv.Close()
	c := newClient(t, srv)

	hash, err := hashutil.Sum(bytesReader(content))
	require.NoError(t, err)

	local := savemeta.SaveMeta{Rom: "zelda", Name: "slot1", Ext: "sav", Hash: hash, Size: uint64(len(content))}

	found, err := c.FindSaveMatching(t.Context(), local, nil)
	require.NoError(t, err)
	require.NotNil(t, found.SaveID)
	assert.Equal(t, int64(10), *found.SaveID)
}

func TestFindSaveMatchingSynthesizesWhenNoneMatch(t *testing.T) {
	content := []byte("save-bytes")
	created := time.Now().Add(-60 * 24 * time.Hour)
	srv := newTestServer(t, content, created, created)
	defer srv.Close()
	c := newClient(t, srv)

	local := savemeta.SaveMeta{Rom: "zelda", Name: "other-slot", Ext: "sav", Hash: hashutil.Hash{9}, Size: 999}

	found, err := c.FindSaveMatching(t.Context(), local, nil)
	require.NoError(t, err)
	assert.Nil(t, found.SaveID)
	assert.True(t, found.Meta.IsEmpty())
}

func TestPushSaveSkipsWithinGuardWindow(t *testing.T) {
	srv := newTestServer(t, nil, time.Time{}, time.Time{})
	defer srv.Close()
	c := newClient(t, srv)

	meta := RommSaveMeta{RomID: 1, Meta: savemeta.SaveMeta{
		Name: "slot1", Ext: "sav",
		Created: time.Unix(0, 0).UTC(), Updated: time.Unix(0, 0).UTC(),
	}}

	dir := t.TempDir()
	path := filepath.Join(dir, "slot1.sav")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	err := c.PushSave(t.Context(), path, meta, nil)
	require.NoError(t, err)
}

func TestPushSaveUploadsPastGuardWindow(t *testing.T) {
	srv := newTestServer(t, nil, time.Time{}, time.Time{})
	defer srv.Close()
	c := newClient(t, srv)

	recent := time.Now()
	meta := RommSaveMeta{RomID: 1, Meta: savemeta.SaveMeta{
		Name: "slot1", Ext: "sav",
		Created: recent, Updated: recent,
	}}

	dir := t.TempDir()
	path := filepath.Join(dir, "slot1.sav")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	err := c.PushSave(t.Context(), path, meta, nil)
	require.NoError(t, err)
}

func TestPullSaveRequiresDownloadPath(t *testing.T) {
	srv := newTestServer(t, nil, time.Time{}, time.Time{})
	defer srv.Close()
	c := newClient(t, srv)

	err := c.PullSave(t.Context(), filepath.Join(t.TempDir(), "dest.sav"), RommSaveMeta{})
	require.ErrorIs(t, err, ErrNoDownloadPath)
}

func TestPullSaveDownloadsAtomically(t *testing.T) {
	content := []byte("remote save content")
	srv := newTestServer(t, content, time.Time{}, time.Time{})
	defer srv.Close()
	c := newClient(t, srv)

	downloadPath := "/download/slot1.sav"
	dest := filepath.Join(t.TempDir(), "slot1.sav")

	err := c.PullSave(t.Context(), dest, RommSaveMeta{DownloadPath: &downloadPath})
	require.NoError(t, err)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	assertNoLeftoverTempFiles(t, entries)
}

func assertNoLeftoverTempFiles(t *testing.T, entries []fs.DirEntry) {
	t.Helper()
	for _, e := range entries {
		assert.Equal(t, "slot1.sav", e.Name())
	}
}

func TestJoinURLNormalizesSlash(t *testing.T) {
	assert.Equal(t, "http://x/api/roms", joinURL("http://x/", "/api/roms"))
	assert.Equal(t, "http://x/api/roms", joinURL("http://x", "api/roms"))
}

func TestAtomicDownloadRejectsExistingTempPath(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "slot1.sav")

	// Pin the clock so atomicDownload derives the same temp path.
	fixed := time.Now()
	tempPathNow = func() time.Time { return fixed }
	t.Cleanup(func() { tempPathNow = time.Now })

	tmp := tempPathFor(dest)
	require.NoError(t, os.WriteFile(tmp, []byte("collider"), 0o644))

	err := atomicDownload(bytesReader([]byte("new content")), dest)
	require.Error(t, err)
}

func bytesReader(b []byte) io.Reader {
	return &staticReader{data: b}
}

type staticReader struct {
	data []byte
	pos  int
}

func (r *staticReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}

func TestHashRemoteSaveMatchesKnownDigest(t *testing.T) {
	content := []byte("hash me")
	srv := newTestServer(t, content, time.Time{}, time.Time{})
	defer srv.Close()
	c := newClient(t, srv)

	hash, size, err := c.hashRemoteSave(t.Context(), "/download/slot1.sav")
	require.NoError(t, err)
	assert.Equal(t, hashutil.Hash(md5.Sum(content)), hash)
	assert.Equal(t, uint64(len(content)), size)
}

var _ = fmt.Sprintf // keep fmt import if unused paths change
