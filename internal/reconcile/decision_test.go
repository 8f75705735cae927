package reconcile

import (
	"testing"
	"time"

	"github.com/romm-sync/saveport/internal/hashutil"
	"github.com/romm-sync/saveport/internal/savemeta"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	hashA = hashutil.Hash{0xA}
	hashB = hashutil.Hash{0xB}
)

func meta(hash hashutil.Hash, size uint64, ts time.Time) savemeta.SaveMeta {
	return savemeta.SaveMeta{Rom: "zelda", Name: "slot1", Size: size, Hash: hash, Created: ts, Updated: ts}
}

func TestDecideDeviceEmptyPullsToDevice(t *testing.T) {
	device := savemeta.NewEmpty("zelda", "slot1", "sav", nil)
	remote := meta(hashA, 10, time.Now())
	stored := savemeta.NewEmpty("zelda", "slot1", "sav", nil)

	d, err := Decide(device, remote, stored)
	require.NoError(t, err)
	assert.Equal(t, PullToDevice, d)
	assert.Equal(t, TargetDevice, d.Target())
}

func TestDecideRemoteEmptyPushesToRemote(t *testing.T) {
	device := meta(hashA, 10, time.Now())
	remote := savemeta.NewEmpty("zelda", "slot1", "sav", nil)
	stored := savemeta.NewEmpty("zelda", "slot1", "sav", nil)

	d, err := Decide(device, remote, stored)
	require.NoError(t, err)
	assert.Equal(t, PushToRemote, d)
	assert.Equal(t, TargetRemote, d.Target())
}

func TestDecideAllAgreeIsNoop(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	same := meta(hashA, 10, ts)

	d, err := Decide(same, same, same)
	require.NoError(t, err)
	assert.Equal(t, Noop, d)
	assert.False(t, d.NeedsDBResync())
}

func TestDecideDeviceAndRemoteAgreeButStoredStaleIsResyncDb(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	agreed := meta(hashA, 10, ts)
	stale := meta(hashB, 10, ts.Add(-time.Hour))

	d, err := Decide(agreed, agreed, stale)
	require.NoError(t, err)
	assert.Equal(t, ResyncDb, d)
	assert.True(t, d.NeedsDBResync())
	assert.Equal(t, TargetNone, d.Target())
}

func TestDecideDeviceMatchesStoredAndOlderPullsToDevice(t *testing.T) {
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	stored := meta(hashA, 10, older)
	device := meta(hashA, 10, older)
	remote := meta(hashB, 20, newer)

	d, err := Decide(device, remote, stored)
	require.NoError(t, err)
	assert.Equal(t, PullToDevice, d)
}

func TestDecideDeviceMatchesStoredButNewerThanRemoteViolatesInvariant(t *testing.T) {
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	stored := meta(hashA, 10, newer)
	device := meta(hashA, 10, newer)
	remote := meta(hashB, 20, older)

	_, err := Decide(device, remote, stored)
	require.ErrorIs(t, err, ErrTimestampInvariant)
}

func TestDecideRemoteMatchesStoredAndDeviceNewerPushesToRemote(t *testing.T) {
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	stored := meta(hashA, 10, older)
	remote := meta(hashA, 10, older)
	device := meta(hashB, 20, newer)

	d, err := Decide(device, remote, stored)
	require.NoError(t, err)
	assert.Equal(t, PushToRemote, d)
}

func TestDecideRemoteMatchesStoredButDeviceNotNewerViolatesInvariant(t *testing.T) {
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	stored := meta(hashA, 10, older)
	remote := meta(hashA, 10, older)
	device := meta(hashB, 20, older)

	_, err := Decide(device, remote, stored)
	require.ErrorIs(t, err, ErrTimestampInvariant)
}

func TestDecideThreeWayConflict(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	t3 := t2.Add(time.Hour)
	device := meta(hashA, 10, t1)
	remote := meta(hashB, 20, t2)
	stored := meta(hashutil.Hash{0xC}, 30, t3)

	_, err := Decide(device, remote, stored)
	require.ErrorIs(t, err, ErrConflict)
}

func TestDecideIsDeterministic(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	device := meta(hashA, 10, ts)
	remote := meta(hashB, 20, ts.Add(time.Hour))
	stored := meta(hashA, 10, ts)

	d1, err1 := Decide(device, remote, stored)
	d2, err2 := Decide(device, remote, stored)
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, d1, d2)
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "noop", Noop.String())
	assert.Equal(t, "push_to_remote", PushToRemote.String())
	assert.Equal(t, "pull_to_device", PullToDevice.String())
	assert.Equal(t, "resync_db", ResyncDb.String())
}
