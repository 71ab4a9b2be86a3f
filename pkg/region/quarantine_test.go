// ABOUTME: Tests for region introspection (Stats/Regions) and metadata
// ABOUTME: corruption quarantine, using testify assertions for the
// ABOUTME: property-style checks the pack's corruption tests favor

package region

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreRegionsAndStatsReflectContent(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, Options{})
	require.NoError(t, err)
	defer s.Close()

	idA, err := s.CreateRegionIfNeeded("one", RegionTypeOpaque)
	require.NoError(t, err)
	idB, err := s.CreateRegionIfNeeded("two", RegionTypeVectorData)
	require.NoError(t, err)
	require.NotEqual(t, idA, idB)

	require.NoError(t, s.WriteAllToRegion(idA, []byte("hello")))

	ids := s.Regions()
	require.Len(t, ids, 2)
	require.ElementsMatch(t, []uint64{idA, idB}, ids)

	stats := s.Stats()
	require.Equal(t, 2, stats.RegionCount)
	require.Zero(t, stats.CorruptSlots)
	require.GreaterOrEqual(t, stats.DataFileBytes, uint64(len("hello")))
}

// TestStoreOpenQuarantinesCorruptSlotInsteadOfFailing covers the
// corruption-quarantine behavior: a metadata slot that fails its
// checksum is tombstoned and counted, but every other region still
// opens normally.
func TestStoreOpenQuarantinesCorruptSlotInsteadOfFailing(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, Options{})
	require.NoError(t, err)

	goodID, err := s.CreateRegionIfNeeded("good", RegionTypeOpaque)
	require.NoError(t, err)
	badID, err := s.CreateRegionIfNeeded("bad", RegionTypeOpaque)
	require.NoError(t, err)
	require.NoError(t, s.WriteAllToRegion(goodID, []byte("safe")))
	require.NoError(t, s.Flush())
	require.NoError(t, s.Close())

	metaPath := dir + "/" + metaFileName
	f, err := os.OpenFile(metaPath, os.O_RDWR, 0o644)
	require.NoError(t, err)
	// Flip a byte inside "bad"'s slot body (slot 0 is the header slot,
	// so region ids 1.. occupy slot 1..; corrupt the second data
	// region's slot, leaving the header and "good"'s slot untouched).
	_, err = f.WriteAt([]byte{0xff}, slotOffset(2)+int64(offName)+1)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened, err := Open(dir, Options{})
	require.NoError(t, err)
	defer reopened.Close()

	stats := reopened.Stats()
	require.Equal(t, 1, stats.CorruptSlots)

	got, err := reopened.ReadRegion(goodID)
	require.NoError(t, err)
	require.Equal(t, []byte("safe"), got)

	_, err = reopened.ReadRegion(badID)
	require.ErrorIs(t, err, ErrUnknownRegion)
}
