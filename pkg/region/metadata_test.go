// ABOUTME: Tests for the metadata store's slot encode/decode, checksum
// ABOUTME: verification, and corrupt-slot tolerance on load

package region

import (
	"os"
	"testing"
)

func openTempMetaFile(t *testing.T) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "region-meta-*")
	if err != nil {
		t.Fatalf("failed to create temp meta file: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestMetadataStoreInitAndAssignSlot(t *testing.T) {
	f := openTempMetaFile(t)
	m := newMetadataStore()
	if err := m.init(f, 1700000000); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	id, slot := m.assignSlot("vectors/scores")
	if id != 1 {
		t.Fatalf("expected first id to be 1, got %d", id)
	}
	if slot != 1 {
		t.Fatalf("expected first region to take slot 1 (after header), got %d", slot)
	}

	id2, _ := m.assignSlot("vectors/labels")
	if id2 != 2 {
		t.Fatalf("expected second id to be 2, got %d", id2)
	}
}

func TestMetadataStoreRoundTripsThroughFlushAndLoad(t *testing.T) {
	f := openTempMetaFile(t)
	m := newMetadataStore()
	if err := m.init(f, 1700000000); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	id, _ := m.assignSlot("region-a")
	m.update(id, PageSize, 100, PageSize, RegionTypeVectorData, 3)
	if err := m.flush(f); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	loaded := newMetadataStore()
	corrupt, err := loaded.load(f)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(corrupt) != 0 {
		t.Fatalf("expected no corrupt slots, got %v", corrupt)
	}

	slotIdx, ok := loaded.idToSlot[id]
	if !ok {
		t.Fatalf("expected id %d to be present after reload", id)
	}
	rec := loaded.slots[slotIdx]
	if rec.name != "region-a" || rec.offset != PageSize || rec.length != 100 || rec.reserve != PageSize {
		t.Fatalf("unexpected record after reload: %+v", rec)
	}
	if rec.regionType != RegionTypeVectorData || rec.userVer != 3 {
		t.Fatalf("unexpected type/version after reload: %+v", rec)
	}
	if loaded.nextID != m.nextID {
		t.Fatalf("expected nextID %d to persist, got %d", m.nextID, loaded.nextID)
	}
}

func TestMetadataStoreTombstoneThenReuse(t *testing.T) {
	f := openTempMetaFile(t)
	m := newMetadataStore()
	if err := m.init(f, 1700000000); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	id, slot := m.assignSlot("to-delete")
	m.update(id, 0, 10, PageSize, RegionTypeOpaque, 0)
	m.tombstone(id)

	if _, ok := m.idToSlot[id]; ok {
		t.Fatal("expected tombstoned id to be removed from the index")
	}
	if _, ok := m.nameToID["to-delete"]; ok {
		t.Fatal("expected tombstoned name to be removed from the index")
	}

	id2, slot2 := m.assignSlot("reused")
	if slot2 != slot {
		t.Fatalf("expected the tombstoned slot %d to be reused, got %d", slot, slot2)
	}
	if id2 == id {
		t.Fatal("expected a fresh id even when reusing a slot")
	}
}

func TestMetadataStoreDetectsCorruptSlot(t *testing.T) {
	f := openTempMetaFile(t)
	m := newMetadataStore()
	if err := m.init(f, 1700000000); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	id, _ := m.assignSlot("clean")
	m.update(id, 0, 10, PageSize, RegionTypeOpaque, 0)
	if err := m.flush(f); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	// Corrupt slot 1's payload in place without touching its checksum.
	if _, err := f.WriteAt([]byte{0xFF, 0xFF, 0xFF}, slotOffset(1)+int64(offOffset)); err != nil {
		t.Fatalf("failed to corrupt slot: %v", err)
	}

	loaded := newMetadataStore()
	corrupt, err := loaded.load(f)
	if err != nil {
		t.Fatalf("load should tolerate a corrupt region slot, got error: %v", err)
	}
	if len(corrupt) != 1 || corrupt[0] != 1 {
		t.Fatalf("expected slot 1 reported corrupt, got %v", corrupt)
	}
	if _, ok := loaded.idToSlot[id]; ok {
		t.Fatal("expected the corrupt region's id to be absent, not half-loaded")
	}
}
