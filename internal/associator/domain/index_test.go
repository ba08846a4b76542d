package associator

import "testing"

func TestBuildRegistryIndex(t *testing.T) {
	systems := []System{
		{
			ID:                    "sysA",
			AssociatedHardwareIDs: []string{"ABC-12345", "abc 12345"},
			AssociatedDLs:         []string{"DL-900001"},
		},
		{
			ID:                    "sysB",
			AssociatedHardwareIDs: []string{"XYZ-77777"},
		},
	}

	idx, err := BuildRegistryIndex(systems)
	if err != nil {
		t.Fatalf("build index: %v", err)
	}

	// Duplicate alias variants of one system collapse into one claim.
	owners := idx.Lookup("ABC-12345")
	if len(owners) != 1 || owners[0].ID != "sysA" {
		t.Fatalf("expected single owner sysA for ABC-12345, got %v", ownerIDs(owners))
	}
	if owners := idx.Lookup("DL-900001"); len(owners) != 1 {
		t.Fatalf("expected DL alias indexed, got %v", ownerIDs(owners))
	}
	if owners := idx.Lookup(UnknownID); owners != nil {
		t.Fatalf("UnknownID must never be indexed")
	}
}

func TestRegistryIndexAmbiguity(t *testing.T) {
	shared := "XYZ-99999"
	systems := []System{
		{ID: "sysA", AssociatedHardwareIDs: []string{shared}},
		{ID: "sysB", AssociatedHardwareIDs: []string{shared}},
	}
	idx, err := BuildRegistryIndex(systems)
	if err != nil {
		t.Fatalf("build index: %v", err)
	}

	owners := idx.Lookup(shared)
	if len(owners) != 2 {
		t.Fatalf("expected two owners for shared id, got %d", len(owners))
	}
	if _, ok := idx.OwnerOf(shared); ok {
		t.Fatalf("ambiguous key must have no single owner")
	}
	for _, key := range idx.UnambiguousKeys() {
		if key == shared {
			t.Fatalf("ambiguous key %s leaked into unambiguous set", shared)
		}
	}
}

func TestRegistryIndexUnambiguousKeysSorted(t *testing.T) {
	systems := []System{
		{ID: "sysB", AssociatedHardwareIDs: []string{"ZZZ-55555"}},
		{ID: "sysA", AssociatedHardwareIDs: []string{"AAA-55555"}},
	}
	idx, err := BuildRegistryIndex(systems)
	if err != nil {
		t.Fatalf("build index: %v", err)
	}
	keys := idx.UnambiguousKeys()
	for i := 1; i < len(keys); i++ {
		if keys[i-1] > keys[i] {
			t.Fatalf("keys not sorted: %v", keys)
		}
	}
}

func TestBuildRegistryIndexConstructionErrors(t *testing.T) {
	if _, err := BuildRegistryIndex(nil); err == nil {
		t.Fatalf("nil system list must fail construction")
	}
	if _, err := BuildRegistryIndex([]System{{ID: ""}}); err == nil {
		t.Fatalf("system without id must fail construction")
	}
	idx, err := BuildRegistryIndex([]System{})
	if err != nil {
		t.Fatalf("empty registry is valid: %v", err)
	}
	if idx.Len() != 0 {
		t.Fatalf("empty registry should have no keys")
	}
}
