package associator

import (
	"errors"
	"fmt"
	"sort"
)

// RegistryIndex maps every normalized identifier variant to the systems that
// claim it. Built once per Associator construction, read-only afterwards, and
// safe to share across concurrent FindMatch calls.
type RegistryIndex struct {
	owners map[string][]*System
	// unambiguousKeys holds every key with exactly one owner, sorted
	// lexicographically so fuzzy tie-breaks are deterministic regardless
	// of the original system ordering.
	unambiguousKeys []string
}

// BuildRegistryIndex collects {system id} U hardware aliases U DL numbers for
// every system, normalizes each, drops UnknownID, and records every owner per
// normalized key. A key claimed by more than one system is ambiguous and is
// excluded from deterministic matching.
func BuildRegistryIndex(systems []System) (*RegistryIndex, error) {
	if systems == nil {
		return nil, errors.New("associator: nil system list")
	}

	idx := &RegistryIndex{owners: make(map[string][]*System)}
	for i := range systems {
		system := &systems[i]
		if system.ID == "" {
			return nil, fmt.Errorf("associator: system %d has empty id", i)
		}

		variants := make([]string, 0, 1+len(system.AssociatedHardwareIDs)+len(system.AssociatedDLs))
		variants = append(variants, system.ID)
		variants = append(variants, system.AssociatedHardwareIDs...)
		variants = append(variants, system.AssociatedDLs...)

		claimed := make(map[string]struct{}, len(variants))
		for _, raw := range variants {
			key := NormalizeHardwareID(raw)
			if key == UnknownID {
				continue
			}
			// Duplicate variants within one system collapse to a
			// single claim.
			if _, ok := claimed[key]; ok {
				continue
			}
			claimed[key] = struct{}{}
			idx.owners[key] = append(idx.owners[key], system)
		}
	}

	for key, owners := range idx.owners {
		if len(owners) == 1 {
			idx.unambiguousKeys = append(idx.unambiguousKeys, key)
		}
	}
	sort.Strings(idx.unambiguousKeys)
	return idx, nil
}

// Lookup returns every system claiming the normalized key.
func (idx *RegistryIndex) Lookup(key string) []*System {
	if idx == nil {
		return nil
	}
	return idx.owners[key]
}

// UnambiguousKeys returns the sorted keys owned by exactly one system.
func (idx *RegistryIndex) UnambiguousKeys() []string {
	if idx == nil {
		return nil
	}
	return idx.unambiguousKeys
}

// OwnerOf returns the single owner of an unambiguous key.
func (idx *RegistryIndex) OwnerOf(key string) (*System, bool) {
	owners := idx.Lookup(key)
	if len(owners) != 1 {
		return nil, false
	}
	return owners[0], true
}

// Len returns the number of distinct normalized keys.
func (idx *RegistryIndex) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.owners)
}
