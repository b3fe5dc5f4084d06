package catalog

import "testing"

func sampleEntries() []Entry {
	return []Entry{
		{Index: 0, DOMPathHash: "a", PrimaryLabel: "Search", StateHint: ""},
		{Index: 1, DOMPathHash: "b", PrimaryLabel: "Buy", StateHint: "disabled"},
	}
}

func TestCatalogIndexInvariant(t *testing.T) {
	entries := sampleEntries()
	for i, e := range entries {
		if e.Index != i {
			t.Fatalf("entries[%d].Index = %d, want %d", i, e.Index, i)
		}
	}
}

func TestComputeVersionStableForSameFingerprint(t *testing.T) {
	v1 := ComputeVersion("https://example.com", sampleEntries())
	v2 := ComputeVersion("https://example.com", sampleEntries())
	if v1 != v2 {
		t.Fatalf("ComputeVersion not stable: %q != %q", v1, v2)
	}
}

func TestComputeVersionOrderIndependent(t *testing.T) {
	entries := sampleEntries()
	reversed := []Entry{entries[1], entries[0]}
	if ComputeVersion("https://example.com", entries) != ComputeVersion("https://example.com", reversed) {
		t.Fatal("ComputeVersion should be independent of traversal order (entries are sorted before hashing)")
	}
}

func TestComputeVersionChangesWhenLabelChanges(t *testing.T) {
	entries := sampleEntries()
	v1 := ComputeVersion("https://example.com", entries)
	entries[1].PrimaryLabel = "Buy Now"
	v2 := ComputeVersion("https://example.com", entries)
	if v1 == v2 {
		t.Fatal("ComputeVersion should change when a label changes")
	}
}

func TestRebindFindsConfidentMatch(t *testing.T) {
	old := Entry{Index: 5, DOMPathHash: "div>button:5", PrimaryLabel: "Submit order", NearestTexts: []string{"Total: $20"}}
	current := &Catalog{Entries: []Entry{
		{Index: 0, DOMPathHash: "div>button:5", PrimaryLabel: "Submit order", NearestTexts: []string{"Total: $20"}},
		{Index: 6, DOMPathHash: "div>span:1", PrimaryLabel: "Cancel"},
	}}
	result, err := Rebind(old, current)
	if err != nil {
		t.Fatalf("Rebind: %v", err)
	}
	if result.NewIndex != 0 {
		t.Fatalf("NewIndex = %d, want 0", result.NewIndex)
	}
}

func TestRebindFailsBelowThreshold(t *testing.T) {
	old := Entry{Index: 5, DOMPathHash: "div>button:5", PrimaryLabel: "Submit order"}
	current := &Catalog{Entries: []Entry{
		{Index: 0, DOMPathHash: "div>span:9", PrimaryLabel: "Completely different"},
	}}
	if _, err := Rebind(old, current); err == nil {
		t.Fatal("expected CatalogOutdated error for a low-confidence rebind")
	}
}

func TestCacheInvalidatesOnSignatureChange(t *testing.T) {
	cache := NewCache()
	c1 := &Catalog{CatalogVersion: "v1"}
	cache.UpdateFromSignature("v1", c1)
	got, ok := cache.Get()
	if !ok || got != c1 {
		t.Fatal("expected cached catalog v1")
	}

	// Same signature: cache should not be replaced (still returns c1).
	c1Replacement := &Catalog{CatalogVersion: "v1"}
	cache.UpdateFromSignature("v1", c1Replacement)
	got2, _ := cache.Get()
	if got2 != c1 {
		t.Fatal("cache should not update when signature is unchanged")
	}

	c2 := &Catalog{CatalogVersion: "v2"}
	cache.UpdateFromSignature("v2", c2)
	got3, _ := cache.Get()
	if got3 != c2 {
		t.Fatal("cache should update when signature changes")
	}
}
