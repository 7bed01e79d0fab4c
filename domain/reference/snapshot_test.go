package reference

import "testing"

func testEntries() []Entry {
	return []Entry{
		NewEntry("шт", []string{"штука", "штук", "шт."}, []float64{1, 0, 0}),
		NewEntry("кг", []string{"килограмм", "кило"}, []float64{0, 1, 0}),
		NewEntry("м3", []string{"куб", "кубометр", "м³"}, []float64{0, 0, 1}),
	}
}

func TestLookupExact(t *testing.T) {
	s := NewSnapshot(testEntries())

	tests := []struct {
		input string
		want  string
		found bool
	}{
		{"шт", "шт", true},
		{"ШТУКА", "шт", true},
		{"  штук  ", "шт", true},
		{"КилоГрамм", "кг", true},
		{"литр", "", false},
	}
	for _, tt := range tests {
		e, ok := s.LookupExact(tt.input)
		if ok != tt.found {
			t.Fatalf("LookupExact(%q) found = %v", tt.input, ok)
		}
		if ok && e.Canonical() != tt.want {
			t.Fatalf("LookupExact(%q) = %q, want %q", tt.input, e.Canonical(), tt.want)
		}
	}
}

func TestLookupNearest(t *testing.T) {
	s := NewSnapshot(testEntries())
	matches := s.LookupNearest([]float64{0.9, 0.1, 0}, 2)
	if len(matches) != 2 {
		t.Fatalf("len = %d", len(matches))
	}
	if matches[0].Entry().Canonical() != "шт" {
		t.Fatalf("nearest = %q", matches[0].Entry().Canonical())
	}
	if matches[0].Score() <= matches[1].Score() {
		t.Fatal("matches must be ordered by similarity")
	}
}

func TestLookupFuzzy(t *testing.T) {
	s := NewSnapshot(testEntries())
	matches := s.LookupFuzzy("килограм", 1) // missing final м
	if len(matches) != 1 || matches[0].Entry().Canonical() != "кг" {
		t.Fatalf("fuzzy match = %+v", matches)
	}
	if matches[0].Score() < 0.75 {
		t.Fatalf("fuzzy score = %f", matches[0].Score())
	}
}

func TestAliasNormalizationAndDedup(t *testing.T) {
	e := NewEntry("белый", []string{"Белый", " БЕЛЫЙ ", "white"}, nil)
	aliases := e.Aliases()
	// canonical + white, case-folded duplicates collapsed
	if len(aliases) != 2 {
		t.Fatalf("aliases = %v", aliases)
	}
	if !e.MatchesAlias("WHITE") {
		t.Fatal("alias matching must be case-insensitive")
	}
}

func TestSnapshotEntriesDefensive(t *testing.T) {
	s := NewSnapshot(testEntries())
	entries := s.Entries()
	entries[0] = Entry{}
	if s.Entries()[0].Canonical() != "шт" {
		t.Fatal("Entries() must return a copy")
	}
}
