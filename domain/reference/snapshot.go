package reference

import (
	"sort"

	"github.com/severstroy/matcat/domain/search"
)

// Match is one lookup result with its similarity measure.
type Match struct {
	entry Entry
	score float64
}

// NewMatch creates a Match.
func NewMatch(entry Entry, score float64) Match {
	return Match{entry: entry, score: score}
}

// Entry returns the matched entry.
func (m Match) Entry() Entry { return m.entry }

// Score returns the similarity (raw cosine for nearest, Levenshtein
// similarity for fuzzy).
func (m Match) Score() float64 { return m.score }

// Snapshot is an immutable view of one reference collection. Readers hold
// a snapshot obtained from an atomic pointer and never lock; writers build
// a replacement snapshot and swap it in.
type Snapshot struct {
	entries []Entry
	byAlias map[string]int
}

// NewSnapshot builds a Snapshot from entries. Later duplicate aliases are
// dropped (aliases are disjoint by invariant; seeding enforces it here).
func NewSnapshot(entries []Entry) *Snapshot {
	s := &Snapshot{
		entries: append([]Entry(nil), entries...),
		byAlias: make(map[string]int),
	}
	for i, e := range s.entries {
		for _, a := range e.Aliases() {
			if _, taken := s.byAlias[a]; !taken {
				s.byAlias[a] = i
			}
		}
	}
	return s
}

// Entries returns all entries.
func (s *Snapshot) Entries() []Entry { return append([]Entry(nil), s.entries...) }

// Len returns the number of entries.
func (s *Snapshot) Len() int { return len(s.entries) }

// LookupExact finds the entry owning the given alias after key
// normalization.
func (s *Snapshot) LookupExact(name string) (Entry, bool) {
	i, ok := s.byAlias[NormalizeKey(name)]
	if !ok {
		return Entry{}, false
	}
	return s.entries[i], true
}

// LookupNearest returns the top-k entries by raw cosine similarity of the
// query vector against canonical embeddings.
func (s *Snapshot) LookupNearest(vec []float64, k int) []Match {
	matches := make([]Match, 0, len(s.entries))
	for _, e := range s.entries {
		if !e.HasEmbedding() {
			continue
		}
		matches = append(matches, NewMatch(e, search.Cosine(vec, e.Embedding())))
	}
	return topK(matches, k)
}

// LookupFuzzy returns the top-k entries by Levenshtein similarity of the
// normalized input against canonical names.
func (s *Snapshot) LookupFuzzy(name string, k int) []Match {
	n := NormalizeKey(name)
	matches := make([]Match, 0, len(s.entries))
	for _, e := range s.entries {
		best := levenshteinSim(n, NormalizeKey(e.Canonical()))
		for _, a := range e.Aliases() {
			if sim := levenshteinSim(n, a); sim > best {
				best = sim
			}
		}
		matches = append(matches, NewMatch(e, best))
	}
	return topK(matches, k)
}

func topK(matches []Match, k int) []Match {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})
	if k > 0 && k < len(matches) {
		matches = matches[:k]
	}
	return matches
}

// levenshteinSim is 1 - distance/max(len) over runes.
func levenshteinSim(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 1
	}
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			m := curr[j-1] + 1
			if prev[j]+1 < m {
				m = prev[j] + 1
			}
			if prev[j-1]+cost < m {
				m = prev[j-1] + cost
			}
			curr[j] = m
		}
		prev, curr = curr, prev
	}
	return 1 - float64(prev[len(rb)])/float64(longest)
}
