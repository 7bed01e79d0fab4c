package search

import (
	"sort"

	"github.com/severstroy/matcat/domain/material"
)

// Fusion deterministically combines vector and SQL result lists for hybrid
// mode. A record found by both sides scores w_v*vector + w_s*sql; a record
// found by one side keeps its score scaled by SingleSideScale. Ties break
// by newer updated_at, then id.
type Fusion struct {
	vectorWeight float64
	sqlWeight    float64
}

// NewFusion creates a Fusion with the default hybrid weights.
func NewFusion() Fusion {
	return Fusion{vectorWeight: HybridVectorWeight, sqlWeight: HybridSQLWeight}
}

// NewFusionWithWeights creates a Fusion with custom weights. Non-positive
// pairs fall back to the defaults.
func NewFusionWithWeights(vector, sql float64) Fusion {
	if vector <= 0 || sql <= 0 {
		return NewFusion()
	}
	return Fusion{vectorWeight: vector, sqlWeight: sql}
}

// VectorWeight returns the vector-side weight.
func (f Fusion) VectorWeight() float64 { return f.vectorWeight }

// SQLWeight returns the sql-side weight.
func (f Fusion) SQLWeight() float64 { return f.sqlWeight }

// Fuse merges the two sides by material id and returns the fused list
// sorted by score descending.
func (f Fusion) Fuse(vector, sql []material.Scored) []material.Scored {
	type entry struct {
		m         material.Material
		vector    float64
		sql       float64
		hasVector bool
		hasSQL    bool
	}

	merged := make(map[string]*entry, len(vector)+len(sql))
	order := make([]string, 0, len(vector)+len(sql))

	for _, s := range vector {
		id := s.Material().ID()
		merged[id] = &entry{m: s.Material(), vector: s.Score(), hasVector: true}
		order = append(order, id)
	}
	for _, s := range sql {
		id := s.Material().ID()
		if e, ok := merged[id]; ok {
			e.sql = s.Score()
			e.hasSQL = true
			// The SQL row is authoritative for relational-only fields; the
			// vector payload is authoritative for the embedding. Keep the
			// vector-side material.
			continue
		}
		merged[id] = &entry{m: s.Material(), sql: s.Score(), hasSQL: true}
		order = append(order, id)
	}

	fused := make([]material.Scored, 0, len(merged))
	for _, id := range order {
		e := merged[id]
		var score float64
		switch {
		case e.hasVector && e.hasSQL:
			score = f.vectorWeight*e.vector + f.sqlWeight*e.sql
		case e.hasVector:
			score = e.vector * SingleSideScale
		default:
			score = e.sql * SingleSideScale
		}
		fused = append(fused, material.NewScored(e.m, score))
	}

	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].Score() != fused[j].Score() {
			return fused[i].Score() > fused[j].Score()
		}
		iu, ju := fused[i].Material().UpdatedAt(), fused[j].Material().UpdatedAt()
		if !iu.Equal(ju) {
			return iu.After(ju)
		}
		return fused[i].Material().ID() < fused[j].Material().ID()
	})
	return fused
}
