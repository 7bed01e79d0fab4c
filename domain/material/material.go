// Package material defines the Material aggregate and its store contracts.
package material

import (
	"time"

	"github.com/severstroy/matcat/domain/fault"
)

// MaxNameLength is the upper bound on material names.
const MaxNameLength = 500

// Material is a catalog record. The embedding is present iff the record is
// indexed in the vector store; without it the record is only reachable via
// SQL or fuzzy search.
type Material struct {
	id          string
	name        string
	description string
	useCategory string
	unit        string
	sku         string
	createdAt   time.Time
	updatedAt   time.Time
	embedding   []float64
}

// New creates a Material with the required fields and stamps timestamps.
func New(id, name, unit string) Material {
	now := time.Now().UTC()
	return Material{
		id:        id,
		name:      name,
		unit:      unit,
		createdAt: now,
		updatedAt: now,
	}
}

// Restore rebuilds a Material from persisted state without touching timestamps.
func Restore(id, name, description, useCategory, unit, sku string, createdAt, updatedAt time.Time, embedding []float64) Material {
	return Material{
		id:          id,
		name:        name,
		description: description,
		useCategory: useCategory,
		unit:        unit,
		sku:         sku,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
		embedding:   copyVector(embedding),
	}
}

// ID returns the opaque identifier.
func (m Material) ID() string { return m.id }

// Name returns the material name.
func (m Material) Name() string { return m.name }

// Description returns the optional description.
func (m Material) Description() string { return m.description }

// UseCategory returns the optional use category.
func (m Material) UseCategory() string { return m.useCategory }

// Unit returns the unit of measure.
func (m Material) Unit() string { return m.unit }

// SKU returns the optional resolved SKU.
func (m Material) SKU() string { return m.sku }

// CreatedAt returns the creation timestamp.
func (m Material) CreatedAt() time.Time { return m.createdAt }

// UpdatedAt returns the last-update timestamp.
func (m Material) UpdatedAt() time.Time { return m.updatedAt }

// Embedding returns a copy of the embedding vector, or nil when the record
// is not vector-indexed.
func (m Material) Embedding() []float64 { return copyVector(m.embedding) }

// HasEmbedding reports whether the record carries an embedding.
func (m Material) HasEmbedding() bool { return len(m.embedding) > 0 }

// WithName returns a copy with the name replaced.
func (m Material) WithName(name string) Material {
	m.name = name
	return m.touch()
}

// WithDescription returns a copy with the description replaced.
func (m Material) WithDescription(description string) Material {
	m.description = description
	return m.touch()
}

// WithUseCategory returns a copy with the use category replaced.
func (m Material) WithUseCategory(category string) Material {
	m.useCategory = category
	return m.touch()
}

// WithUnit returns a copy with the unit replaced.
func (m Material) WithUnit(unit string) Material {
	m.unit = unit
	return m.touch()
}

// WithSKU returns a copy with the SKU replaced.
func (m Material) WithSKU(sku string) Material {
	m.sku = sku
	return m.touch()
}

// WithEmbedding returns a copy with the embedding replaced. The update
// timestamp is untouched: indexing is not a content change.
func (m Material) WithEmbedding(vec []float64) Material {
	m.embedding = copyVector(vec)
	return m
}

// WithTimestamps returns a copy with explicit timestamps (used by mappers).
func (m Material) WithTimestamps(createdAt, updatedAt time.Time) Material {
	m.createdAt = createdAt
	m.updatedAt = updatedAt
	return m
}

func (m Material) touch() Material {
	m.updatedAt = time.Now().UTC()
	return m
}

// Validate checks the structural invariants.
func (m Material) Validate() error {
	fields := map[string]string{}
	if m.id == "" {
		fields["id"] = "required"
	}
	if m.name == "" {
		fields["name"] = "required"
	} else if len([]rune(m.name)) > MaxNameLength {
		fields["name"] = "must be at most 500 characters"
	}
	if m.unit == "" {
		fields["unit"] = "required"
	}
	if len(fields) > 0 {
		return fault.NewValidation("invalid material", fields)
	}
	return nil
}

func copyVector(v []float64) []float64 {
	if v == nil {
		return nil
	}
	cp := make([]float64, len(v))
	copy(cp, v)
	return cp
}
