// Package dto defines the wire types of the v1 API.
package dto

import "time"

// MaterialRequest is the create/update payload for one material.
type MaterialRequest struct {
	ID          string    `json:"id,omitempty"`
	Name        string    `json:"name" validate:"required,max=512"`
	Description string    `json:"description,omitempty" validate:"max=4096"`
	UseCategory string    `json:"use_category,omitempty" validate:"max=256"`
	Unit        string    `json:"unit" validate:"required,max=64"`
	SKU         string    `json:"sku,omitempty" validate:"max=128"`
	Embedding   []float64 `json:"embedding,omitempty"`
}

// MaterialPatchRequest carries a partial update; absent fields stay
// untouched.
type MaterialPatchRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=512"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=4096"`
	UseCategory *string `json:"use_category,omitempty" validate:"omitempty,max=256"`
	Unit        *string `json:"unit,omitempty" validate:"omitempty,min=1,max=64"`
	SKU         *string `json:"sku,omitempty" validate:"omitempty,max=128"`
}

// MaterialResponse is one material on the wire. Embeddings never leave
// the service.
type MaterialResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	UseCategory string    `json:"use_category,omitempty"`
	Unit        string    `json:"unit"`
	SKU         string    `json:"sku,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MaterialBatchRequest creates several materials in one call.
type MaterialBatchRequest struct {
	Materials []MaterialRequest `json:"materials" validate:"required,min=1,max=1000,dive"`
}

// MaterialOutcome is the per-item result of a batch create.
type MaterialOutcome struct {
	Index int    `json:"index"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

// MaterialBatchResponse reports per-item outcomes of a batch create.
type MaterialBatchResponse struct {
	Created  int               `json:"created"`
	Failed   int               `json:"failed"`
	Outcomes []MaterialOutcome `json:"outcomes"`
}
