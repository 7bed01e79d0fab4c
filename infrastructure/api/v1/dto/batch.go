package dto

import "time"

// BatchEnrichItem is one material queued for enrichment.
type BatchEnrichItem struct {
	MaterialID string `json:"material_id" validate:"required,max=128"`
	Name       string `json:"name" validate:"required,max=512"`
	Unit       string `json:"unit,omitempty" validate:"max=64"`
}

// BatchEnrichRequest submits a batch enrichment job.
type BatchEnrichRequest struct {
	Items []BatchEnrichItem `json:"items" validate:"required,min=1,dive"`
}

// BatchRejection is one item refused at submission.
type BatchRejection struct {
	Index      int    `json:"index"`
	MaterialID string `json:"material_id,omitempty"`
	Error      string `json:"error"`
}

// BatchAcceptedResponse acknowledges an accepted job.
type BatchAcceptedResponse struct {
	RequestID           string           `json:"request_id"`
	Total               int              `json:"total"`
	Rejected            []BatchRejection `json:"rejected,omitempty"`
	EstimatedCompletion time.Time        `json:"estimated_completion"`
	ResultsEphemeral    bool             `json:"results_ephemeral"`
}

// BatchStatusResponse reports job progress counters.
type BatchStatusResponse struct {
	RequestID        string    `json:"request_id"`
	Total            int       `json:"total"`
	Pending          int       `json:"pending"`
	Processing       int       `json:"processing"`
	Completed        int       `json:"completed"`
	Failed           int       `json:"failed"`
	Done             bool      `json:"done"`
	CreatedAt        time.Time `json:"created_at"`
	ResultsEphemeral bool      `json:"results_ephemeral"`
}

// BatchItemResult is one per-item enrichment outcome.
type BatchItemResult struct {
	MaterialID    string     `json:"material_id"`
	Name          string     `json:"name"`
	Status        string     `json:"status"`
	SKU           string     `json:"sku,omitempty"`
	Similarity    float64    `json:"similarity,omitempty"`
	Error         string     `json:"error,omitempty"`
	Attempts      int        `json:"attempts,omitempty"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
}

// BatchResultsResponse lists per-item outcomes of a job.
type BatchResultsResponse struct {
	RequestID        string            `json:"request_id"`
	Done             bool              `json:"done"`
	Items            []BatchItemResult `json:"items"`
	ResultsEphemeral bool              `json:"results_ephemeral"`
}
