package dto

// PriceRowReport is one per-row ingest verdict.
type PriceRowReport struct {
	Index    int    `json:"index"`
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// PriceUploadResponse reports an accepted price file.
type PriceUploadResponse struct {
	SupplierID  string           `json:"supplier_id"`
	PricelistID string           `json:"pricelist_id"`
	Accepted    int              `json:"accepted"`
	Rejected    int              `json:"rejected"`
	Reports     []PriceRowReport `json:"reports"`
}

// PriceRowResponse is one stored price row.
type PriceRowResponse struct {
	MaterialRef string  `json:"material_ref,omitempty"`
	Name        string  `json:"name"`
	Unit        string  `json:"unit"`
	Price       float64 `json:"price"`
	Description string  `json:"description,omitempty"`
}

// PriceListResponse is the latest rows of one supplier.
type PriceListResponse struct {
	SupplierID  string             `json:"supplier_id"`
	PricelistID string             `json:"pricelist_id,omitempty"`
	Total       int64              `json:"total"`
	Rows        []PriceRowResponse `json:"rows"`
}
