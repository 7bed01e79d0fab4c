package v1

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/severstroy/matcat/application/service"
	"github.com/severstroy/matcat/domain/fault"
	"github.com/severstroy/matcat/infrastructure/api/middleware"
	"github.com/severstroy/matcat/infrastructure/api/v1/dto"
	"github.com/severstroy/matcat/internal/log"
)

// multipartMemoryLimit bounds how much of an upload stays in memory
// before spooling to disk.
const multipartMemoryLimit = 16 << 20

// PricesRouter handles supplier price file ingestion.
type PricesRouter struct {
	prices *service.PriceService
	logger *log.Logger
}

// NewPricesRouter creates a PricesRouter.
func NewPricesRouter(prices *service.PriceService, logger *log.Logger) *PricesRouter {
	return &PricesRouter{prices: prices, logger: logger}
}

// Routes returns the chi router for price endpoints.
func (rt *PricesRouter) Routes() chi.Router {
	router := chi.NewRouter()

	router.Post("/process", rt.Upload)
	router.Get("/{supplier_id}/latest", rt.Latest)
	router.Delete("/{supplier_id}", rt.Delete)

	return router
}

// Upload handles POST /api/v1/prices/process. The body is multipart
// with a "file" part (CSV or XLSX), a "supplier_id" field, and an
// optional "pricelist_id" field that replaces a previous upload.
func (rt *PricesRouter) Upload(w http.ResponseWriter, req *http.Request) {
	if err := req.ParseMultipartForm(multipartMemoryLimit); err != nil {
		middleware.WriteError(w, req,
			fault.Wrap(fault.Validation, "expected multipart form data", err), rt.logger)
		return
	}

	supplierID := req.FormValue("supplier_id")
	file, header, err := req.FormFile("file")
	if err != nil {
		middleware.WriteError(w, req,
			fault.NewValidation("file part is required", map[string]string{"file": "required"}), rt.logger)
		return
	}
	defer file.Close()

	result, err := rt.prices.Upload(req.Context(), supplierID, req.FormValue("pricelist_id"), header.Filename, file)
	if err != nil {
		middleware.WriteError(w, req, err, rt.logger)
		return
	}

	resp := dto.PriceUploadResponse{
		SupplierID:  result.SupplierID,
		PricelistID: result.PricelistID,
		Accepted:    result.Accepted,
		Rejected:    result.Rejected,
		Reports:     make([]dto.PriceRowReport, len(result.Reports)),
	}
	for i, report := range result.Reports {
		resp.Reports[i] = dto.PriceRowReport{
			Index:    report.Index(),
			Accepted: report.Accepted(),
			Reason:   report.Reason(),
		}
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// Latest handles GET /api/v1/prices/{supplier_id}/latest.
func (rt *PricesRouter) Latest(w http.ResponseWriter, req *http.Request) {
	supplierID := chi.URLParam(req, "supplier_id")

	limit := 100
	if raw := req.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			middleware.WriteError(w, req,
				fault.NewValidation("limit must be a positive integer", map[string]string{"limit": "invalid"}), rt.logger)
			return
		}
		limit = n
	}

	pricelistID, rows, total, err := rt.prices.Latest(req.Context(), supplierID, limit, 0)
	if err != nil {
		middleware.WriteError(w, req, err, rt.logger)
		return
	}

	resp := dto.PriceListResponse{
		SupplierID:  supplierID,
		PricelistID: pricelistID,
		Total:       total,
		Rows:        make([]dto.PriceRowResponse, len(rows)),
	}
	for i, row := range rows {
		resp.Rows[i] = dto.PriceRowResponse{
			MaterialRef: row.MaterialRef(),
			Name:        row.RawName(),
			Unit:        row.Unit(),
			Price:       row.Price(),
			Description: row.Description(),
		}
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// Delete handles DELETE /api/v1/prices/{supplier_id}.
func (rt *PricesRouter) Delete(w http.ResponseWriter, req *http.Request) {
	if err := rt.prices.DeleteSupplier(req.Context(), chi.URLParam(req, "supplier_id")); err != nil {
		middleware.WriteError(w, req, err, rt.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
