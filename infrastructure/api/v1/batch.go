package v1

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/severstroy/matcat/application/service"
	"github.com/severstroy/matcat/infrastructure/api/middleware"
	"github.com/severstroy/matcat/infrastructure/api/v1/dto"
	"github.com/severstroy/matcat/internal/log"
)

// EnrichmentRouter handles the accept-then-process batch endpoints.
type EnrichmentRouter struct {
	batch  *service.BatchService
	logger *log.Logger
}

// NewEnrichmentRouter creates an EnrichmentRouter.
func NewEnrichmentRouter(batch *service.BatchService, logger *log.Logger) *EnrichmentRouter {
	return &EnrichmentRouter{batch: batch, logger: logger}
}

// Routes returns the chi router for enrichment endpoints.
func (rt *EnrichmentRouter) Routes() chi.Router {
	router := chi.NewRouter()

	router.Post("/", rt.Submit)
	router.Get("/status/{request_id}", rt.Status)
	router.Get("/results/{request_id}", rt.Results)

	return router
}

// Submit handles POST /api/v1/materials/process-enhanced. The request
// is accepted or rejected as a whole; processing happens on the worker
// pool.
func (rt *EnrichmentRouter) Submit(w http.ResponseWriter, req *http.Request) {
	var body dto.BatchEnrichRequest
	if err := decodeJSON(req, &body); err != nil {
		middleware.WriteError(w, req, err, rt.logger)
		return
	}

	items := make([]service.BatchItem, len(body.Items))
	for i, item := range body.Items {
		items[i] = service.BatchItem{
			MaterialID: item.MaterialID,
			Name:       item.Name,
			Unit:       item.Unit,
		}
	}

	accepted, err := rt.batch.Submit(req.Context(), items)
	if err != nil {
		middleware.WriteError(w, req, err, rt.logger)
		return
	}

	resp := dto.BatchAcceptedResponse{
		RequestID:           accepted.RequestID,
		Total:               accepted.Total,
		EstimatedCompletion: accepted.EstimatedCompletion,
		ResultsEphemeral:    accepted.ResultsEphemeral,
	}
	for _, rej := range accepted.Rejected {
		resp.Rejected = append(resp.Rejected, dto.BatchRejection{
			Index:      rej.Index,
			MaterialID: rej.MaterialID,
			Error:      rej.Err.Error(),
		})
	}
	middleware.WriteJSON(w, http.StatusAccepted, resp)
}

// Status handles GET /api/v1/materials/process-enhanced/status/{request_id}.
func (rt *EnrichmentRouter) Status(w http.ResponseWriter, req *http.Request) {
	status, err := rt.batch.Status(req.Context(), chi.URLParam(req, "request_id"))
	if err != nil {
		middleware.WriteError(w, req, err, rt.logger)
		return
	}

	j := status.Job
	middleware.WriteJSON(w, http.StatusOK, dto.BatchStatusResponse{
		RequestID:        j.RequestID(),
		Total:            j.Total(),
		Pending:          j.Pending(),
		Processing:       j.Processing(),
		Completed:        j.Completed(),
		Failed:           j.Failed(),
		Done:             j.Done(),
		CreatedAt:        j.CreatedAt(),
		ResultsEphemeral: status.ResultsEphemeral,
	})
}

// Results handles GET /api/v1/materials/process-enhanced/results/{request_id}.
func (rt *EnrichmentRouter) Results(w http.ResponseWriter, req *http.Request) {
	status, err := rt.batch.Status(req.Context(), chi.URLParam(req, "request_id"))
	if err != nil {
		middleware.WriteError(w, req, err, rt.logger)
		return
	}

	resp := dto.BatchResultsResponse{
		RequestID:        status.Job.RequestID(),
		Done:             status.Job.Done(),
		Items:            make([]dto.BatchItemResult, len(status.Items)),
		ResultsEphemeral: status.ResultsEphemeral,
	}
	for i, item := range status.Items {
		out := dto.BatchItemResult{
			MaterialID: item.MaterialID(),
			Name:       item.Name(),
			Status:     string(item.Status()),
			SKU:        item.SKU(),
			Similarity: item.Similarity(),
			Error:      item.ErrMessage(),
			Attempts:   item.Attempts(),
		}
		if at := item.LastAttemptAt(); !at.IsZero() {
			out.LastAttemptAt = &at
		}
		resp.Items[i] = out
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}
