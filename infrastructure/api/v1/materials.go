package v1

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/severstroy/matcat/application/service"
	"github.com/severstroy/matcat/domain/material"
	"github.com/severstroy/matcat/infrastructure/api/middleware"
	"github.com/severstroy/matcat/infrastructure/api/v1/dto"
	"github.com/severstroy/matcat/internal/log"
)

// MaterialsRouter handles material CRUD and mounts the enrichment
// endpoints under /process-enhanced so the static segment wins over
// the {id} wildcard.
type MaterialsRouter struct {
	materials  *service.MaterialsService
	enrichment *EnrichmentRouter
	logger     *log.Logger
}

// NewMaterialsRouter creates a MaterialsRouter.
func NewMaterialsRouter(materials *service.MaterialsService, enrichment *EnrichmentRouter, logger *log.Logger) *MaterialsRouter {
	return &MaterialsRouter{materials: materials, enrichment: enrichment, logger: logger}
}

// Routes returns the chi router for material endpoints.
func (rt *MaterialsRouter) Routes() chi.Router {
	router := chi.NewRouter()

	if rt.enrichment != nil {
		router.Mount("/process-enhanced", rt.enrichment.Routes())
	}

	router.Post("/", rt.Create)
	router.Post("/batch", rt.CreateBatch)
	router.Get("/{id}", rt.Get)
	router.Put("/{id}", rt.Update)
	router.Delete("/{id}", rt.Delete)

	return router
}

// Create handles POST /api/v1/materials.
func (rt *MaterialsRouter) Create(w http.ResponseWriter, req *http.Request) {
	var body dto.MaterialRequest
	if err := decodeJSON(req, &body); err != nil {
		middleware.WriteError(w, req, err, rt.logger)
		return
	}

	created, err := rt.materials.Create(req.Context(), materialFromRequest(body))
	if err != nil {
		middleware.WriteError(w, req, err, rt.logger)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, materialToResponse(created))
}

// CreateBatch handles POST /api/v1/materials/batch with per-item
// outcomes.
func (rt *MaterialsRouter) CreateBatch(w http.ResponseWriter, req *http.Request) {
	var body dto.MaterialBatchRequest
	if err := decodeJSON(req, &body); err != nil {
		middleware.WriteError(w, req, err, rt.logger)
		return
	}

	ms := make([]material.Material, len(body.Materials))
	for i, item := range body.Materials {
		ms[i] = materialFromRequest(item)
	}

	outcomes := rt.materials.CreateBatch(req.Context(), ms)

	resp := dto.MaterialBatchResponse{Outcomes: make([]dto.MaterialOutcome, len(outcomes))}
	for i, out := range outcomes {
		item := dto.MaterialOutcome{Index: out.Index, ID: out.ID}
		if out.Err != nil {
			item.Error = out.Err.Error()
			resp.Failed++
		} else {
			resp.Created++
		}
		resp.Outcomes[i] = item
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/materials/{id}.
func (rt *MaterialsRouter) Get(w http.ResponseWriter, req *http.Request) {
	m, err := rt.materials.Get(req.Context(), chi.URLParam(req, "id"))
	if err != nil {
		middleware.WriteError(w, req, err, rt.logger)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, materialToResponse(m))
}

// Update handles PUT /api/v1/materials/{id} as a partial update.
func (rt *MaterialsRouter) Update(w http.ResponseWriter, req *http.Request) {
	var body dto.MaterialPatchRequest
	if err := decodeJSON(req, &body); err != nil {
		middleware.WriteError(w, req, err, rt.logger)
		return
	}

	updated, err := rt.materials.Update(req.Context(), chi.URLParam(req, "id"), service.Patch{
		Name:        body.Name,
		Description: body.Description,
		UseCategory: body.UseCategory,
		Unit:        body.Unit,
		SKU:         body.SKU,
	})
	if err != nil {
		middleware.WriteError(w, req, err, rt.logger)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, materialToResponse(updated))
}

// Delete handles DELETE /api/v1/materials/{id}.
func (rt *MaterialsRouter) Delete(w http.ResponseWriter, req *http.Request) {
	if err := rt.materials.Delete(req.Context(), chi.URLParam(req, "id")); err != nil {
		middleware.WriteError(w, req, err, rt.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func materialFromRequest(body dto.MaterialRequest) material.Material {
	id := body.ID
	if id == "" {
		id = uuid.NewString()
	}
	m := material.New(id, body.Name, body.Unit)
	if body.Description != "" {
		m = m.WithDescription(body.Description)
	}
	if body.UseCategory != "" {
		m = m.WithUseCategory(body.UseCategory)
	}
	if body.SKU != "" {
		m = m.WithSKU(body.SKU)
	}
	if len(body.Embedding) > 0 {
		m = m.WithEmbedding(body.Embedding)
	}
	return m
}

func materialToResponse(m material.Material) dto.MaterialResponse {
	return dto.MaterialResponse{
		ID:          m.ID(),
		Name:        m.Name(),
		Description: m.Description(),
		UseCategory: m.UseCategory(),
		Unit:        m.Unit(),
		SKU:         m.SKU(),
		CreatedAt:   m.CreatedAt(),
		UpdatedAt:   m.UpdatedAt(),
	}
}
