// Package handlers provides the HTTP handlers and middleware for the
// Engram REST API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/scrypster/engram/internal/engine"
	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// maxListLimit caps list responses to prevent resource exhaustion.
const maxListLimit = 1000

// APIHandlers contains the HTTP handlers for the REST API.
type APIHandlers struct {
	engine  *engine.Engine
	version string
	log     *zap.SugaredLogger
}

// NewAPIHandlers creates a new APIHandlers instance. version is reported
// by the health endpoint.
func NewAPIHandlers(eng *engine.Engine, version string, log *zap.SugaredLogger) *APIHandlers {
	return &APIHandlers{engine: eng, version: version, log: log}
}

// Ingest handles POST /api/ingest - absorb one note into the graph.
func (h *APIHandlers) Ingest(w http.ResponseWriter, r *http.Request) {
	var req engine.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.SourceType == "" {
		req.SourceType = "api"
	}

	result, err := h.engine.Ingest(r.Context(), req)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidInput) {
			respondError(w, http.StatusBadRequest, "invalid note", err)
			return
		}
		h.log.Errorw("ingest failed", "owner", req.OwnerID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to ingest note", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// ListEntities handles GET /api/entities - list entities with filtering.
// Query parameters: owner (required), status, kind, q (name substring),
// min_mentions, limit.
func (h *APIHandlers) ListEntities(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r)
	if owner == "" {
		respondError(w, http.StatusBadRequest, "owner is required", nil)
		return
	}

	limit := parseInt(r.URL.Query().Get("limit"), 100)
	if limit > maxListLimit {
		limit = maxListLimit
	}

	status := r.URL.Query().Get("status")
	if status == "" {
		status = string(types.StatusActive)
	}
	if status == "any" {
		status = ""
	}

	entities, err := h.engine.Entities(r.Context(), storage.EntityFilter{
		OwnerID:     owner,
		Status:      types.EntityStatus(status),
		Kind:        types.EntityKind(r.URL.Query().Get("kind")),
		NameQuery:   r.URL.Query().Get("q"),
		MinMentions: parseInt(r.URL.Query().Get("min_mentions"), 0),
		Limit:       limit,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list entities", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"entities": entities,
		"count":    len(entities),
	})
}

// EntityFacts handles GET /api/entities/{id}/facts.
func (h *APIHandlers) EntityFacts(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r)
	if owner == "" {
		respondError(w, http.StatusBadRequest, "owner is required", nil)
		return
	}

	facts, err := h.engine.EntityFacts(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "entity not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load facts", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"facts": facts,
		"count": len(facts),
	})
}

// EntityChain handles GET /api/entities/{id}/chain - the full
// supersession history for an entity, oldest first.
func (h *APIHandlers) EntityChain(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r)
	if owner == "" {
		respondError(w, http.StatusBadRequest, "owner is required", nil)
		return
	}

	chain, err := h.engine.EntityChain(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "entity not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load chain", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"chain": chain,
		"count": len(chain),
	})
}

type entityActionRequest struct {
	OwnerID string `json:"owner_id"`
}

// DismissEntity handles POST /api/entities/{id}/dismiss.
func (h *APIHandlers) DismissEntity(w http.ResponseWriter, r *http.Request) {
	h.entityAction(w, r, h.engine.Dismiss)
}

// ConfirmEntity handles POST /api/entities/{id}/confirm.
func (h *APIHandlers) ConfirmEntity(w http.ResponseWriter, r *http.Request) {
	h.entityAction(w, r, h.engine.Confirm)
}

func (h *APIHandlers) entityAction(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, ownerID, entityID string) error) {
	var req entityActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.OwnerID == "" {
		respondError(w, http.StatusBadRequest, "owner_id is required", nil)
		return
	}

	if err := action(r.Context(), req.OwnerID, chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "entity not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "action failed", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListRelationships handles GET /api/relationships.
func (h *APIHandlers) ListRelationships(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r)
	if owner == "" {
		respondError(w, http.StatusBadRequest, "owner is required", nil)
		return
	}

	rels, err := h.engine.Relationships(r.Context(), owner)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list relationships", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"relationships": rels,
		"count":         len(rels),
	})
}

// ListInferences handles GET /api/inferences.
func (h *APIHandlers) ListInferences(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r)
	if owner == "" {
		respondError(w, http.StatusBadRequest, "owner is required", nil)
		return
	}

	var entityNames []string
	if raw := r.URL.Query().Get("entities"); raw != "" {
		entityNames = strings.Split(raw, ",")
	}

	inferences, err := h.engine.Inferences(r.Context(), owner, entityNames)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list inferences", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"inferences": inferences,
		"count":      len(inferences),
	})
}

type maintenanceRequest struct {
	OwnerID string `json:"owner_id"`
}

// RunMaintenance handles POST /api/maintenance. With an owner_id it
// maintains that owner; without one it sweeps every owner.
func (h *APIHandlers) RunMaintenance(w http.ResponseWriter, r *http.Request) {
	var req maintenanceRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	if req.OwnerID != "" {
		result, err := h.engine.RunMemoryMaintenance(r.Context(), req.OwnerID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "maintenance failed", err)
			return
		}
		respondJSON(w, http.StatusOK, result)
		return
	}

	results, err := h.engine.RunMaintenanceForAllOwners(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "maintenance failed", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"count":   len(results),
	})
}

// Health handles GET /api/health.
func (h *APIHandlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": h.version})
}
