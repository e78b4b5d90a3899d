package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scrypster/engram/internal/engine"
	"github.com/scrypster/engram/internal/storage/sqlite"
)

// newTestRouter wires real handlers over a real engine and SQLite store,
// mounted on the same routes the server uses.
func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	store, err := sqlite.NewStore(filepath.Join(t.TempDir(), "engram.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	eng, err := engine.New(store, nil, engine.Collaborators{}, engine.Options{}, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(eng.Close)

	h := NewAPIHandlers(eng, "test", zap.NewNop().Sugar())

	r := chi.NewRouter()
	r.Post("/api/ingest", h.Ingest)
	r.Get("/api/entities", h.ListEntities)
	r.Get("/api/entities/{id}/facts", h.EntityFacts)
	r.Get("/api/entities/{id}/chain", h.EntityChain)
	r.Post("/api/entities/{id}/dismiss", h.DismissEntity)
	r.Post("/api/entities/{id}/confirm", h.ConfirmEntity)
	r.Get("/api/relationships", h.ListRelationships)
	r.Get("/api/inferences", h.ListInferences)
	r.Post("/api/maintenance", h.RunMaintenance)
	r.Get("/api/health", h.Health)
	return r
}

func postJSON(t *testing.T, router http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func get(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ingestNote pushes one note through the API and returns the result.
func ingestNote(t *testing.T, router http.Handler, owner, text string) engine.IngestResult {
	t.Helper()
	w := postJSON(t, router, "/api/ingest", map[string]string{
		"owner_id": owner,
		"text":     text,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result engine.IngestResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	return result
}

func TestIngestEndpoint(t *testing.T) {
	router := newTestRouter(t)

	result := ingestNote(t, router, "owner-1", "Had coffee with Sarah, my cofounder")
	assert.NotEmpty(t, result.NoteID)
	assert.GreaterOrEqual(t, len(result.Entities), 1)
}

func TestIngestEndpointRejectsBadInput(t *testing.T) {
	router := newTestRouter(t)

	w := postJSON(t, router, "/api/ingest", map[string]string{"owner_id": "owner-1", "text": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/ingest", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListEntitiesEndpoint(t *testing.T) {
	router := newTestRouter(t)
	ingestNote(t, router, "owner-1", "Had coffee with Sarah at Blue Bottle")

	w := get(t, router, "/api/entities?owner=owner-1")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Entities []map[string]interface{} `json:"entities"`
		Count    int                      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, len(resp.Entities), resp.Count)
	assert.GreaterOrEqual(t, resp.Count, 1)
}

func TestListEntitiesRequiresOwner(t *testing.T) {
	router := newTestRouter(t)

	w := get(t, router, "/api/entities")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListEntitiesAcceptsOwnerHeader(t *testing.T) {
	router := newTestRouter(t)
	ingestNote(t, router, "owner-1", "Had lunch with Sarah")

	req := httptest.NewRequest(http.MethodGet, "/api/entities", nil)
	req.Header.Set("X-Owner-ID", "owner-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDismissAndConfirmEndpoints(t *testing.T) {
	router := newTestRouter(t)
	result := ingestNote(t, router, "owner-1", "Had lunch with Sarah")
	require.NotEmpty(t, result.Entities)
	entityID := result.Entities[0].ID

	w := postJSON(t, router, "/api/entities/"+entityID+"/dismiss", map[string]string{"owner_id": "owner-1"})
	assert.Equal(t, http.StatusOK, w.Code)

	// Dismissed entities drop out of the default active listing.
	listed := get(t, router, "/api/entities?owner=owner-1&q=Sarah")
	var resp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(listed.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Count)

	// But still appear with status=any.
	any := get(t, router, "/api/entities?owner=owner-1&q=Sarah&status=any")
	require.NoError(t, json.Unmarshal(any.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)

	w = postJSON(t, router, "/api/entities/"+entityID+"/confirm", map[string]string{"owner_id": "owner-1"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestEntityActionOwnershipEnforced(t *testing.T) {
	router := newTestRouter(t)
	result := ingestNote(t, router, "owner-1", "Had lunch with Sarah")
	require.NotEmpty(t, result.Entities)
	entityID := result.Entities[0].ID

	w := postJSON(t, router, "/api/entities/"+entityID+"/dismiss", map[string]string{"owner_id": "someone-else"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = postJSON(t, router, "/api/entities/"+entityID+"/dismiss", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEntityFactsAndChainEndpoints(t *testing.T) {
	router := newTestRouter(t)
	ingestNote(t, router, "owner-1", "Sarah works at Acme")
	result := ingestNote(t, router, "owner-1", "Sarah joined Initech")

	var sarahID string
	for _, e := range result.Entities {
		if e.Name == "Sarah" {
			sarahID = e.ID
		}
	}
	require.NotEmpty(t, sarahID)

	facts := get(t, router, "/api/entities/"+sarahID+"/facts?owner=owner-1")
	assert.Equal(t, http.StatusOK, facts.Code)

	chain := get(t, router, "/api/entities/"+sarahID+"/chain?owner=owner-1")
	require.Equal(t, http.StatusOK, chain.Code)
	var chainResp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(chain.Body.Bytes(), &chainResp))
	assert.GreaterOrEqual(t, chainResp.Count, 2, "job change should grow the supersession chain")

	missing := get(t, router, "/api/entities/nope/facts?owner=owner-1")
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestRelationshipsEndpoint(t *testing.T) {
	router := newTestRouter(t)
	ingestNote(t, router, "owner-1", "Sarah works at Acme")

	w := get(t, router, "/api/relationships?owner=owner-1")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Relationships []map[string]interface{} `json:"relationships"`
		Count         int                      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.GreaterOrEqual(t, resp.Count, 1)
}

func TestInferencesEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := get(t, router, "/api/inferences?owner=owner-1")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Count)
}

func TestMaintenanceEndpoint(t *testing.T) {
	router := newTestRouter(t)
	ingestNote(t, router, "owner-1", "Had lunch with Sarah")

	single := postJSON(t, router, "/api/maintenance", map[string]string{"owner_id": "owner-1"})
	require.Equal(t, http.StatusOK, single.Code)
	var result engine.MaintenanceResult
	require.NoError(t, json.Unmarshal(single.Body.Bytes(), &result))
	assert.Equal(t, "owner-1", result.OwnerID)

	all := postJSON(t, router, "/api/maintenance", map[string]string{})
	require.Equal(t, http.StatusOK, all.Code)
	var sweep struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(all.Body.Bytes(), &sweep))
	assert.Equal(t, 1, sweep.Count)
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := get(t, router, "/api/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
	assert.Contains(t, w.Body.String(), `"version":"test"`)
}
