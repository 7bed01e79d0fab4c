package matcat_test

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/severstroy/matcat"
	"github.com/severstroy/matcat/domain/material"
	"github.com/severstroy/matcat/domain/search"
	"github.com/severstroy/matcat/infrastructure/cache"
	"github.com/severstroy/matcat/infrastructure/provider"
	"github.com/severstroy/matcat/internal/config"
	"github.com/severstroy/matcat/internal/log"
	"github.com/severstroy/matcat/internal/testdb"
)

// stubEmbedder derives deterministic 4-dimensional vectors from the
// text hash so identical texts land on identical vectors.
type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = embedText(t)
	}
	return out, nil
}

func (stubEmbedder) EmbedOne(_ context.Context, text string) ([]float64, error) {
	return embedText(text), nil
}

func (stubEmbedder) Dimension() int { return 4 }

func embedText(text string) []float64 {
	sum := sha1.Sum([]byte(text))
	vec := make([]float64, 4)
	for i := range vec {
		vec[i] = float64(sum[i])/255.0 + 0.01
	}
	return vec
}

type stubParser struct{}

func (stubParser) ParseMaterial(_ context.Context, _, description string) (provider.ParseResult, error) {
	return provider.ParseResult{Unit: description, Coefficient: 1}, nil
}

func quietLogger() *log.Logger {
	return log.NewLoggerWithWriter(io.Discard, config.LogFormatText, "ERROR")
}

func newTestClient(t *testing.T) *matcat.Client {
	t.Helper()

	client, err := matcat.New(
		matcat.WithDatabase(testdb.New(t)),
		matcat.WithCache(cache.NewMemoryCache()),
		matcat.WithEmbedder(stubEmbedder{}),
		matcat.WithMaterialParser(stubParser{}),
		matcat.WithLogger(quietLogger()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewRequiresEmbedder(t *testing.T) {
	_, err := matcat.New(
		matcat.WithDatabase(testdb.New(t)),
		matcat.WithCache(cache.NewMemoryCache()),
		matcat.WithLogger(quietLogger()),
	)
	require.ErrorIs(t, err, matcat.ErrNoEmbedder)
}

func TestClientLifecycle(t *testing.T) {
	client, err := matcat.New(
		matcat.WithDatabase(testdb.New(t)),
		matcat.WithCache(cache.NewMemoryCache()),
		matcat.WithEmbedder(stubEmbedder{}),
		matcat.WithMaterialParser(stubParser{}),
		matcat.WithLogger(quietLogger()),
	)
	require.NoError(t, err)

	ctx := context.Background()
	created, err := client.Materials.Create(ctx, material.New("mat-1", "Кирпич", "шт"))
	require.NoError(t, err)

	got, err := client.Materials.Get(ctx, created.ID())
	require.NoError(t, err)
	assert.Equal(t, "Кирпич", got.Name())

	resp, err := client.Search.Search(ctx, search.NewQuery("кирпич", search.ModeFuzzy))
	require.NoError(t, err)
	require.NotEmpty(t, resp.Hits())
	assert.Equal(t, created.ID(), resp.Hits()[0].Material().ID())

	require.NoError(t, client.Close())
	require.ErrorIs(t, client.Close(), matcat.ErrClientClosed)
}

func TestClientReferenceSeeded(t *testing.T) {
	client := newTestClient(t)

	// Embedded seeds load when no explicit seed files are configured.
	snap := client.Reference.Snapshot("units")
	require.NotNil(t, snap)
	assert.NotZero(t, snap.Len())
}

func TestClientServesHTTP(t *testing.T) {
	client := newTestClient(t)
	srv := httptest.NewServer(client.Handler())
	defer srv.Close()

	t.Run("health", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("metrics", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("create and search", func(t *testing.T) {
		body := bytes.NewBufferString(`{"name": "Кирпич", "unit": "шт"}`)
		resp, err := http.Post(srv.URL+"/api/v1/materials", "application/json", body)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		query := bytes.NewBufferString(`{"query": "кирпич", "mode": "fuzzy"}`)
		searchResp, err := http.Post(srv.URL+"/api/v1/search/advanced", "application/json", query)
		require.NoError(t, err)
		defer searchResp.Body.Close()
		require.Equal(t, http.StatusOK, searchResp.StatusCode)

		var decoded struct {
			Hits  []json.RawMessage `json:"hits"`
			Count int               `json:"count"`
		}
		require.NoError(t, json.NewDecoder(searchResp.Body).Decode(&decoded))
		assert.NotZero(t, decoded.Count)
	})

	t.Run("enrichment mounted", func(t *testing.T) {
		body := bytes.NewBufferString(`{"items": [{"material_id": "m-1", "name": "Кирпич", "unit": "шт"}]}`)
		resp, err := http.Post(srv.URL+"/api/v1/materials/process-enhanced", "application/json", body)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	})
}

func TestClientWithoutParserSkipsEnrichment(t *testing.T) {
	client, err := matcat.New(
		matcat.WithDatabase(testdb.New(t)),
		matcat.WithCache(cache.NewMemoryCache()),
		matcat.WithEmbedder(stubEmbedder{}),
		matcat.WithLogger(quietLogger()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	assert.Nil(t, client.Enrichment)
	assert.Nil(t, client.Batch)

	srv := httptest.NewServer(client.Handler())
	defer srv.Close()

	// Without the enrichment mount the path falls through to the {id}
	// wildcard, which has no POST handler.
	body := bytes.NewBufferString(`{"items": [{"material_id": "m-1", "name": "Кирпич", "unit": "шт"}]}`)
	resp, err := http.Post(srv.URL+"/api/v1/materials/process-enhanced", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
