// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package insight

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianInsight/services/insight/contextdoc"
)

func newRouter(f *testFixture) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	v1 := router.Group("/v1")
	RegisterRoutes(v1, NewHandlers(f.svc))
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	router := newRouter(newFixture(t))

	w := doJSON(t, router, http.MethodGet, "/v1/insight/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
	assert.Contains(t, w.Body.String(), ServiceVersion)
}

func TestHandleValidate(t *testing.T) {
	router := newRouter(newFixture(t))

	t.Run("valid document", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/v1/insight/contexts/validate",
			ValidateRequest{Text: salesContext})
		require.Equal(t, http.StatusOK, w.Code)

		var resp ValidateResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "Sales Analytics", resp.Document.Name)
		assert.Equal(t, contextdoc.ValidationPassed, resp.Validation.Status)
	})

	t.Run("blocking findings still return 200", func(t *testing.T) {
		bad := strings.Replace(salesContext, "name: Sales Analytics", "name: X", 1)
		w := doJSON(t, router, http.MethodPost, "/v1/insight/contexts/validate",
			ValidateRequest{Text: bad})
		require.Equal(t, http.StatusOK, w.Code)

		var resp ValidateResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, contextdoc.ValidationFailed, resp.Validation.Status)
	})

	t.Run("unparsable text", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/v1/insight/contexts/validate",
			ValidateRequest{Text: "---\nname: Broken\n"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing body field", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/v1/insight/contexts/validate", gin.H{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleSaveAndActivate(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f)

	w := doJSON(t, router, http.MethodPost, "/v1/insight/contexts",
		SaveContextRequest{Text: salesContext})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp ValidateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	contextID := resp.Document.ID
	require.NotEmpty(t, contextID)

	t.Run("activate requires a version", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/v1/insight/contexts/"+contextID+"/activate", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("activate promotes the version", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost,
			"/v1/insight/contexts/"+contextID+"/activate?version=1.0.0", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "active")
	})

	t.Run("unknown version is 404", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost,
			"/v1/insight/contexts/"+contextID+"/activate?version=9.9.9", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("failed validation blocks activation with 409", func(t *testing.T) {
		bad := strings.Replace(salesContext, "name: Sales Analytics", "name: X", 1)
		w := doJSON(t, router, http.MethodPost, "/v1/insight/contexts",
			SaveContextRequest{Text: bad})
		require.Equal(t, http.StatusCreated, w.Code)

		var broken ValidateResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &broken))

		w = doJSON(t, router, http.MethodPost,
			"/v1/insight/contexts/"+broken.Document.ID+"/activate?version=1.0.0", nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestHandleExecute(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f)
	id := f.saveSales(t)
	f.datasets.SetDefaultRows([]contextdoc.Row{{"name": "Acme", "total_revenue": 120.0}})

	t.Run("executes and returns rows", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/v1/insight/execute",
			ExecuteRequest{ContextID: id, Query: salesQuery()})
		require.Equal(t, http.StatusOK, w.Code)

		var result ExecuteResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		require.Len(t, result.Rows, 1)
		assert.Equal(t, "$120.00", result.Rows[0]["total_revenue"])
		assert.False(t, result.Cached)
	})

	t.Run("request id is echoed", func(t *testing.T) {
		data, _ := json.Marshal(ExecuteRequest{ContextID: id, Query: salesQuery()})
		req := httptest.NewRequest(http.MethodPost, "/v1/insight/execute", bytes.NewReader(data))
		req.Header.Set("X-Request-ID", "req-123")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
	})

	t.Run("unknown context is 404", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/v1/insight/execute",
			ExecuteRequest{ContextID: "missing", Query: salesQuery()})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("unknown dataset is 422", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/v1/insight/execute",
			ExecuteRequest{ContextID: id, Query: contextdoc.QueryRequest{
				Datasets: []string{"o1", "x9"},
				Metrics:  []string{"total_revenue"},
			}})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("undefined metric is 400", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/v1/insight/execute",
			ExecuteRequest{ContextID: id, Query: contextdoc.QueryRequest{
				Metrics: []string{"nope"},
			}})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed body is 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/insight/execute",
			strings.NewReader("{not json"))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid context is 409", func(t *testing.T) {
		bad := strings.Replace(salesContext, "name: Sales Analytics", "name: X", 1)
		var resp ValidateResponse
		w := doJSON(t, router, http.MethodPost, "/v1/insight/contexts",
			SaveContextRequest{Text: bad})
		require.Equal(t, http.StatusCreated, w.Code)
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

		w = doJSON(t, router, http.MethodPost, "/v1/insight/execute",
			ExecuteRequest{ContextID: resp.Document.ID, Query: salesQuery()})
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestHandleExecute_Timeout(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f)
	id := f.saveSales(t)
	f.datasets.SetDelay(time.Minute)

	noCache := false
	w := doJSON(t, router, http.MethodPost, "/v1/insight/execute",
		ExecuteRequest{ContextID: id, Query: salesQuery(), UseCache: &noCache, TimeoutSeconds: 1})
	require.Equal(t, http.StatusGatewayTimeout, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Retryable)
}

func TestHandleExplain(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f)
	id := f.saveSales(t)

	w := doJSON(t, router, http.MethodPost, "/v1/insight/explain",
		ExplainRequest{ContextID: id, Query: salesQuery()})
	require.Equal(t, http.StatusOK, w.Code)

	var plan contextdoc.CompiledPlan
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &plan))
	assert.Contains(t, plan.SQL, "LEFT JOIN warehouse.customers AS c1")
	assert.Zero(t, f.datasets.Executions(), "explain must not execute")
}

func TestHandleHistory(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f)
	id := f.saveSales(t)
	f.datasets.SetDefaultRows([]contextdoc.Row{{"name": "Acme", "total_revenue": 1.0}})

	w := doJSON(t, router, http.MethodPost, "/v1/insight/execute",
		ExecuteRequest{ContextID: id, Query: salesQuery()})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/v1/insight/contexts/"+id+"/history", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Executions []contextdoc.ExecutionRecord `json:"executions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Executions, 1)
	assert.Equal(t, 1, resp.Executions[0].RowCount)
}

func TestHandleAsk(t *testing.T) {
	t.Run("no translator is 501", func(t *testing.T) {
		f := newFixture(t)
		router := newRouter(f)
		id := f.saveSales(t)

		w := doJSON(t, router, http.MethodPost, "/v1/insight/ask",
			AskRequest{ContextID: id, Question: "revenue by customer?"})
		assert.Equal(t, http.StatusNotImplemented, w.Code)
	})

	t.Run("translated question executes", func(t *testing.T) {
		f := newFixture(t)
		router := newRouter(f)
		id := f.saveSales(t)
		f.datasets.SetDefaultRows([]contextdoc.Row{{"name": "Acme", "total_revenue": 9.0}})
		query := salesQuery()
		f.svc.WithTranslator(&stubTranslator{req: &query})

		w := doJSON(t, router, http.MethodPost, "/v1/insight/ask",
			AskRequest{ContextID: id, Question: "revenue by customer?"})
		require.Equal(t, http.StatusOK, w.Code)

		var resp AskResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, query.Metrics, resp.Query.Metrics)
		assert.Equal(t, "$9.00", resp.Result.Rows[0]["total_revenue"])
	})
}
