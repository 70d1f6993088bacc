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
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianInsight/services/insight/cache"
	"github.com/AleutianAI/AleutianInsight/services/insight/contextdoc"
	"github.com/AleutianAI/AleutianInsight/services/insight/store"
)

const testUser = "local-user"

const salesContext = `---
name: Sales Analytics
version: 1.0.0
description: Orders and customers for the sales team.
datasets:
  - id: o1
    dataset_id: warehouse.orders
    name: Orders
  - id: c1
    dataset_id: warehouse.customers
    name: Customers
relationships:
  - from: {dataset: o1, column: customer_id}
    to: {dataset: c1, column: id}
    join_type: left
metrics:
  - name: total_revenue
    expression: SUM(o1.amount)
    format: currency
filters:
  - name: recent
    condition: o1.created_at > :since
rules:
  - name: positive_amount
    severity: error
    condition: o1.amount >= 0
---
`

// testFixture wires a service against in-memory collaborators.
type testFixture struct {
	svc      *Service
	datasets *store.MemoryDatasetStore
	contexts *store.MemoryContextRepository
}

func newFixture(t *testing.T) *testFixture {
	t.Helper()

	datasets := store.NewMemoryDatasetStore()
	datasets.AddSchema(testUser, &store.DatasetSchema{
		DatasetID: "warehouse.orders",
		Name:      "Orders",
		Columns: []contextdoc.Column{
			{Name: "id"}, {Name: "customer_id"}, {Name: "amount"}, {Name: "created_at"},
		},
		RowEstimate: 50_000,
	})
	datasets.AddSchema(testUser, &store.DatasetSchema{
		DatasetID:   "warehouse.customers",
		Name:        "Customers",
		Columns:     []contextdoc.Column{{Name: "id"}, {Name: "name"}},
		RowEstimate: 1_000,
	})

	results, err := cache.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = results.Close() })

	contexts := store.NewMemoryContextRepository()
	svc := NewService(DefaultServiceConfig(), datasets, contexts, results)
	return &testFixture{svc: svc, datasets: datasets, contexts: contexts}
}

// saveSales persists the sales fixture context and returns its id.
func (f *testFixture) saveSales(t *testing.T) string {
	t.Helper()
	doc, result, err := f.svc.SaveContext(context.Background(), testUser, "", salesContext)
	require.NoError(t, err)
	require.False(t, result.Blocking(), "fixture context must validate: %+v", result)
	return doc.ID
}

func salesQuery() contextdoc.QueryRequest {
	return contextdoc.QueryRequest{
		Fields:  []string{"c1.name"},
		Metrics: []string{"total_revenue"},
		GroupBy: []string{"c1.name"},
	}
}

func TestService_ValidateDocument(t *testing.T) {
	f := newFixture(t)

	doc, result, err := f.svc.ValidateDocument(context.Background(), testUser, salesContext)
	require.NoError(t, err)
	assert.Equal(t, "Sales Analytics", doc.Name)
	assert.False(t, result.Blocking())

	t.Run("findings are data not errors", func(t *testing.T) {
		bad := strings.Replace(salesContext, "name: Sales Analytics", "name: X", 1)
		doc, result, err := f.svc.ValidateDocument(context.Background(), testUser, bad)
		require.NoError(t, err, "validation findings must not surface as errors")
		require.NotNil(t, doc)
		assert.True(t, result.Blocking())
	})

	t.Run("parse errors do surface", func(t *testing.T) {
		_, _, err := f.svc.ValidateDocument(context.Background(), testUser, "   ")
		assert.Error(t, err)
	})
}

func TestService_SaveContext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("new context gets a generated id", func(t *testing.T) {
		doc, _, err := f.svc.SaveContext(ctx, testUser, "", salesContext)
		require.NoError(t, err)
		assert.NotEmpty(t, doc.ID)

		stored, err := f.contexts.Get(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, "1.0.0", stored.Document.Version)
	})

	t.Run("blocking findings do not prevent saving", func(t *testing.T) {
		bad := strings.Replace(salesContext, "name: Sales Analytics", "name: X", 1)
		doc, result, err := f.svc.SaveContext(ctx, testUser, "", bad)
		require.NoError(t, err)
		assert.True(t, result.Blocking())

		// The draft is stored with its findings for the author to fix.
		stored, err := f.contexts.Get(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, contextdoc.ValidationFailed, stored.Validation.Status)

		// Activation of the broken version is refused.
		err = f.svc.ActivateContext(ctx, doc.ID, doc.Version)
		assert.ErrorIs(t, err, store.ErrValidationBlocked)
	})
}

func TestService_Execute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.saveSales(t)
	f.datasets.SetDefaultRows([]contextdoc.Row{
		{"name": "Acme", "total_revenue": 120.0},
	})

	result, err := f.svc.Execute(ctx, testUser, id, salesQuery(), DefaultExecuteOptions())
	require.NoError(t, err)

	assert.False(t, result.Cached)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "Acme", result.Rows[0]["name"])
	assert.Contains(t, result.Plan.SQL, "LEFT JOIN warehouse.customers AS c1")
	assert.Contains(t, result.Plan.SQL, "WHERE (o1.amount >= 0)")
	assert.Equal(t, 1, f.datasets.Executions())

	t.Run("metric format applied", func(t *testing.T) {
		assert.Equal(t, "$120.00", result.Rows[0]["total_revenue"])
	})

	t.Run("second call hits the cache", func(t *testing.T) {
		again, err := f.svc.Execute(ctx, testUser, id, salesQuery(), DefaultExecuteOptions())
		require.NoError(t, err)
		assert.True(t, again.Cached)
		assert.Equal(t, result.Rows, again.Rows)
		assert.Equal(t, 1, f.datasets.Executions(), "cache hit must not re-execute")
	})

	t.Run("cache bypass re-executes", func(t *testing.T) {
		fresh, err := f.svc.Execute(ctx, testUser, id, salesQuery(), ExecuteOptions{UseCache: false})
		require.NoError(t, err)
		assert.False(t, fresh.Cached)
		assert.Equal(t, 2, f.datasets.Executions())
	})

	t.Run("document edit invalidates cached results", func(t *testing.T) {
		edited := strings.Replace(salesContext, "version: 1.0.0", "version: 1.1.0", 1)
		_, _, err := f.svc.SaveContext(ctx, testUser, id, edited)
		require.NoError(t, err)

		// New fingerprint, new cache key: the old entry cannot be served.
		res, err := f.svc.Execute(ctx, testUser, id, salesQuery(), DefaultExecuteOptions())
		require.NoError(t, err)
		assert.False(t, res.Cached)
	})
}

func TestService_Execute_History(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.saveSales(t)
	f.datasets.SetDefaultRows([]contextdoc.Row{{"name": "Acme", "total_revenue": 1.0}})

	_, err := f.svc.Execute(ctx, testUser, id, salesQuery(), DefaultExecuteOptions())
	require.NoError(t, err)
	_, err = f.svc.Execute(ctx, testUser, id, salesQuery(), DefaultExecuteOptions())
	require.NoError(t, err)

	records := f.svc.History(id)
	require.Len(t, records, 2)
	assert.False(t, records[0].Cached)
	assert.True(t, records[1].Cached)
	assert.Equal(t, records[0].CacheKey, records[1].CacheKey)
	assert.Equal(t, 1, records[0].RowCount)
	assert.Nil(t, f.svc.History("unknown"))
}

func TestService_Execute_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown context", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Execute(ctx, testUser, "missing", salesQuery(), DefaultExecuteOptions())
		assert.ErrorIs(t, err, store.ErrContextNotFound)
	})

	t.Run("invalid context refuses queries", func(t *testing.T) {
		f := newFixture(t)
		bad := strings.Replace(salesContext, "name: Sales Analytics", "name: X", 1)
		doc, _, err := f.svc.SaveContext(ctx, testUser, "", bad)
		require.NoError(t, err)

		_, err = f.svc.Execute(ctx, testUser, doc.ID, salesQuery(), DefaultExecuteOptions())
		assert.ErrorIs(t, err, ErrContextInvalid)
	})

	t.Run("stale validation is recomputed, not trusted", func(t *testing.T) {
		f := newFixture(t)
		bad := strings.Replace(salesContext, "name: Sales Analytics", "name: X", 1)
		doc, result, err := f.svc.ValidateDocument(ctx, testUser, bad)
		require.NoError(t, err)
		require.True(t, result.Blocking(), "fixture document must fail validation")

		// Store a passing result computed against an earlier revision of
		// the document. The fingerprint mismatch marks it stale.
		doc.ID = "ctx-stale"
		forged := contextdoc.ValidationResult{
			Status:      contextdoc.ValidationPassed,
			Fingerprint: contextdoc.Fingerprint("an earlier revision"),
		}
		require.NoError(t, f.contexts.Save(ctx, doc, forged))

		_, err = f.svc.Execute(ctx, testUser, doc.ID, salesQuery(), DefaultExecuteOptions())
		assert.ErrorIs(t, err, ErrContextInvalid)
	})

	t.Run("store timeout", func(t *testing.T) {
		f := newFixture(t)
		id := f.saveSales(t)
		f.datasets.SetDelay(time.Minute)

		_, err := f.svc.Execute(ctx, testUser, id, salesQuery(),
			ExecuteOptions{UseCache: false, Timeout: 20 * time.Millisecond})
		var timeout *ExecutionTimeout
		require.ErrorAs(t, err, &timeout)
		assert.Equal(t, 20*time.Millisecond, timeout.Timeout)
	})

	t.Run("store failure", func(t *testing.T) {
		f := newFixture(t)
		id := f.saveSales(t)
		boom := errors.New("warehouse down")
		f.datasets.SetExecError(boom)

		_, err := f.svc.Execute(ctx, testUser, id, salesQuery(), DefaultExecuteOptions())
		var execErr *ExecutionError
		require.ErrorAs(t, err, &execErr)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("failures are never cached", func(t *testing.T) {
		f := newFixture(t)
		id := f.saveSales(t)
		f.datasets.SetExecError(errors.New("transient"))

		_, err := f.svc.Execute(ctx, testUser, id, salesQuery(), DefaultExecuteOptions())
		require.Error(t, err)

		// Clearing the fault makes the same request succeed and execute.
		f.datasets.SetExecError(nil)
		f.datasets.SetDefaultRows([]contextdoc.Row{{"name": "Acme", "total_revenue": 2.0}})
		res, err := f.svc.Execute(ctx, testUser, id, salesQuery(), DefaultExecuteOptions())
		require.NoError(t, err)
		assert.False(t, res.Cached)
	})
}

func TestService_Explain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.saveSales(t)

	plan, err := f.svc.Explain(ctx, testUser, id, salesQuery())
	require.NoError(t, err)
	assert.Contains(t, plan.SQL, "SELECT c1.name, (SUM(o1.amount)) AS total_revenue")
	assert.Zero(t, f.datasets.Executions(), "explain must not execute")

	again, err := f.svc.Explain(ctx, testUser, id, salesQuery())
	require.NoError(t, err)
	assert.Equal(t, plan.SQL, again.SQL)
	assert.Equal(t, plan.CacheKey, again.CacheKey)
}

// stubTranslator answers every question with a fixed query request.
type stubTranslator struct {
	req *contextdoc.QueryRequest
	err error
}

func (s *stubTranslator) Translate(ctx context.Context, doc *contextdoc.ContextDocument, question string) (*contextdoc.QueryRequest, error) {
	return s.req, s.err
}

func TestService_Ask(t *testing.T) {
	ctx := context.Background()

	t.Run("translates and executes", func(t *testing.T) {
		f := newFixture(t)
		id := f.saveSales(t)
		f.datasets.SetDefaultRows([]contextdoc.Row{{"name": "Acme", "total_revenue": 7.5}})
		query := salesQuery()
		f.svc.WithTranslator(&stubTranslator{req: &query})

		req, result, err := f.svc.Ask(ctx, testUser, id, "revenue by customer?")
		require.NoError(t, err)
		assert.Equal(t, query, req)
		require.NotNil(t, result)
		assert.Equal(t, "$7.50", result.Rows[0]["total_revenue"])
	})

	t.Run("no translator configured", func(t *testing.T) {
		f := newFixture(t)
		id := f.saveSales(t)
		_, _, err := f.svc.Ask(ctx, testUser, id, "anything")
		assert.ErrorIs(t, err, ErrNoTranslator)
	})

	t.Run("empty question", func(t *testing.T) {
		f := newFixture(t)
		id := f.saveSales(t)
		f.svc.WithTranslator(&stubTranslator{})
		_, _, err := f.svc.Ask(ctx, testUser, id, "")
		assert.ErrorIs(t, err, ErrEmptyQuestion)
	})

	t.Run("translator failure surfaces", func(t *testing.T) {
		f := newFixture(t)
		id := f.saveSales(t)
		f.svc.WithTranslator(&stubTranslator{err: errors.New("model unavailable")})
		_, _, err := f.svc.Ask(ctx, testUser, id, "anything")
		assert.Error(t, err)
	})
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name   string
		val    any
		format string
		want   any
	}{
		{"currency float", 120.0, "currency", "$120.00"},
		{"currency int", 45, "currency", "$45.00"},
		{"currency numeric string", "3.5", "currency", "$3.50"},
		{"percent", 12.34, "percent", "12.3%"},
		{"number int64", int64(7), "number", "7"},
		{"non numeric passes through", "Acme", "currency", "Acme"},
		{"unknown format passes through", 5.0, "scientific", 5.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatValue(tt.val, tt.format))
		})
	}
}
