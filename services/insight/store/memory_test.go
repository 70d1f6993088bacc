// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianInsight/services/insight/contextdoc"
)

func docVersion(id, version string, datasets ...string) *contextdoc.ContextDocument {
	doc := &contextdoc.ContextDocument{
		ID:          id,
		Name:        "Store Fixture",
		Version:     version,
		Description: "fixture for repository tests",
		Status:      contextdoc.StatusDraft,
	}
	for _, ds := range datasets {
		doc.Datasets = append(doc.Datasets, contextdoc.DatasetRef{LocalID: ds, DatasetID: "warehouse." + ds, Name: ds})
	}
	return doc
}

func passed() contextdoc.ValidationResult {
	return contextdoc.ValidationResult{Status: contextdoc.ValidationPassed}
}

// =============================================================================
// MemoryDatasetStore
// =============================================================================

func TestDatasetStore_Lookup(t *testing.T) {
	s := NewMemoryDatasetStore()
	s.AddSchema("alice", &DatasetSchema{
		DatasetID: "warehouse.orders",
		Columns:   []contextdoc.Column{{Name: "id"}, {Name: "amount"}},
	})

	schema, err := s.Lookup(context.Background(), "warehouse.orders", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !schema.HasColumn("amount") || schema.HasColumn("missing") {
		t.Error("HasColumn misreports schema columns")
	}

	t.Run("unknown dataset", func(t *testing.T) {
		if _, err := s.Lookup(context.Background(), "warehouse.nope", "alice"); !errors.Is(err, ErrDatasetNotFound) {
			t.Errorf("err = %v, want ErrDatasetNotFound", err)
		}
	})

	t.Run("foreign user is isolated", func(t *testing.T) {
		if _, err := s.Lookup(context.Background(), "warehouse.orders", "bob"); !errors.Is(err, ErrDatasetNotFound) {
			t.Errorf("err = %v, want ErrDatasetNotFound for another user", err)
		}
	})
}

func TestDatasetStore_Execute(t *testing.T) {
	s := NewMemoryDatasetStore()
	s.SetDefaultRows([]contextdoc.Row{{"n": 1}})
	s.SetRows("SELECT 2", []contextdoc.Row{{"n": 2}})

	rows, err := s.Execute(context.Background(), "SELECT 2", nil)
	if err != nil || rows[0]["n"] != 2 {
		t.Errorf("exact match rows = %v, %v", rows, err)
	}
	rows, err = s.Execute(context.Background(), "SELECT anything", nil)
	if err != nil || rows[0]["n"] != 1 {
		t.Errorf("default rows = %v, %v", rows, err)
	}
	if s.Executions() != 2 {
		t.Errorf("Executions() = %d, want 2", s.Executions())
	}

	t.Run("configured error", func(t *testing.T) {
		failing := NewMemoryDatasetStore()
		failing.SetExecError(errors.New("warehouse down"))
		if _, err := failing.Execute(context.Background(), "q", nil); err == nil {
			t.Error("Execute did not surface the configured error")
		}
	})

	t.Run("delay honors cancellation", func(t *testing.T) {
		slow := NewMemoryDatasetStore()
		slow.SetDelay(time.Minute)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		if _, err := slow.Execute(ctx, "q", nil); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("err = %v, want DeadlineExceeded", err)
		}
	})
}

// =============================================================================
// MemoryContextRepository
// =============================================================================

func TestRepository_SaveAndGet(t *testing.T) {
	r := NewMemoryContextRepository()
	ctx := context.Background()

	if _, err := r.Get(ctx, "sales"); !errors.Is(err, ErrContextNotFound) {
		t.Fatalf("Get on empty repo = %v, want ErrContextNotFound", err)
	}

	if err := r.Save(ctx, docVersion("sales", "1.0.0", "orders"), passed()); err != nil {
		t.Fatal(err)
	}
	if err := r.Save(ctx, docVersion("sales", "1.1.0", "orders"), passed()); err != nil {
		t.Fatal(err)
	}

	latest, err := r.Get(ctx, "sales")
	if err != nil {
		t.Fatal(err)
	}
	if latest.Document.Version != "1.1.0" {
		t.Errorf("Get returned version %s, want the latest 1.1.0", latest.Document.Version)
	}

	v1, err := r.GetVersion(ctx, "sales", "1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	if v1.Document.Version != "1.0.0" {
		t.Errorf("GetVersion returned %s, want 1.0.0", v1.Document.Version)
	}

	if _, err := r.GetVersion(ctx, "sales", "9.9.9"); !errors.Is(err, ErrVersionNotFound) {
		t.Errorf("missing version err = %v, want ErrVersionNotFound", err)
	}
	if _, err := r.GetVersion(ctx, "nope", "1.0.0"); !errors.Is(err, ErrContextNotFound) {
		t.Errorf("missing context err = %v, want ErrContextNotFound", err)
	}

	list, err := r.List(ctx)
	if err != nil || len(list) != 1 {
		t.Errorf("List = %v, %v; want one latest entry", list, err)
	}
}

func TestRepository_SaveCopiesDocument(t *testing.T) {
	r := NewMemoryContextRepository()
	ctx := context.Background()

	doc := docVersion("sales", "1.0.0", "orders")
	if err := r.Save(ctx, doc, passed()); err != nil {
		t.Fatal(err)
	}
	doc.Name = "mutated after save"

	stored, err := r.Get(ctx, "sales")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Document.Name != "Store Fixture" {
		t.Error("repository retained the caller's document instead of a copy")
	}
}

func TestRepository_Activate(t *testing.T) {
	ctx := context.Background()

	t.Run("promotes draft and supersedes prior active", func(t *testing.T) {
		r := NewMemoryContextRepository()
		mustSave(t, r, docVersion("sales", "1.0.0", "orders"), passed())
		mustSave(t, r, docVersion("sales", "2.0.0", "orders"), passed())

		if err := r.Activate(ctx, "sales", "1.0.0"); err != nil {
			t.Fatal(err)
		}
		active, err := r.GetActive(ctx, "sales")
		if err != nil || active.Document.Version != "1.0.0" {
			t.Fatalf("GetActive = %v, %v; want 1.0.0", active, err)
		}

		if err := r.Activate(ctx, "sales", "2.0.0"); err != nil {
			t.Fatal(err)
		}
		active, err = r.GetActive(ctx, "sales")
		if err != nil || active.Document.Version != "2.0.0" {
			t.Fatalf("GetActive after supersede = %v, %v; want 2.0.0", active, err)
		}
		prior, _ := r.GetVersion(ctx, "sales", "1.0.0")
		if prior.Document.Status != contextdoc.StatusDeprecated {
			t.Errorf("prior active status = %s, want deprecated", prior.Document.Status)
		}
	})

	t.Run("failed validation blocks activation", func(t *testing.T) {
		r := NewMemoryContextRepository()
		mustSave(t, r, docVersion("sales", "1.0.0", "orders"),
			contextdoc.ValidationResult{Status: contextdoc.ValidationFailed})
		if err := r.Activate(ctx, "sales", "1.0.0"); !errors.Is(err, ErrValidationBlocked) {
			t.Errorf("err = %v, want ErrValidationBlocked", err)
		}
	})

	t.Run("warnings do not block activation", func(t *testing.T) {
		r := NewMemoryContextRepository()
		mustSave(t, r, docVersion("sales", "1.0.0", "orders"),
			contextdoc.ValidationResult{Status: contextdoc.ValidationWarning})
		if err := r.Activate(ctx, "sales", "1.0.0"); err != nil {
			t.Errorf("warning-status activation failed: %v", err)
		}
	})

	t.Run("dataset owned by another active context", func(t *testing.T) {
		r := NewMemoryContextRepository()
		mustSave(t, r, docVersion("sales", "1.0.0", "orders"), passed())
		mustSave(t, r, docVersion("finance", "1.0.0", "orders"), passed())

		if err := r.Activate(ctx, "sales", "1.0.0"); err != nil {
			t.Fatal(err)
		}
		if err := r.Activate(ctx, "finance", "1.0.0"); !errors.Is(err, ErrDatasetOwned) {
			t.Errorf("err = %v, want ErrDatasetOwned", err)
		}
	})

	t.Run("missing targets", func(t *testing.T) {
		r := NewMemoryContextRepository()
		if err := r.Activate(ctx, "nope", "1.0.0"); !errors.Is(err, ErrContextNotFound) {
			t.Errorf("err = %v, want ErrContextNotFound", err)
		}
		mustSave(t, r, docVersion("sales", "1.0.0", "orders"), passed())
		if err := r.Activate(ctx, "sales", "9.9.9"); !errors.Is(err, ErrVersionNotFound) {
			t.Errorf("err = %v, want ErrVersionNotFound", err)
		}
	})
}

func TestRepository_GetActive_NoneActive(t *testing.T) {
	r := NewMemoryContextRepository()
	mustSave(t, r, docVersion("sales", "1.0.0", "orders"), passed())
	if _, err := r.GetActive(context.Background(), "sales"); !errors.Is(err, ErrVersionNotFound) {
		t.Errorf("err = %v, want ErrVersionNotFound when nothing is active", err)
	}
}

func mustSave(t *testing.T, r *MemoryContextRepository, doc *contextdoc.ContextDocument, result contextdoc.ValidationResult) {
	t.Helper()
	if err := r.Save(context.Background(), doc, result); err != nil {
		t.Fatal(err)
	}
}
