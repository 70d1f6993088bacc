// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"fmt"
	"sync"
	"testing"

	"github.com/AleutianAI/AleutianInsight/services/insight/contextdoc"
)

func record(contextID, sql string) contextdoc.ExecutionRecord {
	return contextdoc.ExecutionRecord{ContextID: contextID, SQL: sql}
}

func TestRecorder_AppendAndFor(t *testing.T) {
	r := NewRecorder(10)

	if got := r.For("ctx"); got != nil {
		t.Fatalf("For on empty recorder = %v, want nil", got)
	}

	r.Append(record("ctx", "q1"))
	r.Append(record("ctx", "q2"))
	r.Append(record("other", "q3"))

	got := r.For("ctx")
	if len(got) != 2 || got[0].SQL != "q1" || got[1].SQL != "q2" {
		t.Errorf("For(ctx) = %v, want [q1 q2] oldest first", got)
	}
	if other := r.For("other"); len(other) != 1 {
		t.Errorf("For(other) = %v, want one record", other)
	}
}

func TestRecorder_CapacityEviction(t *testing.T) {
	r := NewRecorder(3)
	for i := 1; i <= 5; i++ {
		r.Append(record("ctx", fmt.Sprintf("q%d", i)))
	}

	got := r.For("ctx")
	if len(got) != 3 {
		t.Fatalf("len = %d, want capacity 3", len(got))
	}
	for i, want := range []string{"q3", "q4", "q5"} {
		if got[i].SQL != want {
			t.Errorf("record %d = %s, want %s (oldest evicted first)", i, got[i].SQL, want)
		}
	}
}

func TestRecorder_DefaultCapacity(t *testing.T) {
	r := NewRecorder(0)
	for i := 0; i < DefaultCapacity+10; i++ {
		r.Append(record("ctx", fmt.Sprintf("q%d", i)))
	}
	if got := len(r.For("ctx")); got != DefaultCapacity {
		t.Errorf("len = %d, want DefaultCapacity", got)
	}
}

func TestRecorder_Concurrent(t *testing.T) {
	r := NewRecorder(1000)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				r.Append(record("ctx", fmt.Sprintf("g%d-q%d", g, i)))
				_ = r.For("ctx")
			}
		}(g)
	}
	wg.Wait()

	if got := len(r.For("ctx")); got != 400 {
		t.Errorf("len = %d, want 400", got)
	}
}
