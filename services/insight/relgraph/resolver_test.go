// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package relgraph

import (
	"errors"
	"reflect"
	"testing"

	"github.com/AleutianAI/AleutianInsight/services/insight/contextdoc"
)

// pathEnds flattens a join path into "from->to" strings for assertions.
func pathEnds(path []contextdoc.Relationship) []string {
	out := make([]string, 0, len(path))
	for _, r := range path {
		out = append(out, r.From.Dataset+"->"+r.To.Dataset)
	}
	return out
}

func TestFindJoinPath_Basics(t *testing.T) {
	doc := docWith([]string{"a", "b", "c"}, []contextdoc.Relationship{
		rel("a", "b_id", "b", "id"),
		rel("b", "c_id", "c", "id"),
	})
	g := Build(doc)

	t.Run("single dataset needs no joins", func(t *testing.T) {
		path, err := g.FindJoinPath([]string{"a"})
		if err != nil || path != nil {
			t.Errorf("FindJoinPath single = %v, %v; want nil, nil", path, err)
		}
	})

	t.Run("empty request needs no joins", func(t *testing.T) {
		path, err := g.FindJoinPath(nil)
		if err != nil || path != nil {
			t.Errorf("FindJoinPath empty = %v, %v; want nil, nil", path, err)
		}
	})

	t.Run("adjacent pair", func(t *testing.T) {
		path, err := g.FindJoinPath([]string{"a", "b"})
		if err != nil {
			t.Fatal(err)
		}
		if got := pathEnds(path); !reflect.DeepEqual(got, []string{"a->b"}) {
			t.Errorf("path = %v, want [a->b]", got)
		}
	})

	t.Run("duplicates in request are ignored", func(t *testing.T) {
		path, err := g.FindJoinPath([]string{"b", "a", "a", "b"})
		if err != nil {
			t.Fatal(err)
		}
		if len(path) != 1 {
			t.Errorf("path = %v, want a single edge", pathEnds(path))
		}
	})

	t.Run("intermediate dataset is included", func(t *testing.T) {
		// a and c are only connected through b.
		path, err := g.FindJoinPath([]string{"a", "c"})
		if err != nil {
			t.Fatal(err)
		}
		if got := pathEnds(path); !reflect.DeepEqual(got, []string{"a->b", "b->c"}) {
			t.Errorf("path = %v, want [a->b b->c]", got)
		}
	})

	t.Run("three terminals yield two edges", func(t *testing.T) {
		path, err := g.FindJoinPath([]string{"a", "b", "c"})
		if err != nil {
			t.Fatal(err)
		}
		if len(path) != 2 {
			t.Errorf("path = %v, want exactly 2 edges", pathEnds(path))
		}
	})
}

func TestFindJoinPath_CrossesEdgesAgainstDeclaration(t *testing.T) {
	// a->b->c chain plus a back edge c->a. The back edge connects a and c
	// directly, and a join condition works either way round, so resolving
	// {a, c} must take the one-edge route instead of the two-edge chain.
	doc := docWith([]string{"a", "b", "c"}, []contextdoc.Relationship{
		rel("a", "b_id", "b", "id"),
		rel("b", "c_id", "c", "id"),
		rel("c", "a_id", "a", "id"),
	})
	g := Build(doc)

	path, err := g.FindJoinPath([]string{"a", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if got := pathEnds(path); !reflect.DeepEqual(got, []string{"c->a"}) {
		t.Errorf("path = %v, want the direct edge [c->a]", got)
	}
}

func TestFindJoinPath_ConnectsHubAndSpokes(t *testing.T) {
	// Hub-and-spoke: a->b and a->c. Requesting the two spokes {b, c} must
	// connect them through the hub, even though no declared edge leaves
	// either spoke.
	doc := docWith([]string{"a", "b", "c"}, []contextdoc.Relationship{
		rel("a", "b_id", "b", "id"),
		rel("a", "c_id", "c", "id"),
	})
	g := Build(doc)

	path, err := g.FindJoinPath([]string{"b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if got := pathEnds(path); !reflect.DeepEqual(got, []string{"a->b", "a->c"}) {
		t.Errorf("path = %v, want both hub edges [a->b a->c]", got)
	}
}

func TestFindJoinPath_WalksUpstreamChain(t *testing.T) {
	// Edges point toward a: c->b, b->a. The root is the earliest declared
	// terminal (a), so both edges are crossed against their declaration
	// and appended tree outward.
	doc := docWith([]string{"a", "b", "c"}, []contextdoc.Relationship{
		rel("b", "a_id", "a", "id"),
		rel("c", "b_id", "b", "id"),
	})
	g := Build(doc)

	path, err := g.FindJoinPath([]string{"a", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if got := pathEnds(path); !reflect.DeepEqual(got, []string{"b->a", "c->b"}) {
		t.Errorf("path = %v, want [b->a c->b]", got)
	}
}

func TestFindJoinPath_DeterministicTieBreak(t *testing.T) {
	// Two equal-cost parallel routes a->b: directly, and via the edge
	// declared later. The earliest declared relationship must win, every
	// time.
	doc := docWith([]string{"a", "b"}, []contextdoc.Relationship{
		rel("a", "first_id", "b", "id"),
		rel("a", "second_id", "b", "id"),
	})
	g := Build(doc)

	for i := 0; i < 50; i++ {
		path, err := g.FindJoinPath([]string{"a", "b"})
		if err != nil {
			t.Fatal(err)
		}
		if len(path) != 1 || path[0].From.Column != "first_id" {
			t.Fatalf("iteration %d: picked %v, want the first declared edge", i, path)
		}
	}
}

func TestFindJoinPath_PrefersLowWeightRoute(t *testing.T) {
	// Route 1: a->big->b where big has a huge row estimate.
	// Route 2: a->small->b with a tiny estimate. The resolver must take
	// the cheap route even though the expensive one is declared first.
	doc := docWith([]string{"a", "big", "small", "b"}, []contextdoc.Relationship{
		rel("a", "x", "big", "x"),
		rel("big", "x", "b", "x"),
		rel("a", "x", "small", "x"),
		rel("small", "x", "b", "x"),
	})
	g := Build(doc, WithRowEstimates(map[string]int64{
		"big":   10_000_000,
		"small": 10,
		"b":     1000,
	}))

	path, err := g.FindJoinPath([]string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if got := pathEnds(path); !reflect.DeepEqual(got, []string{"a->small", "small->b"}) {
		t.Errorf("path = %v, want the low-weight route via small", got)
	}
}

func TestFindJoinPath_Errors(t *testing.T) {
	t.Run("unknown dataset", func(t *testing.T) {
		doc := docWith([]string{"a", "b"}, []contextdoc.Relationship{
			rel("a", "b_id", "b", "id"),
		})
		_, err := Build(doc).FindJoinPath([]string{"a", "nope"})
		var np *NoPathError
		if !errors.As(err, &np) {
			t.Fatalf("err = %v, want *NoPathError", err)
		}
		if !reflect.DeepEqual(np.Unknown, []string{"nope"}) {
			t.Errorf("Unknown = %v, want [nope]", np.Unknown)
		}
	})

	t.Run("disconnected datasets", func(t *testing.T) {
		doc := docWith([]string{"a", "b", "x", "y"}, []contextdoc.Relationship{
			rel("a", "b_id", "b", "id"),
			rel("x", "y_id", "y", "id"),
		})
		_, err := Build(doc).FindJoinPath([]string{"a", "x"})
		var np *NoPathError
		if !errors.As(err, &np) {
			t.Fatalf("err = %v, want *NoPathError", err)
		}
		if len(np.Unreachable) == 0 {
			t.Error("NoPathError.Unreachable is empty, want the disconnected terminal")
		}
	})

	t.Run("no relationships at all", func(t *testing.T) {
		doc := docWith([]string{"a", "b"}, nil)
		_, err := Build(doc).FindJoinPath([]string{"a", "b"})
		var np *NoPathError
		if !errors.As(err, &np) {
			t.Fatalf("err = %v, want *NoPathError", err)
		}
	})
}
