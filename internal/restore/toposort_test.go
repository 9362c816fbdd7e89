// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

package restore

import (
	"reflect"
	"testing"
)

func TestTopoSortLinearChain(t *testing.T) {
	nodes := []string{"public.order_items", "public.customers", "public.orders"}
	edges := []Edge{
		{From: "public.customers", To: "public.orders"},
		{From: "public.orders", To: "public.order_items"},
	}

	ordered, remainder := TopoSort(nodes, edges)

	want := []string{"public.customers", "public.orders", "public.order_items"}
	if !reflect.DeepEqual(ordered, want) {
		t.Errorf("ordered = %v, want %v", ordered, want)
	}
	if len(remainder) != 0 {
		t.Errorf("remainder = %v, want empty", remainder)
	}
}

func TestTopoSortMutualCycleGoesToRemainder(t *testing.T) {
	nodes := []string{"public.a", "public.b", "public.standalone"}
	edges := []Edge{
		{From: "public.a", To: "public.b"},
		{From: "public.b", To: "public.a"},
	}

	ordered, remainder := TopoSort(nodes, edges)

	if !reflect.DeepEqual(ordered, []string{"public.standalone"}) {
		t.Errorf("ordered = %v, want [public.standalone]", ordered)
	}
	if !reflect.DeepEqual(remainder, []string{"public.a", "public.b"}) {
		t.Errorf("remainder = %v, want sorted cycle members", remainder)
	}
}

func TestTopoSortSelfReferenceLandsInRemainder(t *testing.T) {
	// A table referencing itself (e.g. categories.parent_id) is a one-node
	// cycle: it joins the remainder and its rows resolve by deferral.
	nodes := []string{"public.categories", "public.products"}
	edges := []Edge{{From: "public.categories", To: "public.categories"}}

	ordered, remainder := TopoSort(nodes, edges)

	if !reflect.DeepEqual(ordered, []string{"public.products"}) {
		t.Errorf("ordered = %v, want [public.products]", ordered)
	}
	if !reflect.DeepEqual(remainder, []string{"public.categories"}) {
		t.Errorf("remainder = %v, want [public.categories]", remainder)
	}
}

func TestTopoSortIgnoresEdgesOutsideNodeSet(t *testing.T) {
	nodes := []string{"public.orders"}
	edges := []Edge{
		{From: "public.customers", To: "public.orders"}, // customers not in snapshot
		{From: "public.orders", To: "public.audit"},     // audit not in snapshot
	}

	ordered, remainder := TopoSort(nodes, edges)

	if !reflect.DeepEqual(ordered, []string{"public.orders"}) {
		t.Errorf("ordered = %v, want [public.orders]", ordered)
	}
	if len(remainder) != 0 {
		t.Errorf("remainder = %v, want empty", remainder)
	}
}

func TestTopoSortDeterministic(t *testing.T) {
	nodes := []string{"public.z", "public.m", "public.a"}

	first, _ := TopoSort(nodes, nil)
	second, _ := TopoSort([]string{"public.a", "public.z", "public.m"}, nil)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("ordering depends on input order: %v vs %v", first, second)
	}
	if !reflect.DeepEqual(first, []string{"public.a", "public.m", "public.z"}) {
		t.Errorf("independent nodes must emit sorted, got %v", first)
	}
}

func TestTopoSortDiamond(t *testing.T) {
	nodes := []string{"public.root", "public.left", "public.right", "public.leaf"}
	edges := []Edge{
		{From: "public.root", To: "public.left"},
		{From: "public.root", To: "public.right"},
		{From: "public.left", To: "public.leaf"},
		{From: "public.right", To: "public.leaf"},
	}

	ordered, remainder := TopoSort(nodes, edges)

	if len(remainder) != 0 {
		t.Fatalf("remainder = %v, want empty", remainder)
	}
	pos := make(map[string]int, len(ordered))
	for i, n := range ordered {
		pos[n] = i
	}
	for _, e := range edges {
		if pos[e.From] >= pos[e.To] {
			t.Errorf("%s must precede %s, got order %v", e.From, e.To, ordered)
		}
	}
}
