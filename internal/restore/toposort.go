// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

// Package restore replays a backup artifact into the live database. Native
// dumps go through the external restore tool; JSON snapshots run a
// dependency-ordered, savepoint-isolated load inside a single transaction.
package restore

import "sort"

// Edge is a dependency: From must load before To (parent before child).
type Edge struct {
	From string
	To   string
}

// TopoSort orders nodes so parents precede children (Kahn's algorithm).
// Nodes trapped in cycles never reach indegree zero; rather than failing,
// they are returned separately in sorted order and the multi-pass loader
// resolves their rows by deferral. Both outputs are deterministic.
func TopoSort(nodes []string, edges []Edge) (ordered, remainder []string) {
	inSet := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		inSet[n] = true
	}

	indegree := make(map[string]int, len(nodes))
	children := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		indegree[n] = 0
	}
	for _, e := range edges {
		if !inSet[e.From] || !inSet[e.To] {
			continue
		}
		if e.From == e.To {
			// A self-reference is a one-node cycle: the node can never
			// reach indegree zero and lands in the remainder, where the
			// multi-pass loader resolves its rows.
			indegree[e.To]++
			continue
		}
		children[e.From] = append(children[e.From], e.To)
		indegree[e.To]++
	}

	var ready []string
	for _, n := range nodes {
		if indegree[n] == 0 {
			ready = append(ready, n)
		}
	}
	sort.Strings(ready)

	ordered = make([]string, 0, len(nodes))
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		ordered = append(ordered, n)

		var unlocked []string
		for _, child := range children[n] {
			indegree[child]--
			if indegree[child] == 0 {
				unlocked = append(unlocked, child)
			}
		}
		// Keep the frontier sorted so ties break deterministically.
		if len(unlocked) > 0 {
			ready = append(ready, unlocked...)
			sort.Strings(ready)
		}
	}

	if len(ordered) < len(nodes) {
		emitted := make(map[string]bool, len(ordered))
		for _, n := range ordered {
			emitted[n] = true
		}
		for _, n := range nodes {
			if !emitted[n] {
				remainder = append(remainder, n)
			}
		}
		sort.Strings(remainder)
	}
	return ordered, remainder
}
