package core

import (
	"fmt"
	"sort"
	"strings"

	"aptly-reconcile/internal/types"
)

// RenderPlan lists commands one per line in execution order.
func RenderPlan(commands []*Command) string {
	var b strings.Builder
	for i, cmd := range commands {
		fmt.Fprintf(&b, "%3d  %s\n", i+1, cmd.Display())
	}
	return b.String()
}

// RenderDot renders commands and the resources between them as a graphviz
// digraph. Resources are ellipses, commands are boxes.
func RenderDot(commands []*Command) string {
	resources := map[types.Resource]struct{}{}
	for _, cmd := range commands {
		for _, r := range cmd.Requires() {
			resources[r] = struct{}{}
		}
		for _, r := range cmd.Provides() {
			resources[r] = struct{}{}
		}
	}
	sortedRes := sortedResources(resources)

	var b strings.Builder
	b.WriteString("digraph plan {\n")
	b.WriteString("  rankdir=LR;\n")
	for _, r := range sortedRes {
		fmt.Fprintf(&b, "  %s [shape=ellipse, label=%s];\n", resourceNode(r), quoteDot(r.String()))
	}
	for i, cmd := range commands {
		node := fmt.Sprintf("cmd%d", i)
		fmt.Fprintf(&b, "  %s [shape=box, label=%s];\n", node, quoteDot(cmd.Display()))
		for _, r := range cmd.Requires() {
			fmt.Fprintf(&b, "  %s -> %s;\n", resourceNode(r), node)
		}
		for _, r := range cmd.Provides() {
			fmt.Fprintf(&b, "  %s -> %s;\n", node, resourceNode(r))
		}
	}
	b.WriteString("}\n")
	return b.String()
}

func resourceNode(r types.Resource) string {
	return quoteDot(string(r.Kind) + ":" + r.Name)
}

func quoteDot(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `\"`) + `"`
}

// planKinds counts commands by their leading verbs, for summaries.
func planKinds(commands []*Command) map[string]int {
	counts := map[string]int{}
	for _, cmd := range commands {
		argv := cmd.Argv()
		key := cmd.fnName
		if !cmd.IsFunction() && len(argv) >= 3 {
			key = argv[1] + " " + argv[2]
		}
		counts[key]++
	}
	return counts
}

// Summary is a stable one-line digest such as "publish switch=1, snapshot create=2".
func Summary(commands []*Command) string {
	counts := planKinds(commands)
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", key, counts[key]))
	}
	return strings.Join(parts, ", ")
}
