package flow

import "context"

// ExplainEntry is one node's predicted outcome for a prospective RunUpTo,
// computed without calling Init or Process.
type ExplainEntry struct {
	NodeID       int
	NodeName     string
	Fingerprint  string
	WillHitCache bool
}

// Explain returns target's topological order annotated with, for each
// node, the fingerprint its current bindings would produce and whether
// the value store already holds a matching entry — without invoking Init
// or Process on anything. It lets a caller show "this run will only
// re-execute these N nodes" before committing to the cost of running
// them, by walking the same resolution path RunUpTo uses but stopping
// short of evaluation on every miss.
func (g *Graph) Explain(ctx context.Context, target int) ([]ExplainEntry, error) {
	order, err := g.TopologicalSort(target)
	if err != nil {
		return nil, err
	}

	fps := make(map[int]string, len(order))
	entries := make([]ExplainEntry, 0, len(order))
	for _, id := range order {
		n := g.nodes[id]

		if n.isConstant {
			fps[id] = n.constantFP
			entries = append(entries, ExplainEntry{
				NodeID: id, NodeName: n.name, Fingerprint: n.constantFP, WillHitCache: true,
			})
			continue
		}

		refFPs := make(map[string]any, len(n.bindings))
		for param, b := range n.bindings {
			if b.IsRef {
				refFPs[param] = refValue{fp: fps[b.RefID]}
			} else {
				refFPs[param] = b.Literal
			}
		}
		fp, err := fingerprint(n.name, n.kind.Version(), refFPs)
		if err != nil {
			return nil, err
		}
		fps[id] = fp

		_, hit, err := g.store.Lookup(ctx, id, fp)
		if err != nil {
			return nil, err
		}
		entries = append(entries, ExplainEntry{
			NodeID: id, NodeName: n.name, Fingerprint: fp, WillHitCache: hit,
		})
	}
	return entries, nil
}
